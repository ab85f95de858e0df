package infoshare

import (
	"context"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"strings"
)

const (
	helpCommandName        = "help"
	helpCommandDescription = "顯示機器人所有可用功能"

	helpEmbedColor   = 0x3498db
	helpNoDesc       = "無說明"
	helpFeatureSep   = " • "
	discordMaxFields = 25
)

// HelpFeature provides /help, which lists every registered command and
// loaded feature.
type HelpFeature struct {
	registry *Registry
	logger   *slog.Logger
}

// NewHelpFeature returns a HelpFeature describing the contents of
// registry at the time /help is used.
func NewHelpFeature(registry *Registry, logger *slog.Logger) *HelpFeature {
	if logger == nil {
		logger = slog.Default()
	}
	return &HelpFeature{
		registry: registry,
		logger:   logger.With(loggerNameKey, "help"),
	}
}

func (*HelpFeature) Name() string {
	return "help"
}

func (h *HelpFeature) Load(_ context.Context, r *Registry) error {
	return r.AddCommand(
		Command{
			Name:        helpCommandName,
			Description: helpCommandDescription,
			Handler:     h.handleHelp,
		},
	)
}

func (h *HelpFeature) handleHelp(ctx context.Context, handler InteractionHandler) {
	embed := helpEmbed(h.registry.Commands(), h.registry.Features())
	if err := handler.Respond(ctx, ephemeralEmbed(embed)); err != nil {
		loggerFromContext(ctx, h.logger).ErrorContext(
			ctx,
			"error sending help",
			tint.Err(err),
		)
	}
}

// helpEmbed lists commands as "/name" fields, followed by the loaded
// feature names
func helpEmbed(commands []Command, features []string) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "📚 機器人功能列表",
		Description: "以下是目前可用的所有指令：",
		Color:       helpEmbedColor,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "💡 提示：所有指令都是斜線指令，輸入 / 即可查看",
		},
	}

	if len(commands) == 0 {
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{
				Name:  "⚠️ 沒有可用指令",
				Value: "目前沒有註冊任何斜線指令",
			},
		)
	}
	for _, c := range commands {
		// leave room for the feature list
		if len(embed.Fields) >= discordMaxFields-1 {
			break
		}
		desc := strings.TrimSpace(c.Description)
		if desc == "" {
			desc = helpNoDesc
		}
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{Name: "/" + c.Name, Value: desc},
		)
	}

	if len(features) > 0 {
		names := make([]string, 0, len(features))
		for _, f := range features {
			names = append(names, "`"+f+"`")
		}
		embed.Fields = append(
			embed.Fields,
			&discordgo.MessageEmbedField{
				Name:  "🔧 已載入的功能模組",
				Value: strings.Join(names, helpFeatureSep),
			},
		)
	}
	return embed
}
