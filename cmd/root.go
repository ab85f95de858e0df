package cmd

import (
	"context"
	"fmt"
	"github.com/May-aiworks/discord-info-bot/infoshare"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
)

var (
	cfg        = infoshare.DefaultConfig()
	configFile string
)

// envAliases binds the unprefixed variable names used by earlier
// deployments of the bot
var envAliases = map[string]string{
	"discord.token":           "DISCORD_TOKEN",
	"sheets.spreadsheet_id":   "SPREADSHEET_ID",
	"sheets.worksheet_name":   "WORKSHEET_NAME",
	"sheets.credentials_file": "GOOGLE_CREDENTIALS_FILE",
}

// levelKeys are the config keys holding a *slog.LevelVar
var levelKeys = []string{
	"log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"discord.webhook_server.log_level",
	"sheets.log_level",
}

var rootCmd = &cobra.Command{
	Use:   "discord-info-bot [flags]",
	Short: "Discord bot for sharing articles, tools and resources",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// mapstructure decodes into an existing slice element-wise,
		// which would leave trailing default categories behind
		cfg.Categories = nil
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					mapstructure.StringToSliceHookFunc(","),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes level names ("INFO", "warn", ...) into
// a *slog.LevelVar
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}

		typ := t.Elem()

		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}
		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		fmt.Println("loading env from file", configFile)
		if err := godotenv.Load(configFile); err != nil {
			log.Println("No .env file found")
		}
	}

	viper.SetDefault("categories", strings.Join(infoshare.DefaultCategories, ","))
	viper.SetDefault("development", false)
	viper.SetDefault("log_level", infoshare.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", infoshare.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", infoshare.DefaultShutdownTimeout)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.gateway_enabled", true)
	viper.SetDefault(
		"discord.log_level",
		infoshare.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		infoshare.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		int(infoshare.DefaultDiscordGatewayIntent),
	)

	// Discord: Webhook server
	viper.SetDefault("discord.webhook_server.enabled", false)
	viper.SetDefault(
		"discord.webhook_server.listen",
		infoshare.DefaultDiscordWebhookServerListen,
	)
	viper.SetDefault("discord.webhook_server.listen_network", "tcp")
	viper.SetDefault("discord.webhook_server.public_key", "")
	viper.SetDefault(
		"discord.webhook_server.read_timeout",
		infoshare.DefaultReadTimeout,
	)
	viper.SetDefault(
		"discord.webhook_server.read_header_timeout",
		infoshare.DefaultReadHeaderTimeout,
	)
	viper.SetDefault(
		"discord.webhook_server.write_timeout",
		infoshare.DefaultWriteTimeout,
	)
	viper.SetDefault(
		"discord.webhook_server.idle_timeout",
		infoshare.DefaultIdleTimeout,
	)
	viper.SetDefault(
		"discord.webhook_server.log_level",
		infoshare.DefaultDiscordWebhookLogLevel.String(),
	)
	viper.SetDefault(
		"discord.webhook_server.ssl.tls_min_version",
		infoshare.DefaultDiscordWebhookServerTLSminVersion,
	)

	// Google Sheets
	viper.SetDefault("sheets.spreadsheet_id", "")
	viper.SetDefault(
		"sheets.worksheet_name",
		infoshare.DefaultSheetsWorksheetName,
	)
	viper.SetDefault(
		"sheets.credentials_file",
		infoshare.DefaultSheetsCredentialsFile,
	)
	viper.SetDefault("sheets.write_timeout", infoshare.DefaultSheetsWriteTimeout)
	viper.SetDefault(
		"sheets.max_writes_per_second",
		infoshare.DefaultSheetsMaxWritesPerSecond,
	)
	viper.SetDefault("sheets.log_level", infoshare.DefaultSheetsLogLevel.String())

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}

	envPrefix := os.Getenv(infoshare.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = infoshare.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	// Discord: Webhook server: SSL
	fatalErr(viper.BindEnv("discord.webhook_server.ssl.cert_file"))
	fatalErr(viper.BindEnv("discord.webhook_server.ssl.key_file"))

	// The prefixed name wins over the alias
	for key, alias := range envAliases {
		prefixed := strings.ToUpper(envPrefix + "_" + replacer.Replace(key))
		fatalErr(viper.BindEnv(key, prefixed, alias))
	}

	viper.AutomaticEnv()

	viper.Set("categories", splitCategories(viper.Get("categories")))

	for _, key := range levelKeys {
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

// splitCategories accepts either a comma-separated string or a list.
// Entries are trimmed and blanks dropped. Duplicates are kept, so
// validation can reject them.
func splitCategories(v any) []string {
	var raw []string
	switch val := v.(type) {
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	}
	categories := make([]string, 0, len(raw))
	for _, c := range raw {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	return categories
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//goland:noinspection GoLinter,GoLinter
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Config file to use",
	)
}
