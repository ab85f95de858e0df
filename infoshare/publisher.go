package infoshare

import (
	"context"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"time"
)

const (
	announcementColor = 0x3498db

	msgPublishSuccess = "✅ 分享成功！訊息已發送到頻道。"
	msgSheetSaved     = "📊 已儲存至試算表。"
	msgSheetFailed    = "⚠️ 試算表儲存失敗，資料未保存。"
	msgSheetDisabled  = "ℹ️ 試算表功能未啟用，資料未保存。"
	msgErrorTemplate  = "❌ 發生錯誤：%s"
)

// SpreadsheetClient appends submission records to a spreadsheet.
// Implementations must be safe for concurrent use.
type SpreadsheetClient interface {
	AppendRecord(ctx context.Context, rec SubmissionRecord) error
}

// SheetStatus is the outcome of the spreadsheet step of a publish.
type SheetStatus int

const (
	SheetDisabled SheetStatus = iota
	SheetSaved
	SheetFailed
)

func (s SheetStatus) String() string {
	switch s {
	case SheetDisabled:
		return "disabled"
	case SheetSaved:
		return "saved"
	case SheetFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s SheetStatus) message() string {
	switch s {
	case SheetSaved:
		return msgSheetSaved
	case SheetFailed:
		return msgSheetFailed
	default:
		return msgSheetDisabled
	}
}

// PublishResult describes a successful publish.
type PublishResult struct {
	MessageID   string
	SheetStatus SheetStatus
	SheetError  error
}

// Publisher announces submission records in the channel they were
// submitted from, and forwards them to the spreadsheet when one is
// configured.
type Publisher struct {
	session DiscordSessionHandler
	sheets  SpreadsheetClient
	logger  *slog.Logger
}

// NewPublisher returns a Publisher. sheets may be nil, in which case
// records are only announced.
func NewPublisher(
	session DiscordSessionHandler,
	sheets SpreadsheetClient,
	logger *slog.Logger,
) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{session: session, sheets: sheets, logger: logger}
}

// Publish acknowledges the modal submission privately, posts the public
// announcement, appends the record to the spreadsheet, then edits the
// acknowledgment with the outcome.
//
// A failed announcement is reported to the submitter and returned, and
// the spreadsheet isn't written. A failed spreadsheet write is reported
// as "not saved" but doesn't fail the publish.
func (p *Publisher) Publish(
	ctx context.Context,
	handler InteractionHandler,
	rec SubmissionRecord,
) (PublishResult, error) {
	logger := loggerFromContext(ctx, p.logger).With("record", rec)

	if err := handler.Respond(ctx, deferredEphemeralAck()); err != nil {
		return PublishResult{}, fmt.Errorf("error acknowledging submission: %w", err)
	}

	i := handler.GetInteraction()
	msg, err := p.session.ChannelMessageSendComplex(
		i.ChannelID,
		&discordgo.MessageSend{
			Embeds: []*discordgo.MessageEmbed{announcementEmbed(rec)},
		},
	)
	if err != nil {
		logger.ErrorContext(ctx, "error sending announcement", tint.Err(err))
		content := fmt.Sprintf(msgErrorTemplate, err.Error())
		_, _ = handler.Edit(ctx, &discordgo.WebhookEdit{Content: &content})
		return PublishResult{}, fmt.Errorf("error sending announcement: %w", err)
	}

	result := PublishResult{SheetStatus: SheetDisabled}
	if msg != nil {
		result.MessageID = msg.ID
	}

	if p.sheets != nil {
		if sheetErr := p.sheets.AppendRecord(ctx, rec); sheetErr != nil {
			logger.ErrorContext(ctx, "error saving record to spreadsheet", tint.Err(sheetErr))
			result.SheetStatus = SheetFailed
			result.SheetError = sheetErr
		} else {
			result.SheetStatus = SheetSaved
		}
	}

	content := msgPublishSuccess + "\n" + result.SheetStatus.message()
	if _, editErr := handler.Edit(
		ctx,
		&discordgo.WebhookEdit{Content: &content},
	); editErr != nil {
		logger.WarnContext(ctx, "unable to update acknowledgment", tint.Err(editErr))
	}

	logger.InfoContext(
		ctx,
		"published submission",
		"message_id", result.MessageID,
		"sheet_status", result.SheetStatus.String(),
	)
	return result, nil
}

// announcementEmbed renders the public announcement for a record.
// Topic and note are omitted when empty.
func announcementEmbed(rec SubmissionRecord) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "👤 分享者", Value: rec.SubmitterName, Inline: true},
		{Name: "💎 Aiworks 點", Value: rec.Points, Inline: true},
	}
	if rec.Topic != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "📌 主題", Value: rec.Topic})
	}
	fields = append(
		fields,
		&discordgo.MessageEmbedField{Name: "📄 總結", Value: rec.Summary},
		&discordgo.MessageEmbedField{Name: "🔗 來源", Value: rec.Source},
	)
	if rec.Note != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "📝 補充", Value: rec.Note})
	}

	created := rec.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return &discordgo.MessageEmbed{
		Title:     fmt.Sprintf("📝 %s 分享", rec.Category),
		Color:     announcementColor,
		Timestamp: created.UTC().Format(time.RFC3339),
		Fields:    fields,
	}
}
