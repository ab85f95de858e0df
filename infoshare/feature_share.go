package infoshare

import (
	"context"
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"log/slog"
	"time"
)

const (
	shareCommandName        = "infoshare"
	shareCommandDescription = "分享有用的資訊、文章或資源"

	categoryPickerPrefix = "infoshare_category"
	submitModalPrefix    = "infoshare_submit"

	categoryPickerPlaceholder = "請選擇分類..."
	submitModalTitle          = "分享資訊"

	msgPickerExpired  = "⏰ 此選單已過期，請重新使用 /infoshare 指令。"
	msgCategoryChosen = "已選擇分類：**%s**"
)

// ShareFeature provides /infoshare: a category picker, followed by a
// submission form, followed by a public announcement of the submission.
type ShareFeature struct {
	categories   *CategorySet
	sheetsConfig *SheetsConfig
	session      DiscordSessionHandler
	logger       *slog.Logger

	pickers   *componentStore
	publisher *Publisher
	sheets    *SheetsClient

	newSheetsClient func(
		ctx context.Context,
		cfg *SheetsConfig,
		logger *slog.Logger,
	) (*SheetsClient, error)
	now func() time.Time
}

// NewShareFeature returns a ShareFeature offering the given categories.
// The spreadsheet is only used if sheetsConfig has a spreadsheet ID.
func NewShareFeature(
	categories *CategorySet,
	sheetsConfig *SheetsConfig,
	session DiscordSessionHandler,
	logger *slog.Logger,
) *ShareFeature {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShareFeature{
		categories:   categories,
		sheetsConfig: sheetsConfig,
		session:      session,
		logger:       logger.With(loggerNameKey, "share"),
		newSheetsClient: func(
			ctx context.Context,
			cfg *SheetsConfig,
			logger *slog.Logger,
		) (*SheetsClient, error) {
			return NewSheetsClient(ctx, cfg, logger)
		},
		now: time.Now,
	}
}

func (*ShareFeature) Name() string {
	return "share"
}

// Load connects to the spreadsheet (if configured) and makes sure its
// header row exists, then registers /infoshare and its component
// handlers. Spreadsheet failures only disable the spreadsheet.
func (s *ShareFeature) Load(ctx context.Context, r *Registry) error {
	if s.categories == nil || s.categories.Len() == 0 {
		return ErrNoCategories
	}

	s.sheets = nil
	switch {
	case s.sheetsConfig == nil || !s.sheetsConfig.Enabled():
		s.logger.InfoContext(ctx, "google sheets not configured, records won't be saved")
	default:
		client, err := s.newSheetsClient(
			ctx,
			s.sheetsConfig,
			s.logger.With(loggerNameKey, "sheets"),
		)
		if err != nil {
			s.logger.ErrorContext(ctx, "google sheets disabled", tint.Err(err))
			break
		}
		s.sheets = client
		if headerErr := client.EnsureHeaders(ctx); headerErr != nil {
			s.logger.WarnContext(ctx, "unable to initialize headers", tint.Err(headerErr))
		}
	}

	var sheetsClient SpreadsheetClient
	if s.sheets != nil {
		sheetsClient = s.sheets
	}
	s.publisher = NewPublisher(s.session, sheetsClient, s.logger)
	s.pickers = newComponentStore(categoryPickerTimeout, s.expirePicker)

	return errors.Join(
		r.AddCommand(
			Command{
				Name:        shareCommandName,
				Description: shareCommandDescription,
				Handler:     s.handleShareCommand,
			},
		),
		r.AddComponentHandler(categoryPickerPrefix, s.handleCategorySelect),
		r.AddModalHandler(submitModalPrefix, s.handleSubmit),
	)
}

// Close discards outstanding pickers
func (s *ShareFeature) Close() error {
	if s.pickers != nil {
		s.pickers.Close()
	}
	return nil
}

// SheetsEnabled reports whether records are being saved to a spreadsheet
func (s *ShareFeature) SheetsEnabled() bool {
	return s.sheets != nil
}

func (s *ShareFeature) categoryMenu(pickerID string) SelectMenu {
	return SelectMenu{
		Prefix:      categoryPickerPrefix,
		Value:       pickerID,
		Placeholder: categoryPickerPlaceholder,
		Options:     s.categories.Names(),
	}
}

// submissionForm returns the modal for the given category. The category
// travels in the modal's custom ID, so it can't change once chosen.
func (*ShareFeature) submissionForm(category string) ModalForm {
	return ModalForm{
		Prefix: submitModalPrefix,
		Value:  category,
		Title:  submitModalTitle,
		Fields: submissionFields,
	}
}

func (s *ShareFeature) handleShareCommand(ctx context.Context, handler InteractionHandler) {
	logger := loggerFromContext(ctx, s.logger)

	pickerID := s.pickers.Add(handler)
	menu := s.categoryMenu(pickerID)
	if err := handler.Respond(ctx, menu.Response("")); err != nil {
		logger.ErrorContext(ctx, "error sending category picker", tint.Err(err))
		s.pickers.Take(pickerID)
		return
	}
	logger.InfoContext(ctx, "sent category picker", "picker_id", pickerID)
}

func (s *ShareFeature) handleCategorySelect(ctx context.Context, handler InteractionHandler) {
	logger := loggerFromContext(ctx, s.logger)
	data := handler.GetInteraction().MessageComponentData()

	// an invalid selection leaves the picker in place, so it can be retried
	if len(data.Values) != 1 {
		s.respond(
			ctx,
			handler,
			ephemeralMessage(fmt.Sprintf(msgErrorTemplate, "請選擇一個分類")),
		)
		return
	}
	category := data.Values[0]
	if !s.categories.Contains(category) {
		logger.WarnContext(ctx, "unknown category selected", "category", category)
		s.respond(
			ctx,
			handler,
			ephemeralMessage(fmt.Sprintf(msgErrorTemplate, ErrCategoryNotAllowed.Error())),
		)
		return
	}

	_, pickerID := splitCustomID(data.CustomID)
	picker, ok := s.pickers.Take(pickerID)
	if !ok {
		logger.InfoContext(ctx, "selection on expired picker", "picker_id", pickerID)
		s.respond(ctx, handler, ephemeralMessage(msgPickerExpired))
		return
	}

	if !s.respond(ctx, handler, s.submissionForm(category).Response()) {
		return
	}
	logger.InfoContext(ctx, "sent submission form", "category", category)

	// the picker has been used, so replace it with the choice
	content := fmt.Sprintf(msgCategoryChosen, category)
	if _, err := picker.handler.Edit(
		ctx,
		&discordgo.WebhookEdit{
			Content:    &content,
			Components: &[]discordgo.MessageComponent{},
		},
	); err != nil {
		logger.WarnContext(ctx, "unable to update category picker", tint.Err(err))
	}
}

func (s *ShareFeature) handleSubmit(ctx context.Context, handler InteractionHandler) {
	logger := loggerFromContext(ctx, s.logger)
	i := handler.GetInteraction()
	data := i.ModalSubmitData()
	_, category := splitCustomID(data.CustomID)

	rec, err := s.buildRecord(category, data, interactionUser(i))
	if err != nil {
		logger.WarnContext(ctx, "invalid submission", tint.Err(err), "category", category)
		s.respond(ctx, handler, ephemeralMessage(fmt.Sprintf(msgErrorTemplate, err.Error())))
		return
	}
	logger.InfoContext(
		ctx,
		"received submission",
		"record", rec,
		"source_kind", rec.SourceKind,
	)

	if _, err = s.publisher.Publish(ctx, handler, rec); err != nil {
		logger.ErrorContext(ctx, "error publishing submission", tint.Err(err))
	}
}

// buildRecord builds the submission record, converting a panic into
// an error
func (s *ShareFeature) buildRecord(
	category string,
	data discordgo.ModalSubmitInteractionData,
	submitter *discordgo.User,
) (rec SubmissionRecord, err error) {
	defer func() {
		if rc := recover(); rc != nil {
			err = fmt.Errorf("%v", rc)
		}
	}()
	return NewSubmissionRecord(
		s.categories,
		submissionInputFromModal(category, data),
		submitter,
		s.now(),
	)
}

// expirePicker removes the menu from an expired picker's message
func (s *ShareFeature) expirePicker(picker *pickerSession) {
	ctx := context.Background()
	content := msgPickerExpired
	if _, err := picker.handler.Edit(
		ctx,
		&discordgo.WebhookEdit{
			Content:    &content,
			Components: &[]discordgo.MessageComponent{},
		},
	); err != nil {
		s.logger.WarnContext(ctx, "unable to clear expired picker", tint.Err(err))
		return
	}
	s.logger.DebugContext(
		ctx,
		"cleared expired picker",
		"picker_id", picker.id,
		"age", time.Since(picker.createdAt),
	)
}

// respond sends the response, logging any failure. It reports whether
// the response was sent.
func (s *ShareFeature) respond(
	ctx context.Context,
	handler InteractionHandler,
	resp *discordgo.InteractionResponse,
) bool {
	if err := handler.Respond(ctx, resp); err != nil {
		loggerFromContext(ctx, s.logger).ErrorContext(
			ctx,
			"error responding to interaction",
			tint.Err(err),
		)
		return false
	}
	return true
}
