package infoshare

import (
	"errors"
	"fmt"
	"github.com/bwmarrin/discordgo"
	"github.com/go-playground/validator/v10"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const (
	fieldTopic   = "topic"
	fieldSummary = "summary"
	fieldSource  = "source"
	fieldPoints  = "aiworks_points"
	fieldNote    = "note"

	topicMaxLength   = 100
	summaryMaxLength = 200
	sourceMaxLength  = 500
	pointsMaxLength  = 50
	noteMaxLength    = 1000
)

// SourceKind classifies the submitted source.
type SourceKind string

const (
	SourceKindURL  SourceKind = "url"
	SourceKindText SourceKind = "text"
)

var (
	ErrNoSubmitter = errors.New("interaction has no user")

	// sourceURLPattern accepts http(s) URLs whose host is a domain name,
	// localhost or a dotted IPv4 address
	sourceURLPattern = regexp.MustCompile(
		`(?i)^https?://` +
			`(?:(?:[A-Z0-9](?:[A-Z0-9-]{0,61}[A-Z0-9])?\.)+[A-Z]{2,6}\.?|` +
			`localhost|` +
			`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})` +
			`(?::\d+)?` +
			`(?:/?|[/?]\S+)$`,
	)
)

// ClassifySource reports whether s looks like a web URL.
func ClassifySource(s string) SourceKind {
	if sourceURLPattern.MatchString(s) {
		return SourceKindURL
	}
	return SourceKindText
}

// submissionFields are the modal's inputs, in display order.
var submissionFields = []TextField{
	{
		ID:          fieldTopic,
		Label:       "主題",
		Placeholder: "請輸入主題（選填）",
		MaxLength:   topicMaxLength,
	},
	{
		ID:          fieldSummary,
		Label:       "一句話總結",
		Placeholder: "請用一句話總結這則資訊",
		Required:    true,
		MaxLength:   summaryMaxLength,
	},
	{
		ID:          fieldSource,
		Label:       "來源或連結",
		Placeholder: "請輸入網址或其他來源資訊",
		Required:    true,
		MaxLength:   sourceMaxLength,
	},
	{
		ID:          fieldPoints,
		Label:       "Aiworks 點",
		Placeholder: "請輸入 Aiworks 點數（可填「無」）",
		Required:    true,
		MaxLength:   pointsMaxLength,
	},
	{
		ID:          fieldNote,
		Label:       "補充",
		Placeholder: "其他補充說明（選填）",
		MaxLength:   noteMaxLength,
		Paragraph:   true,
	},
}

// SubmissionInput holds the raw values of a submitted form.
//
//nolint:lll // struct tags can't be split
type SubmissionInput struct {
	Category string `json:"category" binding:"required"`
	Topic    string `json:"topic" binding:"max=100"`
	Summary  string `json:"summary" binding:"required,max=200"`
	Source   string `json:"source" binding:"required,max=500"`
	Points   string `json:"aiworks_points" binding:"required,max=50"`
	Note     string `json:"note" binding:"max=1000"`
}

// submissionInputFromModal reads the form values of a modal submission
func submissionInputFromModal(
	category string,
	data discordgo.ModalSubmitInteractionData,
) SubmissionInput {
	values := modalValues(data)
	return SubmissionInput{
		Category: category,
		Topic:    values[fieldTopic],
		Summary:  values[fieldSummary],
		Source:   values[fieldSource],
		Points:   values[fieldPoints],
		Note:     values[fieldNote],
	}
}

func (s SubmissionInput) trimmed() SubmissionInput {
	return SubmissionInput{
		Category: strings.TrimSpace(s.Category),
		Topic:    strings.TrimSpace(s.Topic),
		Summary:  strings.TrimSpace(s.Summary),
		Source:   strings.TrimSpace(s.Source),
		Points:   strings.TrimSpace(s.Points),
		Note:     strings.TrimSpace(s.Note),
	}
}

// FieldError describes one invalid form field, in terms the submitter
// will recognize.
type FieldError struct {
	Field string
	Label string
	Tag   string
	Param string
}

func (e FieldError) Error() string {
	switch e.Tag {
	case "required":
		return fmt.Sprintf("「%s」為必填欄位", e.Label)
	case "max":
		return fmt.Sprintf("「%s」不可超過 %s 個字", e.Label, e.Param)
	default:
		return fmt.Sprintf("「%s」格式不正確", e.Label)
	}
}

// fieldLabel maps SubmissionInput's struct fields to the labels shown
// on the form
func fieldLabel(structField string) string {
	switch structField {
	case "Category":
		return "分類"
	case "Topic":
		return submissionFields[0].Label
	case "Summary":
		return submissionFields[1].Label
	case "Source":
		return submissionFields[2].Label
	case "Points":
		return submissionFields[3].Label
	case "Note":
		return submissionFields[4].Label
	default:
		return structField
	}
}

// Validate checks the input against its `binding` tags.
func (s SubmissionInput) Validate() error {
	err := structValidator.Struct(s)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}
	errs := make([]error, 0, len(validationErrs))
	for _, fe := range validationErrs {
		errs = append(
			errs,
			FieldError{
				Field: fe.Field(),
				Label: fieldLabel(fe.StructField()),
				Tag:   fe.Tag(),
				Param: fe.Param(),
			},
		)
	}
	return errors.Join(errs...)
}

// SubmissionRecord is one validated, immutable submission, built from
// a form and tagged with its submitter.
type SubmissionRecord struct {
	Category      string     `json:"category"`
	Topic         string     `json:"topic,omitempty"`
	Summary       string     `json:"summary"`
	Source        string     `json:"source"`
	SourceKind    SourceKind `json:"source_kind"`
	Points        string     `json:"aiworks_points"`
	Note          string     `json:"note,omitempty"`
	SubmitterName string     `json:"submitter_name"`
	SubmitterID   string     `json:"submitter_id"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (r SubmissionRecord) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("category", r.Category),
		slog.String("summary", truncate(r.Summary, 50)),
		slog.String("source_kind", string(r.SourceKind)),
		slog.String("submitter_id", r.SubmitterID),
		slog.String("submitter_name", r.SubmitterName),
	)
}

// NewSubmissionRecord trims and validates the input, then builds a
// record attributed to submitter. The category must be a member of
// categories. A source that isn't a URL is kept exactly as typed.
func NewSubmissionRecord(
	categories *CategorySet,
	input SubmissionInput,
	submitter *discordgo.User,
	createdAt time.Time,
) (SubmissionRecord, error) {
	input = input.trimmed()
	if err := input.Validate(); err != nil {
		return SubmissionRecord{}, err
	}
	if !categories.Contains(input.Category) {
		return SubmissionRecord{}, fmt.Errorf(
			"%w: %q",
			ErrCategoryNotAllowed,
			input.Category,
		)
	}
	if submitter == nil {
		return SubmissionRecord{}, ErrNoSubmitter
	}

	return SubmissionRecord{
		Category:      input.Category,
		Topic:         input.Topic,
		Summary:       input.Summary,
		Source:        input.Source,
		SourceKind:    ClassifySource(input.Source),
		Points:        input.Points,
		Note:          input.Note,
		SubmitterName: submitter.Username,
		SubmitterID:   submitter.ID,
		CreatedAt:     createdAt,
	}, nil
}
