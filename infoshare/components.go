package infoshare

import (
	"github.com/bwmarrin/discordgo"
	"strings"
)

const (
	customIDSeparator = ":"

	// discordCustomIDMaxLength is discord's limit on component and
	// modal custom IDs
	discordCustomIDMaxLength = 100
)

// joinCustomID builds a component custom ID from a handler prefix and
// a per-instance value.
func joinCustomID(prefix string, value string) string {
	if value == "" {
		return prefix
	}
	return prefix + customIDSeparator + value
}

// splitCustomID splits a custom ID produced by joinCustomID. The value
// may itself contain the separator.
func splitCustomID(customID string) (prefix string, value string) {
	prefix, value, _ = strings.Cut(customID, customIDSeparator)
	return prefix, value
}

// SelectMenu is a single-choice string select menu.
type SelectMenu struct {
	Prefix      string
	Value       string
	Placeholder string
	Options     []string
}

func (m SelectMenu) CustomID() string {
	return joinCustomID(m.Prefix, m.Value)
}

// Component returns the action row holding the select menu. Every option
// uses its text as both label and value, with no default selected.
func (m SelectMenu) Component() discordgo.MessageComponent {
	minValues := 1
	options := make([]discordgo.SelectMenuOption, 0, len(m.Options))
	for _, opt := range m.Options {
		options = append(
			options,
			discordgo.SelectMenuOption{Label: opt, Value: opt},
		)
	}
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.SelectMenu{
				MenuType:    discordgo.StringSelectMenu,
				CustomID:    m.CustomID(),
				Placeholder: m.Placeholder,
				MinValues:   &minValues,
				MaxValues:   1,
				Options:     options,
			},
		},
	}
}

// Response returns an ephemeral message holding only the select menu.
func (m SelectMenu) Response(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Flags:      discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{m.Component()},
		},
	}
}

// TextField is one text input of a ModalForm.
type TextField struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	MaxLength   int
	Paragraph   bool
}

func (f TextField) component() discordgo.MessageComponent {
	style := discordgo.TextInputShort
	if f.Paragraph {
		style = discordgo.TextInputParagraph
	}
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    f.ID,
				Label:       f.Label,
				Style:       style,
				Placeholder: f.Placeholder,
				Required:    f.Required,
				MaxLength:   f.MaxLength,
			},
		},
	}
}

// ModalForm is a modal of text inputs, one per row.
type ModalForm struct {
	Prefix string
	Value  string
	Title  string
	Fields []TextField
}

func (f ModalForm) CustomID() string {
	return joinCustomID(f.Prefix, f.Value)
}

// Response returns the interaction response which opens the modal.
func (f ModalForm) Response() *discordgo.InteractionResponse {
	rows := make([]discordgo.MessageComponent, 0, len(f.Fields))
	for _, field := range f.Fields {
		rows = append(rows, field.component())
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID:   f.CustomID(),
			Title:      f.Title,
			Components: rows,
		},
	}
}

// modalValues collects submitted text input values by custom ID.
// Inputs left blank are present with an empty value.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := map[string]string{}
	for _, comp := range data.Components {
		var row []discordgo.MessageComponent
		switch r := comp.(type) {
		case *discordgo.ActionsRow:
			row = r.Components
		case discordgo.ActionsRow:
			row = r.Components
		default:
			continue
		}
		for _, c := range row {
			switch input := c.(type) {
			case *discordgo.TextInput:
				values[input.CustomID] = input.Value
			case discordgo.TextInput:
				values[input.CustomID] = input.Value
			}
		}
	}
	return values
}
