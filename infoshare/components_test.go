package infoshare

import (
	"encoding/json"
	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestCustomID(t *testing.T) {
	tests := []struct {
		prefix string
		value  string
		want   string
	}{
		{"infoshare_category", "abc", "infoshare_category:abc"},
		{"infoshare_submit", "技術文章", "infoshare_submit:技術文章"},
		{"infoshare_submit", "a:b", "infoshare_submit:a:b"},
		{"help", "", "help"},
	}
	for _, tc := range tests {
		t.Run(
			tc.want, func(t *testing.T) {
				id := joinCustomID(tc.prefix, tc.value)
				assert.Equal(t, tc.want, id)

				prefix, value := splitCustomID(id)
				assert.Equal(t, tc.prefix, prefix)
				assert.Equal(t, tc.value, value)
			},
		)
	}
}

func TestSelectMenu(t *testing.T) {
	menu := SelectMenu{
		Prefix:      categoryPickerPrefix,
		Value:       "picker-id",
		Placeholder: categoryPickerPlaceholder,
		Options:     []string{"a", "b"},
	}
	resp := menu.Response("")
	assert.Equal(t, discordgo.InteractionResponseChannelMessageWithSource, resp.Type)
	require.NotNil(t, resp.Data)
	assert.Equal(t, discordgo.MessageFlagsEphemeral, resp.Data.Flags)
	require.Len(t, resp.Data.Components, 1)

	row, ok := resp.Data.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 1)
	sm, ok := row.Components[0].(discordgo.SelectMenu)
	require.True(t, ok)

	assert.Equal(t, discordgo.StringSelectMenu, sm.MenuType)
	assert.Equal(t, "infoshare_category:picker-id", sm.CustomID)
	assert.Equal(t, categoryPickerPlaceholder, sm.Placeholder)
	require.NotNil(t, sm.MinValues)
	assert.Equal(t, 1, *sm.MinValues)
	assert.Equal(t, 1, sm.MaxValues)
	assert.Equal(
		t,
		[]discordgo.SelectMenuOption{
			{Label: "a", Value: "a"},
			{Label: "b", Value: "b"},
		},
		sm.Options,
	)

	// must serialize for the API
	_, err := json.Marshal(resp)
	require.NoError(t, err)
}

func TestModalForm(t *testing.T) {
	form := ModalForm{
		Prefix: submitModalPrefix,
		Value:  "技術文章",
		Title:  submitModalTitle,
		Fields: submissionFields,
	}
	resp := form.Response()
	assert.Equal(t, discordgo.InteractionResponseModal, resp.Type)
	assert.Equal(t, "infoshare_submit:技術文章", resp.Data.CustomID)
	assert.Equal(t, submitModalTitle, resp.Data.Title)
	require.Len(t, resp.Data.Components, len(submissionFields))

	var inputs []discordgo.TextInput
	for _, c := range resp.Data.Components {
		row, ok := c.(discordgo.ActionsRow)
		require.True(t, ok)
		require.Len(t, row.Components, 1)
		input, ok := row.Components[0].(discordgo.TextInput)
		require.True(t, ok)
		inputs = append(inputs, input)
	}

	ids := make([]string, 0, len(inputs))
	for _, in := range inputs {
		ids = append(ids, in.CustomID)
	}
	assert.Equal(
		t,
		[]string{fieldTopic, fieldSummary, fieldSource, fieldPoints, fieldNote},
		ids,
	)

	assert.False(t, inputs[0].Required)
	assert.Equal(t, topicMaxLength, inputs[0].MaxLength)
	assert.True(t, inputs[1].Required)
	assert.Equal(t, summaryMaxLength, inputs[1].MaxLength)
	assert.True(t, inputs[2].Required)
	assert.Equal(t, sourceMaxLength, inputs[2].MaxLength)
	assert.True(t, inputs[3].Required)
	assert.Equal(t, pointsMaxLength, inputs[3].MaxLength)
	assert.False(t, inputs[4].Required)
	assert.Equal(t, noteMaxLength, inputs[4].MaxLength)
	assert.Equal(t, discordgo.TextInputParagraph, inputs[4].Style)
	assert.Equal(t, discordgo.TextInputShort, inputs[0].Style)

	_, err := json.Marshal(resp)
	require.NoError(t, err)
}

func TestModalValues(t *testing.T) {
	data := discordgo.ModalSubmitInteractionData{
		CustomID: "infoshare_submit:其他",
		Components: []discordgo.MessageComponent{
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: fieldSummary, Value: "pointer"},
				},
			},
			discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					discordgo.TextInput{CustomID: fieldSource, Value: "value"},
				},
			},
			&discordgo.ActionsRow{
				Components: []discordgo.MessageComponent{
					&discordgo.TextInput{CustomID: fieldNote, Value: ""},
				},
			},
			&discordgo.Button{CustomID: "ignored"},
		},
	}
	assert.Equal(
		t,
		map[string]string{
			fieldSummary: "pointer",
			fieldSource:  "value",
			fieldNote:    "",
		},
		modalValues(data),
	)
}

// Modal submissions decoded by discordgo carry pointer components
func TestModalValues_FromJSON(t *testing.T) {
	raw := `{
		"id": "1",
		"type": 5,
		"channel_id": "c",
		"member": {"user": {"id": "u", "username": "user"}},
		"data": {
			"custom_id": "infoshare_submit:其他",
			"components": [
				{"type": 1, "components": [{"type": 4, "custom_id": "summary", "value": "hello"}]},
				{"type": 1, "components": [{"type": 4, "custom_id": "source", "value": "world"}]}
			]
		}
	}`
	var i discordgo.InteractionCreate
	require.NoError(t, json.Unmarshal([]byte(raw), &i))

	values := modalValues(i.ModalSubmitData())
	assert.Equal(t, "hello", values[fieldSummary])
	assert.Equal(t, "world", values[fieldSource])
}
