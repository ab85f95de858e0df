// Package infoshare implements a Discord bot that lets members share useful
// articles, tools and resources through a guided slash command flow.
//
// A member runs /infoshare, picks a category from an ephemeral dropdown and
// fills in a modal form. The bot republishes the submission as an embed in
// the same channel, confirms privately to the submitter, and (when
// configured) appends the submission as a row in a Google Sheets worksheet.
//
// Key components of the package include:
//
//   - InfoShare: The main struct that owns the Discord session, the command
//     registry and the bot lifecycle.
//   - Feature: A loadable group of slash commands ("share" and "help").
//   - SelectMenu and ModalForm: Declarative schemas for the interactive
//     components the share flow shows.
//   - Publisher: Formats a SubmissionRecord into the public announcement and
//     the private acknowledgment.
//   - SheetsClient: Appends submissions to a worksheet and maintains its
//     header row.
//
// The bot supports the following commands:
//
//   - /infoshare: Starts the share flow.
//   - /help: Lists the registered commands and loaded features.
//
// Interactions are received over the Discord gateway by default, or over an
// HTTP webhook endpoint when the webhook server is enabled.
package infoshare
