package cmd

import (
	"errors"
	"fmt"
	"github.com/May-aiworks/discord-info-bot/infoshare"
	"github.com/spf13/cobra"
	"google.golang.org/api/option"
	"log/slog"
)

// sheetsOptions overrides the service account credentials. It's really
// only here to make testing easier.
var sheetsOptions []option.ClientOption

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Verify spreadsheet access and write the worksheet header row",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if cfg.Sheets == nil || !cfg.Sheets.Enabled() {
			return errors.New(
				"spreadsheet ID not set (set INFOSHARE_SHEETS_SPREADSHEET_ID or SPREADSHEET_ID)",
			)
		}

		var level slog.Leveler = infoshare.DefaultSheetsLogLevel
		if cfg.Sheets.LogLevel != nil {
			level = cfg.Sheets.LogLevel
		}
		logger := slog.New(infoshare.NewLogHandler(cmd.ErrOrStderr(), level))

		fmt.Fprintf(
			out,
			"Connecting to spreadsheet %s (worksheet %q)\n",
			cfg.Sheets.SpreadsheetID,
			cfg.Sheets.WorksheetName,
		)
		client, err := infoshare.NewSheetsClient(ctx, cfg.Sheets, logger, sheetsOptions...)
		if err != nil {
			return err
		}
		if err = client.EnsureHeaders(ctx); err != nil {
			return fmt.Errorf("error writing headers: %w", err)
		}
		fmt.Fprintln(out, "Worksheet headers are set.")
		fmt.Fprintln(
			out,
			"Initialization complete. You can now start the bot with the 'run' subcommand.",
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
