package app

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rostertrack/rostertrack/internal/app"
	"github.com/rostertrack/rostertrack/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <tournament-id>",
	Short: "Export the participants of a tournament as CSV",
	Long: `Write every participant of a tracked tournament, active and left, as a
semicolon separated CSV file. The file is named <tournament-id>_participants.csv
unless --output is given; use --output - to write to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("output", "f", "", "Output file, or - for stdout")
}

// exportFileName is the default file name of a tournament export
func exportFileName(tournamentID string) string {
	return tournamentID + "_participants.csv"
}

func runExport(cmd *cobra.Command, args []string) error {
	id := args[0]
	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	if output == "" {
		output = exportFileName(id)
	}

	return withComponents(cmd.Context(), func(c *app.AppComponents) error {
		if _, err := c.Store.GetTournament(cmd.Context(), id); err != nil {
			return err
		}
		participants, err := c.Store.ListParticipants(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}

		if output == "-" {
			return export.WriteCSV(cmd.OutOrStdout(), participants)
		}

		f, err := os.Create(filepath.Clean(output))
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		if err := export.WriteCSV(f, participants); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("failed to close export file: %w", err)
		}

		slog.Info("Exported participants", "tournament", id, "count", len(participants), "file", output)
		return nil
	})
}
