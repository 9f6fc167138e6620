package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rostertrack/rostertrack/internal/app"
)

var trackCmd = &cobra.Command{
	Use:   "track <tournament-id>",
	Short: "Start tracking a tournament",
	Long: `Start tracking a tournament. Tracking an already tracked tournament only
updates its name. With --initialize the first roster is fetched right away;
otherwise the next scheduled or manual sync records it.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrack,
}

func init() {
	trackCmd.Flags().String("name", "", "Human readable tournament name")
	trackCmd.Flags().Bool("initialize", false, "Fetch the initial roster immediately")
	addFormatFlag(trackCmd)
}

func runTrack(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return fmt.Errorf("tournament id cannot be empty")
	}

	name, err := cmd.Flags().GetString("name")
	if err != nil {
		return fmt.Errorf("failed to get name flag: %w", err)
	}
	initialize, err := cmd.Flags().GetBool("initialize")
	if err != nil {
		return fmt.Errorf("failed to get initialize flag: %w", err)
	}
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	return withComponents(cmd.Context(), func(c *app.AppComponents) error {
		result, err := c.SyncManager.Track(cmd.Context(), id, name, initialize)
		if err != nil {
			return err
		}

		tournament, err := c.Store.GetTournament(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("failed to read tracked tournament: %w", err)
		}

		if format == formatJSON {
			return writeJSON(cmd.OutOrStdout(), map[string]any{"tournament": tournament, "result": result})
		}
		if result != nil {
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Tracking tournament %s (%d active participants)\n", id, result.ParticipantCount)
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "Tracking tournament %s\n", id)
		return err
	})
}
