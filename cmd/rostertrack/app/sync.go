package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rostertrack/rostertrack/internal/app"
	pkgsync "github.com/rostertrack/rostertrack/internal/sync"
	"github.com/rostertrack/rostertrack/internal/sync/coordinator"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile tracked tournaments once and exit",
	Long: `Fetch the current roster of tracked tournaments and record joined and left
participants, then exit. Without --tournament every tracked tournament is reconciled.

The command exits non-zero when any tournament fails.

Examples:
  # Reconcile every tracked tournament
  rostertrack sync --config config.yaml

  # Reconcile two tournaments
  rostertrack sync --config config.yaml --tournament 12345 --tournament 67890`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().StringSliceP("tournament", "t", nil, "Tournament to reconcile (repeatable)")
	addFormatFlag(syncCmd)
}

func runSync(cmd *cobra.Command, _ []string) error {
	ids, err := cmd.Flags().GetStringSlice("tournament")
	if err != nil {
		return fmt.Errorf("failed to get tournament flag: %w", err)
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("tournament id cannot be empty")
		}
	}

	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	return withComponents(cmd.Context(), func(c *app.AppComponents) error {
		var batch *coordinator.BatchResult
		if len(ids) == 0 {
			batch, err = c.SyncCoordinator.TriggerAll(cmd.Context())
			if err != nil {
				return err
			}
		} else {
			batch = syncSelected(cmd, c.SyncManager, ids)
		}

		if err := printBatch(cmd.OutOrStdout(), format, batch); err != nil {
			return err
		}

		if batch.Failed() > 0 {
			return fmt.Errorf("%d of %d tournaments failed to sync", batch.Failed(), batch.Failed()+batch.Succeeded())
		}
		return nil
	})
}

// syncSelected runs the named tournaments one after another
func syncSelected(cmd *cobra.Command, manager pkgsync.Manager, ids []string) *coordinator.BatchResult {
	batch := &coordinator.BatchResult{}
	for _, id := range ids {
		result, syncErr := manager.SyncTournament(cmd.Context(), id)
		if syncErr != nil {
			slog.Error("Sync failed", "tournament", id, "reason", syncErr.ConditionReason, "error", syncErr.Message)
			batch.Failures = append(batch.Failures, coordinator.Failure{
				TournamentID: id,
				Reason:       syncErr.ConditionReason,
				Message:      syncErr.Message,
			})
			continue
		}
		batch.Results = append(batch.Results, result)
	}
	return batch
}

func printBatch(w io.Writer, format string, batch *coordinator.BatchResult) error {
	if batch == nil {
		return errors.New("no batch result")
	}
	if format == formatJSON {
		return writeJSON(w, batch)
	}

	rows := make([][]string, 0, len(batch.Results)+len(batch.Failures))
	for _, r := range batch.Results {
		rows = append(rows, []string{
			r.TournamentID,
			"ok",
			strconv.Itoa(r.Joined),
			strconv.Itoa(r.Left),
			strconv.Itoa(r.ParticipantCount),
			"",
		})
	}
	for _, f := range batch.Failures {
		rows = append(rows, []string{f.TournamentID, f.Reason, "", "", "", f.Message})
	}
	return writeTable(w, []string{"TOURNAMENT", "RESULT", "JOINED", "LEFT", "ACTIVE", "ERROR"}, rows)
}
