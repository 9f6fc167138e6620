package app

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rostertrack/rostertrack/internal/app"
	"github.com/rostertrack/rostertrack/internal/export"
	"github.com/rostertrack/rostertrack/internal/status"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"tournaments"},
	Short:   "List tracked tournaments",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var participantsCmd = &cobra.Command{
	Use:   "participants <tournament-id>",
	Short: "List the participants of a tracked tournament",
	Args:  cobra.ExactArgs(1),
	RunE:  runParticipants,
}

var changesCmd = &cobra.Command{
	Use:   "changes <tournament-id>",
	Short: "Show the change log of a tracked tournament",
	Args:  cobra.ExactArgs(1),
	RunE:  runChanges,
}

func init() {
	addFormatFlag(listCmd)

	addFormatFlag(participantsCmd)
	participantsCmd.Flags().String("status", "", "Only show participants with this status (active or left)")

	addFormatFlag(changesCmd)
	changesCmd.Flags().String("type", "", "Only show changes of this type (joined or left)")
}

func runList(cmd *cobra.Command, _ []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}

	return withComponents(cmd.Context(), func(c *app.AppComponents) error {
		tournaments, err := c.Store.ListTournaments(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list tournaments: %w", err)
		}

		if format == formatJSON {
			return writeJSON(cmd.OutOrStdout(), tournaments)
		}

		rows := make([][]string, 0, len(tournaments))
		for _, t := range tournaments {
			rows = append(rows, []string{
				t.TournamentID,
				t.DisplayName,
				strconv.Itoa(t.ParticipantCount),
				formatTime(t.LastRun),
				t.LastError,
			})
		}
		return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME", "ACTIVE", "LAST RUN", "LAST ERROR"}, rows)
	})
}

func runParticipants(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	statusFilter, err := cmd.Flags().GetString("status")
	if err != nil {
		return fmt.Errorf("failed to get status flag: %w", err)
	}
	switch status.ParticipantState(statusFilter) {
	case "", status.StateActive, status.StateLeft:
	default:
		return fmt.Errorf("invalid status %q: must be active or left", statusFilter)
	}

	return withComponents(cmd.Context(), func(c *app.AppComponents) error {
		if _, err := c.Store.GetTournament(cmd.Context(), args[0]); err != nil {
			return err
		}
		participants, err := c.Store.ListParticipants(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list participants: %w", err)
		}

		filtered := participants[:0]
		for _, p := range participants {
			if statusFilter == "" || string(p.Status) == statusFilter {
				filtered = append(filtered, p)
			}
		}

		if format == formatJSON {
			return writeJSON(cmd.OutOrStdout(), filtered)
		}

		rows := make([][]string, 0, len(filtered))
		for _, p := range filtered {
			rows = append(rows, []string{
				p.ParticipantID,
				p.DisplayName,
				string(p.Status),
				formatTime(&p.JoinedAt),
				formatTime(p.LeftAt),
			})
		}
		return writeTable(cmd.OutOrStdout(), []string{"ID", "NAME", "STATUS", "JOINED", "LEFT"}, rows)
	})
}

func runChanges(cmd *cobra.Command, args []string) error {
	format, err := outputFormat(cmd)
	if err != nil {
		return err
	}
	typeFilter, err := cmd.Flags().GetString("type")
	if err != nil {
		return fmt.Errorf("failed to get type flag: %w", err)
	}
	switch status.ChangeType(typeFilter) {
	case "", status.ChangeJoined, status.ChangeLeft:
	default:
		return fmt.Errorf("invalid type %q: must be joined or left", typeFilter)
	}

	return withComponents(cmd.Context(), func(c *app.AppComponents) error {
		if _, err := c.Store.GetTournament(cmd.Context(), args[0]); err != nil {
			return err
		}
		changes, err := c.Store.ListChanges(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to list changes: %w", err)
		}

		filtered := changes[:0]
		for _, e := range changes {
			if typeFilter == "" || string(e.ChangeType) == typeFilter {
				filtered = append(filtered, e)
			}
		}

		if format == formatJSON {
			return writeJSON(cmd.OutOrStdout(), filtered)
		}

		rows := make([][]string, 0, len(filtered))
		for _, e := range filtered {
			rows = append(rows, []string{
				strconv.FormatInt(e.ID, 10),
				e.ParticipantID,
				string(e.ChangeType),
				formatTime(&e.OccurredAt),
			})
		}
		return writeTable(cmd.OutOrStdout(), []string{"EVENT", "PARTICIPANT", "CHANGE", "AT"}, rows)
	})
}

// formatTime renders a timestamp the way the CSV export does; nil renders empty
func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(export.TimeLayout)
}
