package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rostertrack/rostertrack/internal/app"
)

var untrackCmd = &cobra.Command{
	Use:   "untrack <tournament-id>",
	Short: "Stop tracking a tournament",
	Long: `Stop tracking a tournament and delete its participant statuses and change log.
WARNING: the change log cannot be recovered afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runUntrack,
}

func init() {
	untrackCmd.Flags().BoolP("yes", "y", false, "Answer yes to all questions")
}

func runUntrack(cmd *cobra.Command, args []string) error {
	id := strings.TrimSpace(args[0])
	if id == "" {
		return fmt.Errorf("tournament id cannot be empty")
	}

	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return fmt.Errorf("failed to get yes flag: %w", err)
	}
	if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
		fmt.Sprintf("This deletes the change log of tournament %s. Continue?", id)) {
		slog.Info("Untrack cancelled by user")
		return fmt.Errorf("untrack cancelled by user")
	}

	return withComponents(cmd.Context(), func(c *app.AppComponents) error {
		if err := c.SyncManager.Untrack(cmd.Context(), id); err != nil {
			return err
		}
		_, err := fmt.Fprintf(cmd.OutOrStdout(), "Stopped tracking tournament %s\n", id)
		return err
	})
}

// confirm asks a yes/no question and reports whether the answer was yes
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	if _, err := fmt.Fprintf(out, "%s (yes/no): ", prompt); err != nil {
		return false
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "yes", "y":
		return true
	default:
		return false
	}
}
