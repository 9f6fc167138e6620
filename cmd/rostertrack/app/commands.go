// Package app provides the command line interface of the roster tracker.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rostertrack/rostertrack/internal/app"
	"github.com/rostertrack/rostertrack/internal/config"
	"github.com/rostertrack/rostertrack/internal/versions"
)

// LogLevel is the level of the process-wide logger; --debug lowers it
var LogLevel = new(slog.LevelVar)

const (
	formatTable = "table"
	formatJSON  = "json"
)

var rootCmd = &cobra.Command{
	Use:               "rostertrack",
	DisableAutoGenTag: true,
	Short:             "Tournament roster tracker",
	Long: `rostertrack polls the CueScore API for the participants of tracked tournaments,
records who joined and who left, and serves the result over a REST API.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if viper.GetBool("debug") {
			LogLevel.Set(slog.LevelDebug)
		}
	},
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			slog.Error("Error displaying help", "error", err)
		}
	},
}

// NewRootCmd creates a new root command for the tracker.
func NewRootCmd() *cobra.Command {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format)")
	for _, name := range []string{"debug", "config"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			slog.Error("Error binding flag", "flag", name, "error", err)
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(trackCmd)
	rootCmd.AddCommand(untrackCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(participantsCmd)
	rootCmd.AddCommand(changesCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)

	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := versions.GetVersionInfo()
		format, err := cmd.Flags().GetString("format")
		if err != nil {
			return fmt.Errorf("failed to get format flag: %w", err)
		}

		if format == formatJSON {
			return writeJSON(cmd.OutOrStdout(), info)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), info.String())
		return err
	},
}

func init() {
	versionCmd.Flags().String("format", "", "Output format (json)")
}

// loadConfig loads the file named by --config or ROSTERTRACK_CONFIG.
// Without one the built-in defaults are used.
func loadConfig() (*config.Config, error) {
	var opts []config.Option
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// withComponents builds the store and sync components, runs fn and closes them
func withComponents(ctx context.Context, fn func(*app.AppComponents) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	components, err := app.BuildComponents(ctx, app.WithConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			slog.Warn("Failed to close store", "error", err)
		}
	}()

	return fn(components)
}

// outputFormat reads and checks the --format flag of a listing command
func outputFormat(cmd *cobra.Command) (string, error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", fmt.Errorf("failed to get format flag: %w", err)
	}
	switch format {
	case formatTable, formatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported format %q: must be table or json", format)
	}
}

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "o", formatTable, "Output format (table or json)")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeTable prints a header and rows aligned in columns
func writeTable(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
