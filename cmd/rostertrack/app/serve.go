package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rostertrack/rostertrack/database"
	"github.com/rostertrack/rostertrack/internal/app"
	"github.com/rostertrack/rostertrack/internal/config"
	"github.com/rostertrack/rostertrack/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracker API server and the sync scheduler",
	Long: `Start the REST API server and reconcile every tracked tournament on a schedule.

The configuration file (--config) specifies:
- The roster API endpoint and retry policy
- The sync interval, concurrency and rejoin policy
- The storage backend and the tournaments tracked from startup`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	telemetryFlushTimeout  = 5 * time.Second
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address to listen on")
	serveCmd.Flags().Bool("migrate", false, "Apply pending database migrations before starting (postgres storage only)")

	for _, name := range []string{"address", "migrate"} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			slog.Error("Failed to bind flag", "flag", name, "error", err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if viper.GetBool("migrate") {
		if err := migrateOnStart(cfg); err != nil {
			return err
		}
	}

	tel, err := telemetry.New(ctx, telemetry.WithTelemetryConfig(cfg.Telemetry))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shut down telemetry", "error", err)
		}
	}()

	rosterApp, err := app.NewRosterApp(ctx,
		app.WithConfig(cfg),
		app.WithAddress(viper.GetString("address")),
		app.WithMeterProvider(tel.MeterProvider()),
		app.WithTracerProvider(tel.TracerProvider()),
		app.WithMetricsHandler(tel.MetricsHandler()),
	)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	slog.Info("Starting roster tracker",
		"address", viper.GetString("address"),
		"storage", cfg.GetStorageType(),
		"interval", cfg.Sync.GetInterval(),
		"tournaments", len(cfg.Tournaments),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- rosterApp.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errChan:
		if stopErr := rosterApp.Stop(defaultGracefulTimeout); stopErr != nil {
			slog.Error("Failed to stop application", "error", stopErr)
		}
		return err
	case sig := <-quit:
		slog.Info("Received signal", "signal", sig.String())
	}

	return rosterApp.Stop(defaultGracefulTimeout)
}

// migrateOnStart applies pending migrations when the store is backed by Postgres
func migrateOnStart(cfg *config.Config) error {
	if cfg.GetStorageType() != config.StorageTypePostgres {
		slog.Info("Skipping migrations, storage is not postgres", "storage", cfg.GetStorageType())
		return nil
	}

	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return fmt.Errorf("failed to build connection string: %w", err)
	}

	slog.Info("Applying database migrations")
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
