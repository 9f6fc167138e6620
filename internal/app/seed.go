package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rostertrack/rostertrack/internal/config"
	pkgsync "github.com/rostertrack/rostertrack/internal/sync"
)

// InitializeTrackedTournaments ensures every tournament listed in the
// configuration is tracked. It is idempotent and safe to call on every
// startup: already tracked tournaments only get their name refreshed, and
// no roster is fetched here.
func InitializeTrackedTournaments(ctx context.Context, cfg *config.Config, manager pkgsync.Manager) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if manager == nil {
		return fmt.Errorf("sync manager is required")
	}

	if len(cfg.Tournaments) == 0 {
		slog.Info("No tournaments listed in config")
		return nil
	}

	for _, t := range cfg.Tournaments {
		if _, err := manager.Track(ctx, t.ID, t.Name, false); err != nil {
			return fmt.Errorf("failed to track configured tournament '%s': %w", t.ID, err)
		}
	}

	slog.Info("Initialized tournaments from config", "count", len(cfg.Tournaments))
	return nil
}
