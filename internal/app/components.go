package app

import (
	"github.com/rostertrack/rostertrack/internal/storage"
	pkgsync "github.com/rostertrack/rostertrack/internal/sync"
	"github.com/rostertrack/rostertrack/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Store persists tournaments, statuses and the change log
	Store storage.Store

	// SyncManager runs reconciliation for one tournament at a time
	SyncManager pkgsync.Manager

	// SyncCoordinator manages background synchronization
	SyncCoordinator coordinator.Coordinator
}

// Close releases the store. The coordinator must be stopped first.
func (c *AppComponents) Close() error {
	if c == nil || c.Store == nil {
		return nil
	}
	return c.Store.Close()
}
