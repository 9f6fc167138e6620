// Package coordinator schedules reconciliation runs for tracked tournaments.
//
// It sits on top of sync.Manager and handles:
//
//   - Periodic batches using time.Ticker with jitter
//   - An optional batch on startup
//   - Bounded parallelism within a batch
//   - Graceful shutdown
//
// # Batches
//
// A batch lists the tracked tournaments and calls Manager.SyncTournament
// for each of them, at most Concurrency at a time. A failed tournament is
// recorded in the BatchResult and the batch carries on with the others.
// Tournaments untracked while the batch runs are silently dropped.
//
// Batches never overlap. Within a process a second TriggerAll returns
// ErrBatchInProgress. When a lock file is configured the same holds
// across processes, so a one-shot "rostertrack sync" and a running
// server cannot sync the same store at the same time.
//
// # Usage
//
//	manager := sync.NewDefaultSyncManager(fetcher, store)
//	c := coordinator.New(manager, store, &cfg.Sync)
//
//	go func() {
//	    if err := c.Start(ctx); err != nil {
//	        slog.Error("coordinator failed", "error", err)
//	    }
//	}()
//
//	// ... run server ...
//
//	_ = c.Stop()
package coordinator
