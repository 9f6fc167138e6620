package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	gosync "sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/rostertrack/rostertrack/internal/config"
	"github.com/rostertrack/rostertrack/internal/storage"
	pkgsync "github.com/rostertrack/rostertrack/internal/sync"
)

// ErrBatchInProgress is returned when another batch holds the batch lock
var ErrBatchInProgress = errors.New("a sync batch is already running")

// Coordinator schedules reconciliation runs for every tracked tournament
//
//go:generate mockgen -destination=mocks/mock_coordinator.go -package=mocks github.com/rostertrack/rostertrack/internal/sync/coordinator Coordinator
type Coordinator interface {
	// Start begins the background sync loop.
	// Blocks until the context is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator, waiting for the running batch to finish
	Stop() error

	// TriggerAll runs one batch over all tracked tournaments immediately
	TriggerAll(ctx context.Context) (*BatchResult, error)
}

// Failure describes one tournament whose run failed within a batch
type Failure struct {
	TournamentID string `json:"tournamentId"`
	Reason       string `json:"reason"`
	Message      string `json:"message"`
}

// BatchResult summarises one batch
type BatchResult struct {
	StartedAt time.Time         `json:"startedAt"`
	Duration  time.Duration     `json:"duration"`
	Results   []*pkgsync.Result `json:"results"`
	Failures  []Failure         `json:"failures"`
}

// Succeeded returns the number of tournaments synced successfully
func (b *BatchResult) Succeeded() int {
	return len(b.Results)
}

// Failed returns the number of tournaments whose run failed
func (b *BatchResult) Failed() int {
	return len(b.Failures)
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	manager pkgsync.Manager
	store   storage.Store

	interval    time.Duration
	concurrency int
	runOnStart  bool

	// batchMu keeps batches in this process from overlapping
	batchMu gosync.Mutex
	// fileLock keeps batches of different processes from overlapping
	fileLock *flock.Flock

	// Lifecycle management
	mu         gosync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithInterval overrides the period between batches
func WithInterval(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		if interval > 0 {
			c.interval = interval
		}
	}
}

// WithConcurrency overrides the number of tournaments synced in parallel
func WithConcurrency(n int) Option {
	return func(c *defaultCoordinator) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithRunOnStart sets whether Start runs a batch before the first tick
func WithRunOnStart(runOnStart bool) Option {
	return func(c *defaultCoordinator) {
		c.runOnStart = runOnStart
	}
}

// WithLockFile sets the file used to keep batches of separate processes
// from overlapping. An empty path disables the file lock.
func WithLockFile(path string) Option {
	return func(c *defaultCoordinator) {
		if path == "" {
			c.fileLock = nil
			return
		}
		c.fileLock = flock.New(path)
	}
}

// New creates a new coordinator configured from the sync section of the configuration
func New(manager pkgsync.Manager, store storage.Store, cfg *config.SyncConfig, opts ...Option) Coordinator {
	if cfg == nil {
		cfg = &config.SyncConfig{}
	}

	c := &defaultCoordinator{
		manager:     manager,
		store:       store,
		interval:    cfg.GetInterval(),
		concurrency: cfg.GetConcurrency(),
		runOnStart:  cfg.GetRunOnStart(),
	}
	if cfg.LockFile != "" {
		c.fileLock = flock.New(cfg.LockFile)
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Start begins the background sync loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already started")
	}
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	defer func() {
		close(done)
		slog.Info("Background sync coordinator shutting down")
	}()

	slog.Info("Starting background sync coordinator",
		"interval", c.interval,
		"concurrency", c.concurrency,
		"run_on_start", c.runOnStart)

	if c.runOnStart {
		c.runScheduledBatch(coordCtx)
	}

	ticker := time.NewTicker(jitteredInterval(c.interval))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runScheduledBatch(coordCtx)

			// New jitter for the next iteration
			ticker.Reset(jitteredInterval(c.interval))
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel, done := c.cancelFunc, c.done
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-done
	}
	return nil
}

// runScheduledBatch runs a batch from the ticker, logging instead of returning errors
func (c *defaultCoordinator) runScheduledBatch(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	result, err := c.TriggerAll(ctx)
	if errors.Is(err, ErrBatchInProgress) {
		slog.Info("Skipping scheduled batch, another batch is running")
		return
	}
	if err != nil {
		slog.Error("Scheduled batch failed", "error", err)
		return
	}

	slog.Info("Scheduled batch completed",
		"succeeded", result.Succeeded(),
		"failed", result.Failed(),
		"duration", result.Duration)
}

// TriggerAll runs one batch over all tracked tournaments. Failures of
// individual tournaments are collected in the result and do not stop the batch.
func (c *defaultCoordinator) TriggerAll(ctx context.Context) (*BatchResult, error) {
	release, err := c.acquireBatch()
	if err != nil {
		return nil, err
	}
	defer release()

	tournaments, err := c.store.ListTournaments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracked tournaments: %w", err)
	}

	batch := &BatchResult{
		StartedAt: time.Now().UTC(),
		Results:   []*pkgsync.Result{},
		Failures:  []Failure{},
	}

	var mu gosync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for _, t := range tournaments {
		tournamentID := t.TournamentID
		g.Go(func() error {
			result, syncErr := c.manager.SyncTournament(gctx, tournamentID)

			mu.Lock()
			defer mu.Unlock()

			switch {
			case syncErr == nil:
				batch.Results = append(batch.Results, result)
			case syncErr.ConditionReason == pkgsync.ConditionReasonNotTracked:
				// Untracked while the batch was running
				slog.Debug("Tournament untracked during batch", "tournament", tournamentID)
			default:
				batch.Failures = append(batch.Failures, Failure{
					TournamentID: tournamentID,
					Reason:       syncErr.ConditionReason,
					Message:      syncErr.Message,
				})
			}
			return nil
		})
	}

	// Workers never return errors, failures are collected in the batch
	_ = g.Wait()

	slices.SortFunc(batch.Results, func(a, b *pkgsync.Result) int {
		return strings.Compare(a.TournamentID, b.TournamentID)
	})
	slices.SortFunc(batch.Failures, func(a, b Failure) int {
		return strings.Compare(a.TournamentID, b.TournamentID)
	})
	batch.Duration = time.Since(batch.StartedAt)

	return batch, nil
}

// acquireBatch takes the in-process batch lock and, when configured, the
// lock file. The returned function releases both.
func (c *defaultCoordinator) acquireBatch() (func(), error) {
	if !c.batchMu.TryLock() {
		return nil, ErrBatchInProgress
	}

	if c.fileLock == nil {
		return c.batchMu.Unlock, nil
	}

	locked, err := c.fileLock.TryLock()
	if err != nil {
		c.batchMu.Unlock()
		return nil, fmt.Errorf("failed to acquire batch lock file %s: %w", c.fileLock.Path(), err)
	}
	if !locked {
		c.batchMu.Unlock()
		return nil, ErrBatchInProgress
	}

	return func() {
		if err := c.fileLock.Unlock(); err != nil {
			slog.Warn("Failed to release batch lock file", "path", c.fileLock.Path(), "error", err)
		}
		c.batchMu.Unlock()
	}, nil
}
