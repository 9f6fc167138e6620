package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rostertrack/rostertrack/internal/otel"
	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/sources"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
	"github.com/rostertrack/rostertrack/internal/telemetry"
)

// TracerName is the name used for sync spans
const TracerName = "github.com/rostertrack/rostertrack/sync"

// Result contains the result of a successful reconciliation run
type Result struct {
	// RunID identifies the run in logs
	RunID        string        `json:"runId"`
	TournamentID string        `json:"tournamentId"`
	Joined       int           `json:"joined"`
	Left         int           `json:"left"`
	Rejoined     int           `json:"rejoined"`
	Bootstrap    bool          `json:"bootstrap"`
	Duration     time.Duration `json:"duration"`

	// ParticipantCount is the number of active participants after the run
	ParticipantCount int `json:"participantCount"`
}

// Condition reasons for failed runs
const (
	ConditionReasonFetchFailed   = "FetchFailed"
	ConditionReasonStorageFailed = "StorageFailed"
	ConditionReasonNotTracked    = "NotTracked"
)

// Condition types for failed runs
const (
	// ConditionSourceAvailable indicates whether the roster source could be read
	ConditionSourceAvailable = "SourceAvailable"

	// ConditionSyncSuccessful indicates whether the last run was applied
	ConditionSyncSuccessful = "SyncSuccessful"

	// ConditionTracked indicates whether the tournament is tracked at all
	ConditionTracked = "Tracked"
)

// Error represents a structured error with condition information
type Error struct {
	Err             error
	Message         string
	ConditionType   string
	ConditionReason string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Manager manages reconciliation runs for tracked tournaments
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/rostertrack/rostertrack/internal/sync Manager
type Manager interface {
	// SyncTournament fetches the roster of a tournament and applies the transitions
	SyncTournament(ctx context.Context, tournamentID string) (*Result, *Error)

	// Track starts tracking a tournament. When initialize is true the first
	// run happens immediately and its result is returned.
	Track(ctx context.Context, tournamentID, name string, initialize bool) (*Result, error)

	// Untrack stops tracking a tournament and deletes its statuses and change log
	Untrack(ctx context.Context, tournamentID string) error
}

// Option configures the default manager
type Option func(*defaultSyncManager)

// WithRejoinPolicy sets what happens to participants who reappear after leaving
func WithRejoinPolicy(policy reconcile.RejoinPolicy) Option {
	return func(m *defaultSyncManager) {
		m.rejoinPolicy = policy
	}
}

// WithMetrics sets the sync metrics. A nil value disables metrics.
func WithMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *defaultSyncManager) {
		m.metrics = metrics
	}
}

// WithTracer sets the tracer for run spans
func WithTracer(tracer trace.Tracer) Option {
	return func(m *defaultSyncManager) {
		if tracer != nil {
			m.tracer = tracer
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *defaultSyncManager) {
		m.now = now
	}
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	fetcher      sources.Fetcher
	store        storage.Store
	locks        *KeyedMutex
	rejoinPolicy reconcile.RejoinPolicy
	metrics      *telemetry.SyncMetrics
	tracer       trace.Tracer
	now          func() time.Time
}

// NewDefaultSyncManager creates a new defaultSyncManager
func NewDefaultSyncManager(fetcher sources.Fetcher, store storage.Store, opts ...Option) Manager {
	m := &defaultSyncManager{
		fetcher:      fetcher,
		store:        store,
		locks:        NewKeyedMutex(),
		rejoinPolicy: reconcile.RejoinIgnore,
		tracer:       noop.NewTracerProvider().Tracer(TracerName),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SyncTournament performs one reconciliation run for a tournament
func (m *defaultSyncManager) SyncTournament(ctx context.Context, tournamentID string) (*Result, *Error) {
	runID := uuid.NewString()
	logger := slog.With("tournament", tournamentID, "run_id", runID)

	ctx, span := otel.StartSpan(ctx, m.tracer, "sync.SyncTournament", trace.WithAttributes(
		otel.AttrTournamentID.String(tournamentID),
		otel.AttrRunID.String(runID),
	))
	defer span.End()

	unlock := m.locks.Lock(tournamentID)
	defer unlock()

	start := m.now()

	result, syncErr := m.performSync(ctx, logger, tournamentID)
	duration := m.now().Sub(start)

	if syncErr != nil {
		otel.RecordError(span, syncErr)
		m.metrics.RecordSyncDuration(ctx, tournamentID, duration, false)
		m.metrics.RecordFailure(ctx, tournamentID, syncErr.ConditionReason)
		logger.Error("Tournament sync failed",
			"reason", syncErr.ConditionReason,
			"error", syncErr.Err,
			"duration", duration)
		return nil, syncErr
	}

	result.RunID = runID
	result.Duration = duration

	m.metrics.RecordSyncDuration(ctx, tournamentID, duration, true)
	m.metrics.RecordChanges(ctx, tournamentID, result.Joined+result.Rejoined, result.Left)
	m.metrics.RecordActiveParticipants(ctx, tournamentID, result.ParticipantCount)

	span.SetAttributes(
		otel.AttrJoined.Int(result.Joined),
		otel.AttrLeft.Int(result.Left),
		otel.AttrParticipantCount.Int(result.ParticipantCount),
	)
	logger.Info("Tournament synced",
		"joined", result.Joined,
		"left", result.Left,
		"rejoined", result.Rejoined,
		"participants", result.ParticipantCount,
		"bootstrap", result.Bootstrap,
		"duration", duration)

	return result, nil
}

func (m *defaultSyncManager) performSync(ctx context.Context, logger *slog.Logger, tournamentID string) (*Result, *Error) {
	if _, err := m.store.GetTournament(ctx, tournamentID); err != nil {
		return nil, m.storeError(ctx, tournamentID, err, "Failed to load tournament")
	}

	fetchResult, err := m.fetcher.Fetch(ctx, tournamentID)
	if err != nil {
		m.recordFailure(ctx, logger, tournamentID, err)
		return nil, &Error{
			Err:             err,
			Message:         fmt.Sprintf("Fetch failed: %v", err),
			ConditionType:   ConditionSourceAvailable,
			ConditionReason: ConditionReasonFetchFailed,
		}
	}

	logger.Debug("Roster fetched",
		"entries", fetchResult.Count(),
		"shape", fetchResult.Shape,
		"skipped", fetchResult.Skipped)

	plan, err := m.store.ReconcileAtomically(ctx, tournamentID,
		func(_ *status.TrackedTournament, stored []*status.ParticipantStatus) (*reconcile.Plan, error) {
			return reconcile.Reconcile(reconcile.Input{
				TournamentID: tournamentID,
				Roster:       fetchResult.Roster,
				Stored:       stored,
				Now:          m.now().UTC(),
				RejoinPolicy: m.rejoinPolicy,
			}), nil
		})
	if err != nil {
		return nil, m.storeError(ctx, tournamentID, err, "Storage failed")
	}

	return &Result{
		TournamentID:     tournamentID,
		Joined:           plan.Joined,
		Left:             plan.Left,
		Rejoined:         plan.Rejoined,
		Bootstrap:        plan.Bootstrap,
		ParticipantCount: plan.ActiveCount,
	}, nil
}

// storeError maps a store error to a run error, recording the failure on
// the tournament unless it is no longer tracked
func (m *defaultSyncManager) storeError(ctx context.Context, tournamentID string, err error, message string) *Error {
	if errors.Is(err, storage.ErrTournamentNotFound) {
		return &Error{
			Err:             err,
			Message:         fmt.Sprintf("Tournament %s is not tracked", tournamentID),
			ConditionType:   ConditionTracked,
			ConditionReason: ConditionReasonNotTracked,
		}
	}

	m.recordFailure(ctx, slog.With("tournament", tournamentID), tournamentID, err)
	return &Error{
		Err:             err,
		Message:         fmt.Sprintf("%s: %v", message, err),
		ConditionType:   ConditionSyncSuccessful,
		ConditionReason: ConditionReasonStorageFailed,
	}
}

// recordFailure notes the failed attempt on the tournament. It runs even
// when ctx is already cancelled.
func (m *defaultSyncManager) recordFailure(ctx context.Context, logger *slog.Logger, tournamentID string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := m.store.RecordFailure(ctx, tournamentID, m.now().UTC(), cause.Error()); err != nil {
		logger.Warn("Failed to record sync failure", "error", err)
	}
}

// ErrInvalidTournamentID is returned by Track for an ID that cannot be addressed by the API
var ErrInvalidTournamentID = errors.New("invalid tournament id")

// ValidateTournamentID checks that id is non-empty and usable as a single URL path segment
func ValidateTournamentID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: tournament id is required", ErrInvalidTournamentID)
	}
	if strings.ContainsAny(id, " \t\n\r/") {
		return fmt.Errorf("%w: tournament id cannot contain whitespace or slashes", ErrInvalidTournamentID)
	}
	return nil
}

// Track starts tracking a tournament
func (m *defaultSyncManager) Track(ctx context.Context, tournamentID, name string, initialize bool) (*Result, error) {
	tournamentID = strings.TrimSpace(tournamentID)
	if err := ValidateTournamentID(tournamentID); err != nil {
		return nil, err
	}

	err := m.store.UpsertTournament(ctx, &status.TrackedTournament{
		TournamentID: tournamentID,
		DisplayName:  strings.TrimSpace(name),
		CreatedAt:    m.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to track tournament %s: %w", tournamentID, err)
	}

	slog.Info("Tournament tracked", "tournament", tournamentID, "initialize", initialize)

	if !initialize {
		return nil, nil
	}

	result, syncErr := m.SyncTournament(ctx, tournamentID)
	if syncErr != nil {
		return nil, syncErr
	}
	return result, nil
}

// Untrack stops tracking a tournament, waiting for any run in progress
func (m *defaultSyncManager) Untrack(ctx context.Context, tournamentID string) error {
	unlock := m.locks.Lock(tournamentID)
	defer unlock()

	if err := m.store.DeleteTournament(ctx, tournamentID); err != nil {
		return fmt.Errorf("failed to untrack tournament %s: %w", tournamentID, err)
	}

	slog.Info("Tournament untracked", "tournament", tournamentID)
	return nil
}
