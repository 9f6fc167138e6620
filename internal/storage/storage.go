// Package storage defines the state store the tracker persists tournaments,
// participant statuses and the change log into.
//
// Backends live in the memory, sqlite and postgres subpackages. All of them
// apply a reconciliation plan inside a single transaction so that a failed
// run never leaves partially written state behind.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/status"
)

var (
	// ErrTournamentNotFound is returned when a tournament is not tracked.
	ErrTournamentNotFound = errors.New("tournament not found")

	// ErrParticipantNotFound is returned when a participant has no stored status.
	ErrParticipantNotFound = errors.New("participant not found")
)

// ReconcileFunc computes a plan from the stored state of a tournament.
// It runs inside the store transaction and must not perform I/O.
type ReconcileFunc func(
	tournament *status.TrackedTournament,
	stored []*status.ParticipantStatus,
) (*reconcile.Plan, error)

// Store persists tracked tournaments, participant statuses and change events.
//
//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/rostertrack/rostertrack/internal/storage Store
type Store interface {
	// UpsertTournament starts tracking a tournament, or updates the display
	// name of one already tracked. An empty name never replaces a stored one.
	// Sync bookkeeping fields are left untouched.
	UpsertTournament(ctx context.Context, tournament *status.TrackedTournament) error
	// GetTournament returns the named tournament or ErrTournamentNotFound.
	GetTournament(ctx context.Context, tournamentID string) (*status.TrackedTournament, error)
	// ListTournaments returns every tracked tournament ordered by ID.
	ListTournaments(ctx context.Context) ([]*status.TrackedTournament, error)
	// DeleteTournament stops tracking a tournament and removes its statuses
	// and change log.
	DeleteTournament(ctx context.Context, tournamentID string) error

	// ListParticipants returns the stored statuses of a tournament ordered by participant ID.
	ListParticipants(ctx context.Context, tournamentID string) ([]*status.ParticipantStatus, error)
	// GetParticipant returns one stored status or ErrParticipantNotFound.
	GetParticipant(ctx context.Context, tournamentID, participantID string) (*status.ParticipantStatus, error)
	// ListChanges returns the change log of a tournament in insertion order.
	ListChanges(ctx context.Context, tournamentID string) ([]*status.ChangeEvent, error)

	// ReconcileAtomically loads the tournament and its statuses, calls fn and
	// applies the resulting plan, all as one atomic action. If fn returns an
	// error nothing is written. Events in the returned plan carry the IDs the
	// store assigned to them.
	ReconcileAtomically(ctx context.Context, tournamentID string, fn ReconcileFunc) (*reconcile.Plan, error)
	// RecordFailure notes a failed attempt without touching statuses or LastRun.
	RecordFailure(ctx context.Context, tournamentID string, at time.Time, message string) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the resources held by the store.
	Close() error
}

// ApplyToTournament updates the sync bookkeeping of a tournament after a
// successful run described by plan.
func ApplyToTournament(t *status.TrackedTournament, plan *reconcile.Plan) {
	lastRun := plan.LastRun
	t.LastRun = &lastRun
	lastAttempt := plan.LastRun
	t.LastAttempt = &lastAttempt
	t.LastError = ""
	t.FailureCount = 0
	t.ParticipantCount = plan.ActiveCount
}

// ApplyFailure updates the sync bookkeeping of a tournament after a failed attempt.
func ApplyFailure(t *status.TrackedTournament, at time.Time, message string) {
	t.LastAttempt = &at
	t.LastError = message
	t.FailureCount++
}
