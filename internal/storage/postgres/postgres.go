// Package postgres provides a Store backed by PostgreSQL through a pgx pool.
// The schema is managed by the migrations in the database package.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/rostertrack/rostertrack/internal/otel"
	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
)

// TracerName is the name used for store spans
const TracerName = "github.com/rostertrack/rostertrack/storage/postgres"

// Store is a PostgreSQL-backed storage.Store
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	now    func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store
type Option func(*Store)

// WithTracer sets the tracer used for transaction spans.
// If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// New wraps an existing connection pool. The pool is closed by Close.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{
		pool:   pool,
		tracer: noop.NewTracerProvider().Tracer(TracerName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// UpsertTournament implements storage.Store. An empty name keeps the stored one.
func (s *Store) UpsertTournament(ctx context.Context, t *status.TrackedTournament) error {
	if t == nil || t.TournamentID == "" {
		return fmt.Errorf("tournament id is required")
	}

	createdAt := t.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	_, err := s.pool.Exec(ctx, `
INSERT INTO tracked_tournament (tournament_id, display_name, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (tournament_id) DO UPDATE
SET display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), tracked_tournament.display_name)
`, t.TournamentID, t.DisplayName, createdAt.UTC())
	if err != nil {
		return fmt.Errorf("upsert tournament %s: %w", t.TournamentID, err)
	}
	return nil
}

const selectTournament = `
SELECT tournament_id, display_name, created_at, last_run, last_attempt,
       last_error, failure_count, participant_count
FROM tracked_tournament`

// GetTournament implements storage.Store
func (s *Store) GetTournament(ctx context.Context, tournamentID string) (*status.TrackedTournament, error) {
	return getTournament(ctx, s.pool, tournamentID)
}

// ListTournaments implements storage.Store
func (s *Store) ListTournaments(ctx context.Context) ([]*status.TrackedTournament, error) {
	rows, err := s.pool.Query(ctx, selectTournament+" ORDER BY tournament_id")
	if err != nil {
		return nil, fmt.Errorf("list tournaments: %w", err)
	}
	defer rows.Close()

	result := []*status.TrackedTournament{}
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

// DeleteTournament implements storage.Store. Statuses and the change log
// are removed by ON DELETE CASCADE.
func (s *Store) DeleteTournament(ctx context.Context, tournamentID string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM tracked_tournament WHERE tournament_id = $1", tournamentID)
	if err != nil {
		return fmt.Errorf("delete tournament %s: %w", tournamentID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrTournamentNotFound
	}
	return nil
}

// ListParticipants implements storage.Store
func (s *Store) ListParticipants(ctx context.Context, tournamentID string) ([]*status.ParticipantStatus, error) {
	if _, err := getTournament(ctx, s.pool, tournamentID); err != nil {
		return nil, err
	}
	return listParticipants(ctx, s.pool, tournamentID)
}

// GetParticipant implements storage.Store
func (s *Store) GetParticipant(ctx context.Context, tournamentID, participantID string) (*status.ParticipantStatus, error) {
	row := s.pool.QueryRow(ctx, selectParticipant+" WHERE tournament_id = $1 AND participant_id = $2",
		tournamentID, participantID)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrParticipantNotFound
	}
	return p, err
}

// ListChanges implements storage.Store
func (s *Store) ListChanges(ctx context.Context, tournamentID string) ([]*status.ChangeEvent, error) {
	if _, err := getTournament(ctx, s.pool, tournamentID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
SELECT id, tournament_id, participant_id, change_type, occurred_at
FROM change_event
WHERE tournament_id = $1
ORDER BY id`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list changes for %s: %w", tournamentID, err)
	}
	defer rows.Close()

	result := []*status.ChangeEvent{}
	for rows.Next() {
		var (
			ev         status.ChangeEvent
			changeType string
		)
		if err := rows.Scan(&ev.ID, &ev.TournamentID, &ev.ParticipantID, &changeType, &ev.OccurredAt); err != nil {
			return nil, err
		}
		ev.ChangeType = status.ChangeType(changeType)
		ev.OccurredAt = ev.OccurredAt.UTC()
		result = append(result, &ev)
	}
	return result, rows.Err()
}

// ReconcileAtomically implements storage.Store. A transaction-scoped
// advisory lock on the tournament ID serialises replicas sharing the database.
func (s *Store) ReconcileAtomically(
	ctx context.Context,
	tournamentID string,
	fn storage.ReconcileFunc,
) (plan *reconcile.Plan, err error) {
	ctx, span := otel.StartSpan(ctx, s.tracer, "postgres.ReconcileAtomically",
		trace.WithAttributes(otel.AttrTournamentID.String(tournamentID)))
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reconcile transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", tournamentID); err != nil {
		return nil, fmt.Errorf("lock tournament %s: %w", tournamentID, err)
	}

	tournament, err := getTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	stored, err := listParticipants(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}

	plan, err = fn(tournament, stored)
	if err != nil {
		return nil, err
	}

	if err := writePlan(ctx, tx, tournamentID, plan); err != nil {
		return nil, err
	}

	storage.ApplyToTournament(tournament, plan)
	if err := updateBookkeeping(ctx, tx, tournament); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reconcile transaction: %w", err)
	}

	span.SetAttributes(
		otel.AttrUpserted.Int(len(plan.Upserts)),
		otel.AttrChangesAppended.Int(len(plan.Events)),
	)
	return plan, nil
}

func writePlan(ctx context.Context, tx pgx.Tx, tournamentID string, plan *reconcile.Plan) error {
	if len(plan.Upserts) > 0 {
		batch := &pgx.Batch{}
		for _, p := range plan.Upserts {
			batch.Queue(`
INSERT INTO participant_status (tournament_id, participant_id, display_name, status, joined_at, left_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (tournament_id, participant_id) DO UPDATE SET
    display_name = EXCLUDED.display_name,
    status       = EXCLUDED.status,
    joined_at    = EXCLUDED.joined_at,
    left_at      = EXCLUDED.left_at
`, tournamentID, p.ParticipantID, p.DisplayName, string(p.Status), p.JoinedAt.UTC(), utcPtr(p.LeftAt))
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("upsert participants: %w", err)
		}
	}

	for _, ev := range plan.Events {
		err := tx.QueryRow(ctx, `
INSERT INTO change_event (tournament_id, participant_id, change_type, occurred_at)
VALUES ($1, $2, $3, $4)
RETURNING id
`, tournamentID, ev.ParticipantID, string(ev.ChangeType), ev.OccurredAt.UTC()).Scan(&ev.ID)
		if err != nil {
			return fmt.Errorf("append change event: %w", err)
		}
	}
	return nil
}

// RecordFailure implements storage.Store
func (s *Store) RecordFailure(ctx context.Context, tournamentID string, at time.Time, message string) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE tracked_tournament
SET last_attempt = $2, last_error = $3, failure_count = failure_count + 1
WHERE tournament_id = $1
`, tournamentID, at.UTC(), message)
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", tournamentID, err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrTournamentNotFound
	}
	return nil
}

// Ping implements storage.Store
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements storage.Store
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getTournament(ctx context.Context, q querier, tournamentID string) (*status.TrackedTournament, error) {
	t, err := scanTournament(q.QueryRow(ctx, selectTournament+" WHERE tournament_id = $1", tournamentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrTournamentNotFound
	}
	return t, err
}

func scanTournament(row pgx.Row) (*status.TrackedTournament, error) {
	var t status.TrackedTournament
	if err := row.Scan(&t.TournamentID, &t.DisplayName, &t.CreatedAt, &t.LastRun, &t.LastAttempt,
		&t.LastError, &t.FailureCount, &t.ParticipantCount); err != nil {
		return nil, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.LastRun = utcPtr(t.LastRun)
	t.LastAttempt = utcPtr(t.LastAttempt)
	return &t, nil
}

const selectParticipant = `
SELECT tournament_id, participant_id, display_name, status, joined_at, left_at
FROM participant_status`

func listParticipants(ctx context.Context, q querier, tournamentID string) ([]*status.ParticipantStatus, error) {
	rows, err := q.Query(ctx, selectParticipant+" WHERE tournament_id = $1 ORDER BY participant_id", tournamentID)
	if err != nil {
		return nil, fmt.Errorf("list participants for %s: %w", tournamentID, err)
	}
	defer rows.Close()

	result := []*status.ParticipantStatus{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

func scanParticipant(row pgx.Row) (*status.ParticipantStatus, error) {
	var (
		p     status.ParticipantStatus
		state string
	)
	if err := row.Scan(&p.TournamentID, &p.ParticipantID, &p.DisplayName, &state, &p.JoinedAt, &p.LeftAt); err != nil {
		return nil, err
	}
	p.Status = status.ParticipantState(state)
	p.JoinedAt = p.JoinedAt.UTC()
	p.LeftAt = utcPtr(p.LeftAt)
	return &p, nil
}

func updateBookkeeping(ctx context.Context, tx pgx.Tx, t *status.TrackedTournament) error {
	_, err := tx.Exec(ctx, `
UPDATE tracked_tournament
SET last_run = $2, last_attempt = $3, last_error = $4, failure_count = $5, participant_count = $6
WHERE tournament_id = $1
`, t.TournamentID, utcPtr(t.LastRun), utcPtr(t.LastAttempt), t.LastError, t.FailureCount, t.ParticipantCount)
	if err != nil {
		return fmt.Errorf("update tournament %s: %w", t.TournamentID, err)
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
