// Package sqlite provides a Store backed by a local SQLite database file.
//
// Timestamps are stored as Unix milliseconds in UTC. Write transactions
// start with BEGIN IMMEDIATE so that concurrent reconciliations of the same
// file serialise instead of failing on lock upgrades.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
)

//go:embed schema.sql
var schema string

const dsnParams = "?_pragma=journal_mode(WAL)" +
	"&_pragma=foreign_keys(1)" +
	"&_pragma=busy_timeout(5000)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_txlock=immediate"

// Store is a SQLite-backed storage.Store
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)

	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cleanPath+dsnParams)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply sqlite schema: %w", err)
	}

	slog.Info("SQLite store opened", "path", cleanPath)

	return &Store{db: db, now: time.Now}, nil
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

	_, err := s.db.ExecContext(ctx, `
INSERT INTO tracked_tournament (tournament_id, display_name, created_at)
VALUES (?, ?, ?)
ON CONFLICT (tournament_id) DO UPDATE
SET display_name = COALESCE(NULLIF(excluded.display_name, ''), tracked_tournament.display_name)
`, t.TournamentID, t.DisplayName, toMillis(createdAt))
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
	return getTournament(ctx, s.db, tournamentID)
}

// ListTournaments implements storage.Store
func (s *Store) ListTournaments(ctx context.Context) ([]*status.TrackedTournament, error) {
	rows, err := s.db.QueryContext(ctx, selectTournament+" ORDER BY tournament_id")
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

// DeleteTournament implements storage.Store
func (s *Store) DeleteTournament(ctx context.Context, tournamentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{
		"DELETE FROM change_event WHERE tournament_id = ?",
		"DELETE FROM participant_status WHERE tournament_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, tournamentID); err != nil {
			return fmt.Errorf("delete tournament %s: %w", tournamentID, err)
		}
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM tracked_tournament WHERE tournament_id = ?", tournamentID)
	if err != nil {
		return fmt.Errorf("delete tournament %s: %w", tournamentID, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return storage.ErrTournamentNotFound
	}

	return tx.Commit()
}

// ListParticipants implements storage.Store
func (s *Store) ListParticipants(ctx context.Context, tournamentID string) ([]*status.ParticipantStatus, error) {
	if _, err := getTournament(ctx, s.db, tournamentID); err != nil {
		return nil, err
	}
	return listParticipants(ctx, s.db, tournamentID)
}

// GetParticipant implements storage.Store
func (s *Store) GetParticipant(ctx context.Context, tournamentID, participantID string) (*status.ParticipantStatus, error) {
	row := s.db.QueryRowContext(ctx, selectParticipant+" WHERE tournament_id = ? AND participant_id = ?",
		tournamentID, participantID)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrParticipantNotFound
	}
	return p, err
}

// ListChanges implements storage.Store
func (s *Store) ListChanges(ctx context.Context, tournamentID string) ([]*status.ChangeEvent, error) {
	if _, err := getTournament(ctx, s.db, tournamentID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, tournament_id, participant_id, change_type, occurred_at
FROM change_event
WHERE tournament_id = ?
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
			occurredAt int64
		)
		if err := rows.Scan(&ev.ID, &ev.TournamentID, &ev.ParticipantID, &changeType, &occurredAt); err != nil {
			return nil, err
		}
		ev.ChangeType = status.ChangeType(changeType)
		ev.OccurredAt = fromMillis(occurredAt)
		result = append(result, &ev)
	}
	return result, rows.Err()
}

// ReconcileAtomically implements storage.Store
func (s *Store) ReconcileAtomically(
	ctx context.Context,
	tournamentID string,
	fn storage.ReconcileFunc,
) (*reconcile.Plan, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin reconcile transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	tournament, err := getTournament(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}
	stored, err := listParticipants(ctx, tx, tournamentID)
	if err != nil {
		return nil, err
	}

	plan, err := fn(tournament, stored)
	if err != nil {
		return nil, err
	}

	for _, p := range plan.Upserts {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO participant_status (tournament_id, participant_id, display_name, status, joined_at, left_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (tournament_id, participant_id) DO UPDATE SET
    display_name = excluded.display_name,
    status       = excluded.status,
    joined_at    = excluded.joined_at,
    left_at      = excluded.left_at
`, tournamentID, p.ParticipantID, p.DisplayName, string(p.Status), toMillis(p.JoinedAt), nullMillis(p.LeftAt)); err != nil {
			return nil, fmt.Errorf("upsert participant %s: %w", p.ParticipantID, err)
		}
	}

	for _, ev := range plan.Events {
		res, err := tx.ExecContext(ctx, `
INSERT INTO change_event (tournament_id, participant_id, change_type, occurred_at)
VALUES (?, ?, ?, ?)
`, tournamentID, ev.ParticipantID, string(ev.ChangeType), toMillis(ev.OccurredAt))
		if err != nil {
			return nil, fmt.Errorf("append change event: %w", err)
		}
		if ev.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}

	storage.ApplyToTournament(tournament, plan)
	if err := updateBookkeeping(ctx, tx, tournament); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit reconcile transaction: %w", err)
	}
	return plan, nil
}

// RecordFailure implements storage.Store
func (s *Store) RecordFailure(ctx context.Context, tournamentID string, at time.Time, message string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	tournament, err := getTournament(ctx, tx, tournamentID)
	if err != nil {
		return err
	}
	storage.ApplyFailure(tournament, at, message)
	if err := updateBookkeeping(ctx, tx, tournament); err != nil {
		return err
	}
	return tx.Commit()
}

// Ping implements storage.Store
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements storage.Store
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

func getTournament(ctx context.Context, q querier, tournamentID string) (*status.TrackedTournament, error) {
	t, err := scanTournament(q.QueryRowContext(ctx, selectTournament+" WHERE tournament_id = ?", tournamentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTournamentNotFound
	}
	return t, err
}

func scanTournament(row scanner) (*status.TrackedTournament, error) {
	var (
		t                    status.TrackedTournament
		createdAt            int64
		lastRun, lastAttempt sql.NullInt64
	)
	if err := row.Scan(&t.TournamentID, &t.DisplayName, &createdAt, &lastRun, &lastAttempt,
		&t.LastError, &t.FailureCount, &t.ParticipantCount); err != nil {
		return nil, err
	}
	t.CreatedAt = fromMillis(createdAt)
	t.LastRun = fromNullMillis(lastRun)
	t.LastAttempt = fromNullMillis(lastAttempt)
	return &t, nil
}

const selectParticipant = `
SELECT tournament_id, participant_id, display_name, status, joined_at, left_at
FROM participant_status`

func listParticipants(ctx context.Context, q querier, tournamentID string) ([]*status.ParticipantStatus, error) {
	rows, err := q.QueryContext(ctx, selectParticipant+" WHERE tournament_id = ? ORDER BY participant_id", tournamentID)
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

func scanParticipant(row scanner) (*status.ParticipantStatus, error) {
	var (
		p        status.ParticipantStatus
		state    string
		joinedAt int64
		leftAt   sql.NullInt64
	)
	if err := row.Scan(&p.TournamentID, &p.ParticipantID, &p.DisplayName, &state, &joinedAt, &leftAt); err != nil {
		return nil, err
	}
	p.Status = status.ParticipantState(state)
	p.JoinedAt = fromMillis(joinedAt)
	p.LeftAt = fromNullMillis(leftAt)
	return &p, nil
}

func updateBookkeeping(ctx context.Context, tx *sql.Tx, t *status.TrackedTournament) error {
	_, err := tx.ExecContext(ctx, `
UPDATE tracked_tournament
SET last_run = ?, last_attempt = ?, last_error = ?, failure_count = ?, participant_count = ?
WHERE tournament_id = ?
`, nullMillis(t.LastRun), nullMillis(t.LastAttempt), t.LastError, t.FailureCount, t.ParticipantCount, t.TournamentID)
	if err != nil {
		return fmt.Errorf("update tournament %s: %w", t.TournamentID, err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
