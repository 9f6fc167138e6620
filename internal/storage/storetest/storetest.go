// Package storetest holds the behaviour every storage.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
)

// Factory returns a fresh, empty store. The store is closed by the caller.
type Factory func(t *testing.T) storage.Store

var base = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

// Run executes the shared store behaviour against stores built by newStore
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"tournament lifecycle", testTournamentLifecycle},
		{"bootstrap then transitions", testBootstrapThenTransitions},
		{"failed reconcile writes nothing", testFailedReconcileWritesNothing},
		{"reconcile unknown tournament", testReconcileUnknownTournament},
		{"record failure", testRecordFailure},
		{"delete cascades", testDeleteCascades},
		{"participant lookups", testParticipantLookups},
		{"concurrent reconciles", testConcurrentReconciles},
		{"empty name keeps stored name", testEmptyNameKeepsStoredName},
		{"empty results are empty slices", testEmptyResultsAreEmptySlices},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

// ReconcileWith returns a ReconcileFunc applying roster at now with the ignore rejoin policy
func ReconcileWith(roster status.Roster, now time.Time) storage.ReconcileFunc {
	return func(t *status.TrackedTournament, stored []*status.ParticipantStatus) (*reconcile.Plan, error) {
		return reconcile.Reconcile(reconcile.Input{
			TournamentID: t.TournamentID,
			Roster:       roster,
			Stored:       stored,
			Now:          now,
			RejoinPolicy: reconcile.RejoinIgnore,
		}), nil
	}
}

func roster(ids ...string) status.Roster {
	r := make(status.Roster, 0, len(ids))
	for _, id := range ids {
		r = append(r, status.RosterEntry{ParticipantID: id, DisplayName: "Player " + id})
	}
	return r
}

func track(t *testing.T, s storage.Store, id string) {
	t.Helper()
	require.NoError(t, s.UpsertTournament(context.Background(), &status.TrackedTournament{
		TournamentID: id,
		CreatedAt:    base,
	}))
}

func assertTime(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	require.NotNil(t, got)
	assert.True(t, want.Equal(*got), "want %s, got %s", want, *got)
}

func testTournamentLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.UpsertTournament(ctx, &status.TrackedTournament{TournamentID: "200", DisplayName: "Autumn Cup", CreatedAt: base}))
	require.NoError(t, s.UpsertTournament(ctx, &status.TrackedTournament{TournamentID: "100"}))

	got, err := s.GetTournament(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, "Autumn Cup", got.DisplayName)
	assert.True(t, base.Equal(got.CreatedAt))
	assert.Nil(t, got.LastRun)
	assert.Zero(t, got.FailureCount)

	// a second upsert renames without resetting CreatedAt
	require.NoError(t, s.UpsertTournament(ctx, &status.TrackedTournament{TournamentID: "200", DisplayName: "Autumn Open", CreatedAt: base.Add(time.Hour)}))
	got, err = s.GetTournament(ctx, "200")
	require.NoError(t, err)
	assert.Equal(t, "Autumn Open", got.DisplayName)
	assert.True(t, base.Equal(got.CreatedAt))

	all, err := s.ListTournaments(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "100", all[0].TournamentID)
	assert.False(t, all[0].CreatedAt.IsZero(), "store should stamp CreatedAt")
	assert.Equal(t, "200", all[1].TournamentID)

	_, err = s.GetTournament(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrTournamentNotFound)

	require.NoError(t, s.DeleteTournament(ctx, "100"))
	assert.ErrorIs(t, s.DeleteTournament(ctx, "100"), storage.ErrTournamentNotFound)

	all, err = s.ListTournaments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	assert.Error(t, s.UpsertTournament(ctx, &status.TrackedTournament{}))
	require.NoError(t, s.Ping(ctx))
}

func testBootstrapThenTransitions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	track(t, s, "1")

	plan, err := s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("a", "b"), base))
	require.NoError(t, err)
	assert.True(t, plan.Bootstrap)
	assert.Empty(t, plan.Events)

	participants, err := s.ListParticipants(ctx, "1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	for _, p := range participants {
		assert.Equal(t, status.StateActive, p.Status)
		assert.True(t, base.Equal(p.JoinedAt))
		assert.Nil(t, p.LeftAt)
	}

	changes, err := s.ListChanges(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, changes)

	tournament, err := s.GetTournament(ctx, "1")
	require.NoError(t, err)
	assertTime(t, base, tournament.LastRun)
	assert.Equal(t, 2, tournament.ParticipantCount)

	second := base.Add(time.Hour)
	plan, err = s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("b", "c"), second))
	require.NoError(t, err)
	assert.False(t, plan.Bootstrap)
	assert.Equal(t, 1, plan.Joined)
	assert.Equal(t, 1, plan.Left)
	for _, ev := range plan.Events {
		assert.NotZero(t, ev.ID, "store should assign event IDs")
	}

	changes, err = s.ListChanges(ctx, "1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, "a", changes[0].ParticipantID)
	assert.Equal(t, status.ChangeLeft, changes[0].ChangeType)
	assert.Equal(t, "c", changes[1].ParticipantID)
	assert.Equal(t, status.ChangeJoined, changes[1].ChangeType)
	assert.Less(t, changes[0].ID, changes[1].ID)
	assert.True(t, second.Equal(changes[1].OccurredAt))

	left, err := s.GetParticipant(ctx, "1", "a")
	require.NoError(t, err)
	assert.Equal(t, status.StateLeft, left.Status)
	assertTime(t, second, left.LeftAt)
	assert.True(t, base.Equal(left.JoinedAt))

	// the same roster again is a no-op
	plan, err = s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("b", "c"), second.Add(time.Hour)))
	require.NoError(t, err)
	assert.Empty(t, plan.Events)
	assert.False(t, plan.HasChanges())

	changes, err = s.ListChanges(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	tournament, err = s.GetTournament(ctx, "1")
	require.NoError(t, err)
	assertTime(t, second.Add(time.Hour), tournament.LastRun)
	assert.Equal(t, 2, tournament.ParticipantCount)
}

func testFailedReconcileWritesNothing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	track(t, s, "1")

	_, err := s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("a"), base))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = s.ReconcileAtomically(ctx, "1", func(*status.TrackedTournament, []*status.ParticipantStatus) (*reconcile.Plan, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	participants, err := s.ListParticipants(ctx, "1")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, status.StateActive, participants[0].Status)

	tournament, err := s.GetTournament(ctx, "1")
	require.NoError(t, err)
	assertTime(t, base, tournament.LastRun)
}

func testReconcileUnknownTournament(t *testing.T, s storage.Store) {
	called := false
	_, err := s.ReconcileAtomically(context.Background(), "ghost", func(*status.TrackedTournament, []*status.ParticipantStatus) (*reconcile.Plan, error) {
		called = true
		return &reconcile.Plan{}, nil
	})
	assert.ErrorIs(t, err, storage.ErrTournamentNotFound)
	assert.False(t, called)

	assert.ErrorIs(t, s.RecordFailure(context.Background(), "ghost", base, "x"), storage.ErrTournamentNotFound)
}

func testRecordFailure(t *testing.T, s storage.Store) {
	ctx := context.Background()
	track(t, s, "1")

	_, err := s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("a"), base))
	require.NoError(t, err)

	require.NoError(t, s.RecordFailure(ctx, "1", base.Add(time.Hour), "HTTP 503"))
	require.NoError(t, s.RecordFailure(ctx, "1", base.Add(2*time.Hour), "timeout"))

	tournament, err := s.GetTournament(ctx, "1")
	require.NoError(t, err)
	assertTime(t, base, tournament.LastRun)
	assertTime(t, base.Add(2*time.Hour), tournament.LastAttempt)
	assert.Equal(t, "timeout", tournament.LastError)
	assert.Equal(t, 2, tournament.FailureCount)

	participants, err := s.ListParticipants(ctx, "1")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, status.StateActive, participants[0].Status)

	_, err = s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("a"), base.Add(3*time.Hour)))
	require.NoError(t, err)

	tournament, err = s.GetTournament(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, tournament.LastError)
	assert.Zero(t, tournament.FailureCount)
	assertTime(t, base.Add(3*time.Hour), tournament.LastRun)
}

func testDeleteCascades(t *testing.T, s storage.Store) {
	ctx := context.Background()
	track(t, s, "1")
	track(t, s, "2")

	_, err := s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("a", "b"), base))
	require.NoError(t, err)
	_, err = s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("a"), base.Add(time.Hour)))
	require.NoError(t, err)
	_, err = s.ReconcileAtomically(ctx, "2", ReconcileWith(roster("z"), base))
	require.NoError(t, err)

	require.NoError(t, s.DeleteTournament(ctx, "1"))

	_, err = s.ListParticipants(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrTournamentNotFound)

	track(t, s, "1")
	participants, err := s.ListParticipants(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, participants)
	changes, err := s.ListChanges(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, changes)

	other, err := s.ListParticipants(ctx, "2")
	require.NoError(t, err)
	assert.Len(t, other, 1)
}

func testParticipantLookups(t *testing.T, s storage.Store) {
	ctx := context.Background()
	track(t, s, "1")

	_, err := s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("c", "a", "b"), base))
	require.NoError(t, err)

	participants, err := s.ListParticipants(ctx, "1")
	require.NoError(t, err)
	require.Len(t, participants, 3)
	assert.Equal(t, "a", participants[0].ParticipantID)
	assert.Equal(t, "b", participants[1].ParticipantID)
	assert.Equal(t, "c", participants[2].ParticipantID)
	assert.Equal(t, "Player a", participants[0].DisplayName)
	assert.Equal(t, "1", participants[0].TournamentID)

	_, err = s.GetParticipant(ctx, "1", "nobody")
	assert.ErrorIs(t, err, storage.ErrParticipantNotFound)

	_, err = s.GetParticipant(ctx, "ghost", "a")
	assert.Error(t, err)

	_, err = s.ListChanges(ctx, "ghost")
	assert.ErrorIs(t, err, storage.ErrTournamentNotFound)
}

func testConcurrentReconciles(t *testing.T, s storage.Store) {
	ctx := context.Background()
	track(t, s, "1")

	_, err := s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("a", "b"), base))
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := base.Add(time.Duration(i+1) * time.Minute)
			if _, err := s.ReconcileAtomically(ctx, "1", ReconcileWith(roster("b", "c"), now)); err != nil {
				errs <- fmt.Errorf("worker %d: %w", i, err)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	changes, err := s.ListChanges(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, changes, 2, "each transition must be recorded exactly once")
}

func testEmptyNameKeepsStoredName(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.UpsertTournament(ctx, &status.TrackedTournament{TournamentID: "300", DisplayName: "Winter Classic"}))
	require.NoError(t, s.UpsertTournament(ctx, &status.TrackedTournament{TournamentID: "300"}))

	got, err := s.GetTournament(ctx, "300")
	require.NoError(t, err)
	assert.Equal(t, "Winter Classic", got.DisplayName)

	require.NoError(t, s.UpsertTournament(ctx, &status.TrackedTournament{TournamentID: "300", DisplayName: "Winter Open"}))
	got, err = s.GetTournament(ctx, "300")
	require.NoError(t, err)
	assert.Equal(t, "Winter Open", got.DisplayName)
}

func testEmptyResultsAreEmptySlices(t *testing.T, s storage.Store) {
	ctx := context.Background()

	tournaments, err := s.ListTournaments(ctx)
	require.NoError(t, err)
	assert.NotNil(t, tournaments)
	assert.Empty(t, tournaments)

	track(t, s, "400")

	participants, err := s.ListParticipants(ctx, "400")
	require.NoError(t, err)
	assert.NotNil(t, participants)
	assert.Empty(t, participants)

	changes, err := s.ListChanges(ctx, "400")
	require.NoError(t, err)
	assert.NotNil(t, changes)
	assert.Empty(t, changes)
}
