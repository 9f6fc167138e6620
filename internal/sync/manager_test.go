package sync

import (
	"context"
	"errors"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/mock/gomock"

	"github.com/rostertrack/rostertrack/internal/reconcile"
	"github.com/rostertrack/rostertrack/internal/sources"
	sourcesmocks "github.com/rostertrack/rostertrack/internal/sources/mocks"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
	"github.com/rostertrack/rostertrack/internal/storage/memory"
	storagemocks "github.com/rostertrack/rostertrack/internal/storage/mocks"
	"github.com/rostertrack/rostertrack/internal/telemetry"
)

var t0 = time.Date(2025, time.May, 10, 18, 0, 0, 0, time.UTC)

func fetched(ids ...string) *sources.FetchResult {
	roster := make(status.Roster, 0, len(ids))
	for _, id := range ids {
		roster = append(roster, status.RosterEntry{ParticipantID: id, DisplayName: "Player " + id})
	}
	return &sources.FetchResult{Roster: roster, Shape: sources.ShapeObject}
}

// stepClock advances by one minute on every call
func stepClock() func() time.Time {
	var n atomic.Int64
	return func() time.Time {
		return t0.Add(time.Duration(n.Add(1)) * time.Minute)
	}
}

func newTracked(t *testing.T, ids ...string) *memory.Store {
	t.Helper()
	store := memory.New()
	for _, id := range ids {
		require.NoError(t, store.UpsertTournament(context.Background(), &status.TrackedTournament{TournamentID: id}))
	}
	return store
}

func TestSyncTournament_NotTracked(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	fetcher := sourcesmocks.NewMockFetcher(ctrl)

	m := NewDefaultSyncManager(fetcher, memory.New())

	result, syncErr := m.SyncTournament(context.Background(), "404")
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	assert.Equal(t, ConditionReasonNotTracked, syncErr.ConditionReason)
	assert.Equal(t, ConditionTracked, syncErr.ConditionType)
	assert.ErrorIs(t, syncErr, storage.ErrTournamentNotFound)
}

func TestSyncTournament_BootstrapThenTransitions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	fetcher := sourcesmocks.NewMockFetcher(ctrl)
	store := newTracked(t, "1")

	gomock.InOrder(
		fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("a", "b"), nil),
		fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("b", "c"), nil),
		fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("b", "c"), nil),
	)

	m := NewDefaultSyncManager(fetcher, store, WithClock(stepClock()))

	first, syncErr := m.SyncTournament(ctx, "1")
	require.Nil(t, syncErr)
	assert.True(t, first.Bootstrap)
	assert.Equal(t, 2, first.ParticipantCount)
	assert.Zero(t, first.Joined)
	assert.NotEmpty(t, first.RunID)

	second, syncErr := m.SyncTournament(ctx, "1")
	require.Nil(t, syncErr)
	assert.False(t, second.Bootstrap)
	assert.Equal(t, 1, second.Joined)
	assert.Equal(t, 1, second.Left)
	assert.Equal(t, 2, second.ParticipantCount)
	assert.NotEqual(t, first.RunID, second.RunID)

	third, syncErr := m.SyncTournament(ctx, "1")
	require.Nil(t, syncErr)
	assert.Zero(t, third.Joined)
	assert.Zero(t, third.Left)

	changes, err := store.ListChanges(ctx, "1")
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, status.ChangeLeft, changes[0].ChangeType)
	assert.Equal(t, "a", changes[0].ParticipantID)
	assert.Equal(t, status.ChangeJoined, changes[1].ChangeType)
	assert.Equal(t, "c", changes[1].ParticipantID)
}

func TestSyncTournament_FetchFailureLeavesStatusesUntouched(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	fetcher := sourcesmocks.NewMockFetcher(ctrl)
	store := newTracked(t, "1")

	fetchErr := errors.New("HTTP 503 for URL https://api.cuescore.com/tournament/: Service Unavailable")
	gomock.InOrder(
		fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("a", "b"), nil),
		fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(nil, fetchErr),
	)

	m := NewDefaultSyncManager(fetcher, store, WithClock(stepClock()))

	_, syncErr := m.SyncTournament(ctx, "1")
	require.Nil(t, syncErr)

	before, err := store.GetTournament(ctx, "1")
	require.NoError(t, err)

	result, syncErr := m.SyncTournament(ctx, "1")
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	assert.Equal(t, ConditionReasonFetchFailed, syncErr.ConditionReason)
	assert.Equal(t, ConditionSourceAvailable, syncErr.ConditionType)
	assert.ErrorIs(t, syncErr, fetchErr)

	participants, err := store.ListParticipants(ctx, "1")
	require.NoError(t, err)
	require.Len(t, participants, 2)
	for _, p := range participants {
		assert.Equal(t, status.StateActive, p.Status)
	}

	after, err := store.GetTournament(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, before.LastRun, after.LastRun)
	assert.Equal(t, 1, after.FailureCount)
	assert.Equal(t, fetchErr.Error(), after.LastError)
	require.NotNil(t, after.LastAttempt)
	assert.True(t, after.LastAttempt.After(*after.LastRun))

	changes, err := store.ListChanges(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestSyncTournament_StorageFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	fetcher := sourcesmocks.NewMockFetcher(ctrl)
	store := storagemocks.NewMockStore(ctrl)

	dbErr := errors.New("database is locked")
	store.EXPECT().GetTournament(gomock.Any(), "1").Return(&status.TrackedTournament{TournamentID: "1"}, nil)
	fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("a"), nil)
	store.EXPECT().ReconcileAtomically(gomock.Any(), "1", gomock.Any()).Return(nil, dbErr)
	store.EXPECT().RecordFailure(gomock.Any(), "1", gomock.Any(), dbErr.Error()).Return(nil)

	m := NewDefaultSyncManager(fetcher, store)

	result, syncErr := m.SyncTournament(ctx, "1")
	assert.Nil(t, result)
	require.NotNil(t, syncErr)
	assert.Equal(t, ConditionReasonStorageFailed, syncErr.ConditionReason)
	assert.ErrorIs(t, syncErr, dbErr)
}

func TestSyncTournament_RejoinPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		policy       reconcile.RejoinPolicy
		wantRejoined int
		wantStatus   status.ParticipantState
		wantChanges  int
	}{
		{name: "ignore", policy: reconcile.RejoinIgnore, wantRejoined: 0, wantStatus: status.StateLeft, wantChanges: 1},
		{name: "reactivate", policy: reconcile.RejoinReactivate, wantRejoined: 1, wantStatus: status.StateActive, wantChanges: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			ctrl := gomock.NewController(t)
			fetcher := sourcesmocks.NewMockFetcher(ctrl)
			store := newTracked(t, "1")

			gomock.InOrder(
				fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("a", "b"), nil),
				fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("b"), nil),
				fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("a", "b"), nil),
			)

			m := NewDefaultSyncManager(fetcher, store, WithClock(stepClock()), WithRejoinPolicy(tt.policy))

			for range 2 {
				_, syncErr := m.SyncTournament(ctx, "1")
				require.Nil(t, syncErr)
			}
			result, syncErr := m.SyncTournament(ctx, "1")
			require.Nil(t, syncErr)
			assert.Equal(t, tt.wantRejoined, result.Rejoined)

			p, err := store.GetParticipant(ctx, "1", "a")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, p.Status)

			changes, err := store.ListChanges(ctx, "1")
			require.NoError(t, err)
			assert.Len(t, changes, tt.wantChanges)
		})
	}
}

// gateFetcher records how many fetches for the same tournament overlap
type gateFetcher struct {
	inFlight atomic.Int32
	overlap  atomic.Bool
	calls    atomic.Int32
	roster   *sources.FetchResult
}

func (f *gateFetcher) Fetch(_ context.Context, _ string) (*sources.FetchResult, error) {
	f.calls.Add(1)
	if f.inFlight.Add(1) > 1 {
		f.overlap.Store(true)
	}
	time.Sleep(2 * time.Millisecond)
	f.inFlight.Add(-1)
	return f.roster, nil
}

func TestSyncTournament_ConcurrentRunsSerialise(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTracked(t, "1")
	require.NoError(t, store.UpsertTournament(ctx, &status.TrackedTournament{TournamentID: "1"}))

	// seed a bootstrap so later runs produce events
	seed := &gateFetcher{roster: fetched("a", "b")}
	_, syncErr := NewDefaultSyncManager(seed, store).SyncTournament(ctx, "1")
	require.Nil(t, syncErr)

	fetcher := &gateFetcher{roster: fetched("b", "c")}
	m := NewDefaultSyncManager(fetcher, store)

	const runs = 10
	var wg gosync.WaitGroup
	for range runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, syncErr := m.SyncTournament(ctx, "1")
			assert.Nil(t, syncErr)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(runs), fetcher.calls.Load())
	assert.False(t, fetcher.overlap.Load(), "runs for one tournament must not overlap")

	changes, err := store.ListChanges(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, changes, 2)
}

func TestSyncTournament_RecordsMetrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(ctx) })

	metrics, err := telemetry.NewSyncMetrics(mp)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	fetcher := sourcesmocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(nil, sources.ErrUnrecognizedShape)

	m := NewDefaultSyncManager(fetcher, newTracked(t, "1"), WithMetrics(metrics))
	_, syncErr := m.SyncTournament(ctx, "1")
	require.NotNil(t, syncErr)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	names := map[string]bool{}
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			names[metric.Name] = true
		}
	}
	assert.True(t, names["rostertrack_sync_failures_total"])
	assert.True(t, names["rostertrack_sync_duration_seconds"])
}

func TestTrack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("rejects ids the API cannot address", func(t *testing.T) {
		t.Parallel()

		for _, id := range []string{"   ", "a/b", "12 34", "12\t34"} {
			store := memory.New()
			m := NewDefaultSyncManager(sourcesmocks.NewMockFetcher(gomock.NewController(t)), store)

			_, err := m.Track(ctx, id, "Nameless", false)
			require.ErrorIs(t, err, ErrInvalidTournamentID, "id %q", id)

			tournaments, err := store.ListTournaments(ctx)
			require.NoError(t, err)
			assert.Empty(t, tournaments, "id %q must not be stored", id)
		}
	})

	t.Run("without initialize does not fetch", func(t *testing.T) {
		t.Parallel()

		store := memory.New()
		m := NewDefaultSyncManager(sourcesmocks.NewMockFetcher(gomock.NewController(t)), store)

		result, err := m.Track(ctx, " 77 ", " Club Night ", false)
		require.NoError(t, err)
		assert.Nil(t, result)

		got, err := store.GetTournament(ctx, "77")
		require.NoError(t, err)
		assert.Equal(t, "Club Night", got.DisplayName)
		assert.Nil(t, got.LastRun)
	})

	t.Run("with initialize bootstraps", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		fetcher := sourcesmocks.NewMockFetcher(ctrl)
		fetcher.EXPECT().Fetch(gomock.Any(), "77").Return(fetched("a", "b", "c"), nil)

		store := memory.New()
		m := NewDefaultSyncManager(fetcher, store)

		result, err := m.Track(ctx, "77", "", true)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.True(t, result.Bootstrap)
		assert.Equal(t, 3, result.ParticipantCount)
	})

	t.Run("initialize failure keeps the tournament tracked", func(t *testing.T) {
		t.Parallel()

		ctrl := gomock.NewController(t)
		fetcher := sourcesmocks.NewMockFetcher(ctrl)
		fetcher.EXPECT().Fetch(gomock.Any(), "77").Return(nil, sources.ErrNoValidEntries)

		store := memory.New()
		m := NewDefaultSyncManager(fetcher, store)

		result, err := m.Track(ctx, "77", "", true)
		assert.Nil(t, result)
		require.Error(t, err)

		var syncErr *Error
		require.ErrorAs(t, err, &syncErr)
		assert.Equal(t, ConditionReasonFetchFailed, syncErr.ConditionReason)

		got, err := store.GetTournament(ctx, "77")
		require.NoError(t, err)
		assert.Equal(t, 1, got.FailureCount)
	})
}

func TestUntrack(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	fetcher := sourcesmocks.NewMockFetcher(ctrl)
	fetcher.EXPECT().Fetch(gomock.Any(), "1").Return(fetched("a"), nil)

	store := newTracked(t, "1")
	m := NewDefaultSyncManager(fetcher, store)

	_, syncErr := m.SyncTournament(ctx, "1")
	require.Nil(t, syncErr)

	require.NoError(t, m.Untrack(ctx, "1"))

	_, err := store.GetTournament(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrTournamentNotFound)

	err = m.Untrack(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrTournamentNotFound)
}

func TestValidateTournamentID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		id      string
		wantErr bool
	}{
		{id: "12345"},
		{id: "spring-open_2025"},
		{id: "", wantErr: true},
		{id: "12/34", wantErr: true},
		{id: "12 34", wantErr: true},
		{id: "12\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			t.Parallel()

			err := ValidateTournamentID(tt.id)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTournamentID)
				return
			}
			require.NoError(t, err)
		})
	}
}
