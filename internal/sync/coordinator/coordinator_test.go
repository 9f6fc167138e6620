package coordinator

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/rostertrack/rostertrack/internal/config"
	"github.com/rostertrack/rostertrack/internal/status"
	"github.com/rostertrack/rostertrack/internal/storage"
	"github.com/rostertrack/rostertrack/internal/storage/memory"
	storagemocks "github.com/rostertrack/rostertrack/internal/storage/mocks"
	"github.com/rostertrack/rostertrack/internal/sync"
	syncmocks "github.com/rostertrack/rostertrack/internal/sync/mocks"
)

func trackedStore(t *testing.T, ids ...string) storage.Store {
	t.Helper()
	store := memory.New()
	for _, id := range ids {
		require.NoError(t, store.UpsertTournament(context.Background(), &status.TrackedTournament{TournamentID: id}))
	}
	return store
}

// fakeManager runs SyncTournament through a caller supplied function
type fakeManager struct {
	fn func(ctx context.Context, id string) (*sync.Result, *sync.Error)
}

func (f *fakeManager) SyncTournament(ctx context.Context, id string) (*sync.Result, *sync.Error) {
	return f.fn(ctx, id)
}

func (*fakeManager) Track(context.Context, string, string, bool) (*sync.Result, error) {
	return nil, nil
}

func (*fakeManager) Untrack(context.Context, string) error {
	return nil
}

func TestJitteredInterval(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		interval time.Duration
		maxDelta time.Duration
	}{
		{name: "hourly is capped", interval: time.Hour, maxDelta: maxJitter},
		{name: "short interval uses ten percent", interval: 10 * time.Second, maxDelta: time.Second},
		{name: "tiny interval has no jitter", interval: 5 * time.Nanosecond, maxDelta: 0},
		{name: "zero stays zero", interval: 0, maxDelta: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			for range 100 {
				got := jitteredInterval(tt.interval)
				assert.GreaterOrEqual(t, got, tt.interval-tt.maxDelta)
				assert.LessOrEqual(t, got, tt.interval+tt.maxDelta)
			}
		})
	}
}

func TestCoordinator_New(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	runOnStart := false

	c := New(syncmocks.NewMockManager(ctrl), memory.New(), &config.SyncConfig{
		Interval:    "5m",
		Concurrency: 2,
		RunOnStart:  &runOnStart,
		LockFile:    filepath.Join(t.TempDir(), "batch.lock"),
	})

	dc, ok := c.(*defaultCoordinator)
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, dc.interval)
	assert.Equal(t, 2, dc.concurrency)
	assert.False(t, dc.runOnStart)
	assert.NotNil(t, dc.fileLock)

	c = New(syncmocks.NewMockManager(ctrl), memory.New(), nil, WithConcurrency(9), WithInterval(time.Second))
	dc = c.(*defaultCoordinator)
	assert.Equal(t, 9, dc.concurrency)
	assert.Equal(t, time.Second, dc.interval)
	assert.True(t, dc.runOnStart)
	assert.Nil(t, dc.fileLock)
}

func TestCoordinator_Stop_BeforeStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := New(syncmocks.NewMockManager(ctrl), memory.New(), nil)

	assert.NoError(t, c.Stop())
}

func TestTriggerAll_CollectsResultsAndFailures(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	manager := syncmocks.NewMockManager(ctrl)

	manager.EXPECT().SyncTournament(gomock.Any(), "1").
		Return(&sync.Result{TournamentID: "1", Joined: 2}, nil)
	manager.EXPECT().SyncTournament(gomock.Any(), "2").
		Return(nil, &sync.Error{
			Err:             errors.New("HTTP 503"),
			Message:         "Fetch failed: HTTP 503",
			ConditionType:   sync.ConditionSourceAvailable,
			ConditionReason: sync.ConditionReasonFetchFailed,
		})
	manager.EXPECT().SyncTournament(gomock.Any(), "3").
		Return(&sync.Result{TournamentID: "3", Left: 1}, nil)
	manager.EXPECT().SyncTournament(gomock.Any(), "4").
		Return(nil, &sync.Error{
			Err:             storage.ErrTournamentNotFound,
			Message:         "Tournament 4 is not tracked",
			ConditionType:   sync.ConditionTracked,
			ConditionReason: sync.ConditionReasonNotTracked,
		})

	c := New(manager, trackedStore(t, "3", "1", "4", "2"), nil)

	batch, err := c.TriggerAll(ctx)
	require.NoError(t, err)

	require.Equal(t, 2, batch.Succeeded())
	assert.Equal(t, "1", batch.Results[0].TournamentID)
	assert.Equal(t, "3", batch.Results[1].TournamentID)

	require.Equal(t, 1, batch.Failed())
	assert.Equal(t, Failure{
		TournamentID: "2",
		Reason:       sync.ConditionReasonFetchFailed,
		Message:      "Fetch failed: HTTP 503",
	}, batch.Failures[0])
}

func TestTriggerAll_EmptyStore(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := New(syncmocks.NewMockManager(ctrl), memory.New(), nil)

	batch, err := c.TriggerAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, batch.Succeeded())
	assert.Zero(t, batch.Failed())
}

func TestTriggerAll_ListError(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	store := storagemocks.NewMockStore(ctrl)
	store.EXPECT().ListTournaments(gomock.Any()).Return(nil, errors.New("connection refused"))

	c := New(syncmocks.NewMockManager(ctrl), store, nil)

	batch, err := c.TriggerAll(context.Background())
	assert.Nil(t, batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list tracked tournaments")
}

func TestTriggerAll_RespectsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, maxSeen atomic.Int32
	manager := &fakeManager{fn: func(_ context.Context, id string) (*sync.Result, *sync.Error) {
		n := inFlight.Add(1)
		for {
			prev := maxSeen.Load()
			if n <= prev || maxSeen.CompareAndSwap(prev, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return &sync.Result{TournamentID: id}, nil
	}}

	c := New(manager, trackedStore(t, "a", "b", "c", "d", "e", "f"), nil, WithConcurrency(2))

	batch, err := c.TriggerAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, batch.Succeeded())
	assert.LessOrEqual(t, maxSeen.Load(), int32(2))
}

func TestTriggerAll_RejectsOverlappingBatch(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	manager := &fakeManager{fn: func(_ context.Context, id string) (*sync.Result, *sync.Error) {
		close(started)
		<-release
		return &sync.Result{TournamentID: id}, nil
	}}

	c := New(manager, trackedStore(t, "1"), nil)

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.TriggerAll(context.Background())
		firstDone <- err
	}()

	<-started
	_, err := c.TriggerAll(context.Background())
	assert.ErrorIs(t, err, ErrBatchInProgress)

	close(release)
	require.NoError(t, <-firstDone)
}

func TestTriggerAll_LockFileHeldElsewhere(t *testing.T) {
	t.Parallel()

	lockPath := filepath.Join(t.TempDir(), "batch.lock")
	other := flock.New(lockPath)
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	var calls atomic.Int32
	manager := &fakeManager{fn: func(_ context.Context, id string) (*sync.Result, *sync.Error) {
		calls.Add(1)
		return &sync.Result{TournamentID: id}, nil
	}}

	c := New(manager, trackedStore(t, "1"), nil, WithLockFile(lockPath))

	_, err = c.TriggerAll(context.Background())
	assert.ErrorIs(t, err, ErrBatchInProgress)
	assert.Zero(t, calls.Load())

	require.NoError(t, other.Unlock())

	batch, err := c.TriggerAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Succeeded())
	assert.Equal(t, int32(1), calls.Load())
}

func TestStart_RunOnStartAndStop(t *testing.T) {
	t.Parallel()

	synced := make(chan string, 1)
	manager := &fakeManager{fn: func(_ context.Context, id string) (*sync.Result, *sync.Error) {
		synced <- id
		return &sync.Result{TournamentID: id}, nil
	}}

	c := New(manager, trackedStore(t, "42"), nil, WithInterval(time.Hour), WithRunOnStart(true))

	startErr := make(chan error, 1)
	go func() {
		startErr <- c.Start(context.Background())
	}()

	select {
	case id := <-synced:
		assert.Equal(t, "42", id)
	case <-time.After(5 * time.Second):
		t.Fatal("initial batch did not run")
	}

	require.Eventually(t, func() bool {
		dc := c.(*defaultCoordinator)
		dc.mu.Lock()
		defer dc.mu.Unlock()
		return dc.done != nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop())
	require.NoError(t, <-startErr)
}

func TestStart_ContextCancelStopsLoop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := New(syncmocks.NewMockManager(ctrl), memory.New(), nil, WithRunOnStart(false), WithInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() {
		startErr <- c.Start(ctx)
	}()

	cancel()

	select {
	case err := <-startErr:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("coordinator did not stop after context cancel")
	}
}

func TestStart_Twice(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	c := New(syncmocks.NewMockManager(ctrl), memory.New(), nil, WithRunOnStart(false), WithInterval(time.Hour))

	go func() { _ = c.Start(context.Background()) }()

	dc := c.(*defaultCoordinator)
	require.Eventually(t, func() bool {
		dc.mu.Lock()
		defer dc.mu.Unlock()
		return dc.done != nil
	}, time.Second, 10*time.Millisecond)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, c.Stop())
}
