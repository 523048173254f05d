package mirror

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
	"github.com/stacklok/search-mirror/pkg/status"
	syncer "github.com/stacklok/search-mirror/pkg/sync"
	"github.com/stacklok/search-mirror/pkg/sync/coordinator"
)

type syncRecorder struct {
	mu       sync.Mutex
	events   []string
	errs     []error
	stats    []*syncer.Stats
	finished chan struct{}
}

func newSyncRecorder() *syncRecorder {
	return &syncRecorder{finished: make(chan struct{}, 16)}
}

func (r *syncRecorder) SyncDidStart(*MirroredIndex) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "start")
}

func (r *syncRecorder) SyncDidFinish(_ *MirroredIndex, err error, stats *syncer.Stats) {
	r.mu.Lock()
	r.events = append(r.events, "finish")
	r.errs = append(r.errs, err)
	r.stats = append(r.stats, stats)
	r.mu.Unlock()
	r.finished <- struct{}{}
}

func (r *syncRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.finished:
	case <-time.After(10 * time.Second):
		t.Fatal("sync never finished")
	}
}

func (r *syncRecorder) snapshot() ([]string, []error, []*syncer.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...), append([]error(nil), r.errs...), append([]*syncer.Stats(nil), r.stats...)
}

// fakeManager counts syncs and fails them with err when set.
type fakeManager struct {
	syncer.Manager
	performed atomic.Int32
	err       *syncer.Error
	panics    atomic.Int32
}

func newFakeManager() *fakeManager {
	return &fakeManager{Manager: syncer.NewDefaultSyncManager()}
}

func (f *fakeManager) PerformSync(context.Context, syncer.Job) (*syncer.Stats, *syncer.Error) {
	f.performed.Add(1)
	if f.panics.Load() > 0 {
		f.panics.Add(-1)
		panic("remote gateway exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return &syncer.Stats{ObjectCount: 5}, nil
}

func selectAll(t *testing.T, maxObjects int) status.DataSelectionQuery {
	t.Helper()
	q, err := status.NewDataSelectionQuery(query.New(""), maxObjects)
	require.NoError(t, err)
	return q
}

func TestSync_Preconditions(t *testing.T) {
	t.Parallel()

	t.Run("no data selection queries", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.index.SetMirrored(true)
		assert.ErrorIs(t, f.index.Sync(context.Background()), searcherr.ErrNoDataSelectionQueries)
		assert.ErrorIs(t, f.index.SyncIfNeeded(context.Background()), searcherr.ErrNoDataSelectionQueries)
	})

	t.Run("not mirrored", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.index.SetDataSelectionQueries(selectAll(t, 10))
		assert.ErrorIs(t, f.index.Sync(context.Background()), searcherr.ErrMirrorNotActive)
		assert.ErrorIs(t, f.index.SyncIfNeeded(context.Background()), searcherr.ErrMirrorNotActive)
	})
}

func TestSync_EndToEnd(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithLocalEngine(openEngine))
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 3))
	recorder := newSyncRecorder()
	f.index.AddSyncListener(recorder)

	f.remote.EXPECT().GetSettings(gomock.Any()).
		Return(json.RawMessage(`{"searchableAttributes":["name"]}`), nil)
	f.remote.EXPECT().Browse(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, q *query.Query) (json.RawMessage, error) {
			hpp, ok := q.HitsPerPage()
			assert.True(t, ok)
			assert.Equal(t, 3, hpp)
			return json.RawMessage(`{"hits":[{"objectID":"1","name":"red phone"},{"objectID":"2","name":"blue phone"}],"cursor":"c1"}`), nil
		})
	f.remote.EXPECT().BrowseFrom(gomock.Any(), "c1").
		Return(json.RawMessage(`{"hits":[{"objectID":"3","name":"tablet"},{"objectID":"4","name":"laptop"}],"cursor":"c2"}`), nil)

	assert.False(t, f.index.HasOfflineData())
	require.NoError(t, f.index.Sync(context.Background()))
	recorder.wait(t)

	events, errs, stats := recorder.snapshot()
	assert.Equal(t, []string{"start", "finish"}, events)
	require.Len(t, errs, 1)
	assert.True(t, errs[0] == nil, "a successful sync reports a nil error, got %v", errs[0])
	require.NotNil(t, stats[0])
	assert.Equal(t, 3, stats[0].ObjectCount)

	assert.False(t, f.index.IsSyncing())
	assert.True(t, f.index.HasOfflineData())
	state := f.index.SyncState()
	assert.False(t, state.LastSyncDate.IsZero())
	assert.Equal(t, status.SyncPhaseComplete, state.Phase)
	assert.Equal(t, 3, state.ObjectCount)

	result, err := f.index.SearchOffline(context.Background(), query.New("phone"))
	require.NoError(t, err)
	assert.Equal(t, OriginLocal, result.Origin)
	assert.Equal(t, int64(2), result.Get("nbHits").Int())

	result, err = f.index.SearchOffline(context.Background(), query.New("laptop"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Get("nbHits").Int(), "objects beyond maxObjects are not mirrored")

	persisted, err := status.NewFileStore(f.client.DataDir()).Load(context.Background(), "products")
	require.NoError(t, err)
	assert.WithinDuration(t, state.LastSyncDate, persisted.LastSyncDate, time.Millisecond)
	assert.True(t, status.EqualQueries(state.Queries, persisted.Queries))

	scratch, err := os.ReadDir(f.client.TempDir())
	require.NoError(t, err)
	assert.Empty(t, scratch, "scratch directories are removed")
}

func TestSync_SecondCallWhileSyncingIsIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithLocalEngine(openEngine))
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 1))
	recorder := newSyncRecorder()
	f.index.AddSyncListener(recorder)

	release := make(chan struct{})
	f.remote.EXPECT().GetSettings(gomock.Any()).DoAndReturn(
		func(context.Context) (json.RawMessage, error) {
			<-release
			return json.RawMessage(`{}`), nil
		}).Times(1)
	f.remote.EXPECT().Browse(gomock.Any(), gomock.Any()).
		Return(json.RawMessage(`{"hits":[{"objectID":"1"}]}`), nil).Times(1)

	require.NoError(t, f.index.Sync(context.Background()))
	assert.True(t, f.index.IsSyncing())
	require.NoError(t, f.index.Sync(context.Background()))
	require.NoError(t, f.index.SyncIfNeeded(context.Background()))

	close(release)
	recorder.wait(t)

	select {
	case <-recorder.finished:
		t.Fatal("only one sync may run")
	case <-time.After(50 * time.Millisecond):
	}
	events, _, _ := recorder.snapshot()
	assert.Equal(t, []string{"start", "finish"}, events)
}

func TestSync_FailureIsDeliveredToListeners(t *testing.T) {
	t.Parallel()

	manager := newFakeManager()
	manager.err = &syncer.Error{
		Err:     searcherr.NewTransportError("all hosts failed", nil),
		Message: "failed to fetch index settings",
		Stage:   syncer.StageFetchSettings,
	}
	f := newFixture(t, WithSyncManager(manager))
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 10))
	recorder := newSyncRecorder()
	f.index.AddSyncListener(recorder)

	require.NoError(t, f.index.Sync(context.Background()))
	recorder.wait(t)

	_, errs, stats := recorder.snapshot()
	require.Len(t, errs, 1)
	var syncErr *syncer.Error
	require.ErrorAs(t, errs[0], &syncErr)
	assert.Equal(t, syncer.StageFetchSettings, syncErr.Stage)
	assert.Nil(t, stats[0])

	state := f.index.SyncState()
	assert.True(t, state.NeverSynced())
	assert.Equal(t, status.SyncPhaseFailed, state.Phase)
	assert.NotEmpty(t, state.Message)
}

func TestSync_PanicFailsTheSync(t *testing.T) {
	t.Parallel()

	manager := newFakeManager()
	manager.panics.Store(1)
	f := newFixture(t, WithSyncManager(manager))
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 10))
	recorder := newSyncRecorder()
	f.index.AddSyncListener(recorder)

	require.NoError(t, f.index.Sync(context.Background()))
	recorder.wait(t)

	events, errs, stats := recorder.snapshot()
	assert.Equal(t, []string{"start", "finish"}, events)
	var syncErr *syncer.Error
	require.ErrorAs(t, errs[0], &syncErr)
	assert.Equal(t, syncer.StageAborted, syncErr.Stage)
	assert.Contains(t, syncErr.Error(), "remote gateway exploded")
	assert.Nil(t, stats[0])

	state := f.index.SyncState()
	assert.Equal(t, status.SyncPhaseFailed, state.Phase)
	assert.False(t, f.index.IsSyncing())

	// The index is not stuck in the syncing phase
	require.NoError(t, f.index.SyncIfNeeded(context.Background()))
	recorder.wait(t)
	assert.Equal(t, int32(2), manager.performed.Load())
	_, errs, _ = recorder.snapshot()
	assert.NoError(t, errs[1])
	assert.Equal(t, status.SyncPhaseComplete, f.index.SyncState().Phase)
}

func TestSync_QueuedSyncFailsWhenCoordinatorStopsBeforeStart(t *testing.T) {
	t.Parallel()

	manager := newFakeManager()
	coord := coordinator.New()
	f := newFixture(t, WithSyncManager(manager), WithCoordinator(coord))
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 10))
	recorder := newSyncRecorder()
	f.index.AddSyncListener(recorder)

	require.NoError(t, f.index.Sync(context.Background()))
	assert.True(t, f.index.IsSyncing())

	require.NoError(t, coord.Stop())
	recorder.wait(t)

	events, errs, _ := recorder.snapshot()
	assert.Equal(t, []string{"start", "finish"}, events)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.False(t, f.index.IsSyncing())
	assert.Zero(t, manager.performed.Load())
	assert.ErrorIs(t, f.index.Sync(context.Background()), ErrClientClosed)
}

func TestSyncIfNeeded(t *testing.T) {
	t.Parallel()

	manager := newFakeManager()
	f := newFixture(t, WithSyncManager(manager))
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var clock atomic.Int64
	clock.Store(now.UnixNano())
	f.client.now = func() time.Time { return time.Unix(0, clock.Load()).UTC() }

	f.index.SetMirrored(true)
	require.NoError(t, f.index.SetDelayBetweenSyncs(time.Hour))
	f.index.SetDataSelectionQueries(selectAll(t, 10))
	recorder := newSyncRecorder()
	f.index.AddSyncListener(recorder)

	// Never synced
	require.NoError(t, f.index.SyncIfNeeded(context.Background()))
	recorder.wait(t)
	assert.Equal(t, int32(1), manager.performed.Load())

	// Fresh data
	require.NoError(t, f.index.SyncIfNeeded(context.Background()))
	assert.False(t, f.index.IsSyncing())
	assert.Equal(t, int32(1), manager.performed.Load())

	// Same queries do not count as a change
	f.index.SetDataSelectionQueries(selectAll(t, 10))
	require.NoError(t, f.index.SyncIfNeeded(context.Background()))
	assert.Equal(t, int32(1), manager.performed.Load())

	// Queries changed after the last sync
	clock.Add(int64(time.Minute))
	f.index.SetDataSelectionQueries(selectAll(t, 20))
	clock.Add(int64(time.Minute))
	require.NoError(t, f.index.SyncIfNeeded(context.Background()))
	recorder.wait(t)
	assert.Equal(t, int32(2), manager.performed.Load())

	// Delay between syncs elapsed
	clock.Add(int64(2 * time.Hour))
	require.NoError(t, f.index.SyncIfNeeded(context.Background()))
	recorder.wait(t)
	assert.Equal(t, int32(3), manager.performed.Load())
}

func TestSetters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	idx := f.index

	assert.Equal(t, FallbackOnFailure, idx.RequestStrategy())
	assert.Equal(t, DefaultFallbackTimeout, idx.OfflineFallbackTimeout())
	assert.Equal(t, DefaultDelayBetweenSyncs, idx.DelayBetweenSyncs())

	assert.ErrorIs(t, idx.SetDelayBetweenSyncs(0), searcherr.ErrInvalidArgument)
	assert.ErrorIs(t, idx.SetDelayBetweenSyncs(-time.Second), searcherr.ErrInvalidArgument)
	assert.ErrorIs(t, idx.SetOfflineFallbackTimeout(0), searcherr.ErrInvalidArgument)
	assert.Equal(t, DefaultDelayBetweenSyncs, idx.DelayBetweenSyncs())

	idx.SetDataSelectionQueries(selectAll(t, 10))
	first := idx.SyncState().QueriesModificationDate
	assert.False(t, first.IsZero())

	idx.AddDataSelectionQuery(selectAll(t, 5))
	assert.Len(t, idx.DataSelectionQueries(), 2)
}

func TestSetMirrored_LoadsPersistedState(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	lastSync := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	store := status.NewFileStore(dataDir)
	require.NoError(t, store.Save(context.Background(), "products", &status.SyncState{
		LastSyncDate: lastSync,
		Queries:      []status.DataSelectionQuery{selectAll(t, 50)},
		Phase:        status.SyncPhaseSyncing,
	}))

	f := newFixture(t, WithDataDir(dataDir))
	f.index.SetMirrored(true)

	state := f.index.SyncState()
	assert.True(t, lastSync.Equal(state.LastSyncDate))
	require.Len(t, state.Queries, 1)
	assert.Equal(t, 50, state.Queries[0].MaxObjects)
	assert.Equal(t, status.SyncPhaseFailed, state.Phase, "an interrupted sync does not block new ones")
}

func TestBuildOfflineFromFiles(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithLocalEngine(openEngine))
	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.json")
	objects := filepath.Join(dir, "objects.json")
	require.NoError(t, os.WriteFile(settings, []byte(`{"searchableAttributes":["name"]}`), 0600))
	require.NoError(t, os.WriteFile(objects, []byte(`[{"objectID":"1","name":"desk lamp"}]`), 0600))

	assert.ErrorIs(t, f.index.BuildOfflineFromFiles(context.Background(), settings, objects), searcherr.ErrMirrorNotActive)

	f.index.SetMirrored(true)
	assert.ErrorIs(t, f.index.BuildOfflineFromFiles(context.Background(), settings), searcherr.ErrInvalidArgument)

	finished := make(chan error, 1)
	var started atomic.Bool
	f.index.AddBuildListener(&BuildListenerFuncs{
		OnStart:  func(*MirroredIndex) { started.Store(true) },
		OnFinish: func(_ *MirroredIndex, err error) { finished <- err },
	})

	require.NoError(t, f.index.BuildOfflineFromFiles(context.Background(), settings, objects))
	select {
	case err := <-finished:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("build never finished")
	}
	assert.True(t, started.Load())
	assert.False(t, f.index.IsBuilding())

	result, err := f.index.SearchOffline(context.Background(), query.New("lamp"))
	require.NoError(t, err)
	assert.Equal(t, "1", result.Get("hits.0.objectID").String())
}

func TestBuildOfflineFromFiles_BadInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithLocalEngine(openEngine))
	f.index.SetMirrored(true)
	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.json")
	objects := filepath.Join(dir, "objects.json")
	require.NoError(t, os.WriteFile(settings, []byte(`{}`), 0600))
	require.NoError(t, os.WriteFile(objects, []byte(`not json`), 0600))

	finished := make(chan error, 1)
	f.index.AddBuildListener(&BuildListenerFuncs{
		OnFinish: func(_ *MirroredIndex, err error) { finished <- err },
	})

	require.NoError(t, f.index.BuildOfflineFromFiles(context.Background(), settings, objects))
	select {
	case err := <-finished:
		var buildErr *searcherr.BuildFailedError
		require.ErrorAs(t, err, &buildErr)
		assert.Equal(t, 400, buildErr.StatusCode)
	case <-time.After(10 * time.Second):
		t.Fatal("build never finished")
	}
}

func TestRemoveSyncListener(t *testing.T) {
	t.Parallel()

	manager := newFakeManager()
	f := newFixture(t, WithSyncManager(manager))
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 10))

	removed := newSyncRecorder()
	kept := newSyncRecorder()
	f.index.AddSyncListener(removed)
	f.index.AddSyncListener(kept)
	f.index.RemoveSyncListener(removed)

	require.NoError(t, f.index.Sync(context.Background()))
	kept.wait(t)

	events, _, _ := removed.snapshot()
	assert.Empty(t, events)
}

func TestSync_AfterClose(t *testing.T) {
	t.Parallel()

	f := newFixture(t, WithSyncManager(newFakeManager()))
	f.index.SetMirrored(true)
	f.index.SetDataSelectionQueries(selectAll(t, 10))
	require.NoError(t, f.client.Close())

	assert.ErrorIs(t, f.index.Sync(context.Background()), ErrClientClosed)
	assert.False(t, f.index.IsSyncing())
}
