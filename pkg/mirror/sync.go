package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/search-mirror/pkg/searcherr"
	"github.com/stacklok/search-mirror/pkg/status"
	syncer "github.com/stacklok/search-mirror/pkg/sync"
)

// Sync queues a sync of the mirror. It returns once the sync is queued, or at
// once when a sync is already queued or running. The outcome is delivered to
// the sync listeners.
func (m *MirroredIndex) Sync(ctx context.Context) error {
	if err := m.checkSyncPreconditions(); err != nil {
		return err
	}
	return m.startSync(ctx, "manual")
}

// SyncIfNeeded queues a sync when the mirrored data is older than the delay
// between syncs or the data selection queries changed after the last sync.
func (m *MirroredIndex) SyncIfNeeded(ctx context.Context) error {
	if err := m.checkSyncPreconditions(); err != nil {
		return err
	}

	state := m.SyncState()
	needed, reason := m.client.manager.ShouldSync(&state, m.policy(), m.client.now())
	if !needed {
		slog.DebugContext(ctx, "Sync not needed", "index", m.name, "reason", reason)
		return nil
	}
	return m.startSync(ctx, string(reason))
}

func (m *MirroredIndex) checkSyncPreconditions() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.state.Queries) == 0 {
		return searcherr.ErrNoDataSelectionQueries
	}
	if !m.mirrored {
		return searcherr.ErrMirrorNotActive
	}
	return nil
}

// startSync queues one sync unless one is in flight.
func (m *MirroredIndex) startSync(ctx context.Context, reason string) error {
	if !m.syncing.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "Sync already in progress", "index", m.name)
		return nil
	}

	lg, err := m.localGateway(ctx)
	if err != nil {
		m.syncing.Store(false)
		return err
	}

	job := syncer.Job{
		IndexName: m.name,
		Queries:   m.DataSelectionQueries(),
		Remote:    m.remote,
		Local:     lg,
		TempDir:   m.client.tempDir,
	}
	if err := m.client.submit(func(ctx context.Context) { m.runSync(ctx, job) }); err != nil {
		m.syncing.Store(false)
		return err
	}

	slog.InfoContext(ctx, "Sync queued", "index", m.name, "reason", reason)
	return nil
}

// runSync executes a queued sync on the sync worker.
func (m *MirroredIndex) runSync(ctx context.Context, job syncer.Job) {
	start := m.client.now()
	began := time.Now()

	var (
		stats   *syncer.Stats
		syncErr *syncer.Error
	)
	m.notifySync(func(l SyncListener) { l.SyncDidStart(m) })

	defer func() {
		m.syncing.Store(false)

		var err error
		if syncErr != nil {
			err = syncErr
		}
		m.client.syncMetrics.RecordSyncDuration(ctx, m.name, time.Since(began), err == nil)
		if stats != nil {
			m.client.syncMetrics.RecordObjectsSynced(ctx, m.name, stats.ObjectCount)
		}
		m.notifySync(func(l SyncListener) { l.SyncDidFinish(m, err, stats) })
	}()

	m.mu.Lock()
	m.state.Phase = status.SyncPhaseSyncing
	m.state.Message = ""
	m.state.LastAttempt = start
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		syncErr = &syncer.Error{Err: err, Message: "sync cancelled before it started", Stage: syncer.StagePrecondition}
	} else {
		stats, syncErr = m.performSync(ctx, job)
	}

	m.mu.Lock()
	if syncErr == nil {
		m.state.LastSyncDate = m.client.now()
		m.state.Phase = status.SyncPhaseComplete
		m.state.ObjectCount = stats.ObjectCount
	} else {
		m.state.Phase = status.SyncPhaseFailed
		m.state.Message = syncErr.Error()
	}
	m.mu.Unlock()
	m.save(ctx)

	if syncErr != nil {
		slog.ErrorContext(ctx, "Sync failed",
			"index", m.name,
			"stage", syncErr.Stage,
			"error", syncErr.Err)
		return
	}
	if counter, ok := job.Local.(interface {
		ObjectCount(ctx context.Context) (int, error)
	}); ok {
		if n, err := counter.ObjectCount(ctx); err == nil {
			m.client.requestMetrics.RecordLocalObjects(ctx, m.name, int64(n))
		}
	}
}

// performSync runs the sync pipeline. A panic fails the sync like any other
// pipeline error so the index leaves the syncing phase.
func (m *MirroredIndex) performSync(ctx context.Context, job syncer.Job) (stats *syncer.Stats, syncErr *syncer.Error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Sync pipeline panicked", "index", m.name, "panic", r)
			stats = nil
			syncErr = &syncer.Error{
				Err:     fmt.Errorf("sync pipeline panicked: %v", r),
				Message: fmt.Sprintf("sync aborted: %v", r),
				Stage:   syncer.StageAborted,
			}
		}
	}()
	return m.client.manager.PerformSync(ctx, job)
}

// IsBuilding reports whether a manual build is queued or running.
func (m *MirroredIndex) IsBuilding() bool {
	return m.building.Load()
}

// BuildOfflineFromFiles queues a rebuild of the mirror from a settings file
// and object files, on the same worker as syncs. A build requested while one
// is in flight is ignored. The outcome is delivered to the build listeners.
func (m *MirroredIndex) BuildOfflineFromFiles(ctx context.Context, settingsPath string, objectPaths ...string) error {
	if !m.Mirrored() {
		return searcherr.ErrMirrorNotActive
	}
	if settingsPath == "" || len(objectPaths) == 0 {
		return fmt.Errorf("a settings file and at least one object file are required: %w", searcherr.ErrInvalidArgument)
	}
	if !m.building.CompareAndSwap(false, true) {
		slog.DebugContext(ctx, "Build already in progress", "index", m.name)
		return nil
	}

	lg, err := m.localGateway(ctx)
	if err != nil {
		m.building.Store(false)
		return err
	}

	err = m.client.submit(func(ctx context.Context) {
		m.notifyBuild(func(l BuildListener) { l.BuildDidStart(m) })

		var buildErr error
		defer func() {
			m.building.Store(false)
			m.notifyBuild(func(l BuildListener) { l.BuildDidFinish(m, buildErr) })
		}()

		if err := ctx.Err(); err != nil {
			buildErr = err
			return
		}
		if code := lg.Build(ctx, settingsPath, objectPaths, true, nil); code != http.StatusOK {
			buildErr = &searcherr.BuildFailedError{StatusCode: code}
			slog.ErrorContext(ctx, "Build from files failed", "index", m.name, "error", buildErr)
		}
	})
	if err != nil {
		m.building.Store(false)
		return err
	}
	return nil
}
