package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/stacklok/search-mirror/pkg/query"
	"github.com/stacklok/search-mirror/pkg/searcherr"
	"github.com/stacklok/search-mirror/pkg/status"
)

// Reason explains a ShouldSync decision
type Reason string

// Sync reason constants
const (
	// ReasonAlreadyInProgress means a sync of the index is running
	ReasonAlreadyInProgress Reason = "sync-already-in-progress"

	// ReasonNeverSynced means no sync ever completed
	ReasonNeverSynced Reason = "never-synced"

	// ReasonQueriesChanged means the data selection queries changed after the last sync
	ReasonQueriesChanged Reason = "queries-changed"

	// ReasonIntervalElapsed means the last sync is older than the delay between syncs
	ReasonIntervalElapsed Reason = "interval-elapsed"

	// ReasonUpToDate means the local data is fresh enough
	ReasonUpToDate Reason = "up-to-date"
)

// ShouldSync reports whether the reason calls for a sync
func (r Reason) ShouldSync() bool {
	switch r {
	case ReasonNeverSynced, ReasonQueriesChanged, ReasonIntervalElapsed:
		return true
	default:
		return false
	}
}

// Stage identifies the pipeline step a sync failed in
type Stage string

// Pipeline stages
const (
	StageScratch       Stage = "scratch"
	StageFetchSettings Stage = "fetch-settings"
	StageFetchObjects  Stage = "fetch-objects"
	StageBuild         Stage = "build"
	StagePrecondition  Stage = "precondition"
	StageAborted       Stage = "aborted"
)

const (
	scratchSettingsFile  = "settings.json"
	maxBrowseHitsPerPage = 1000
)

// Error represents a sync failure with the stage it happened in
type Error struct {
	Err     error
	Message string
	Stage   Stage
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(stage Stage, err error, format string, args ...any) *Error {
	return &Error{
		Err:     err,
		Message: fmt.Sprintf(format, args...) + ": " + err.Error(),
		Stage:   stage,
	}
}

// Policy holds the staleness settings of a mirrored index
type Policy struct {
	// DelayBetweenSyncs is the maximum age of the local data
	DelayBetweenSyncs time.Duration
}

// RemoteSource is the remote index a sync pulls data from
//
//go:generate mockgen -destination=mocks/mock_sources.go -package=mocks -source=manager.go RemoteSource,LocalBuilder
type RemoteSource interface {
	// GetSettings fetches the index settings
	GetSettings(ctx context.Context) (json.RawMessage, error)

	// Browse fetches the first page of objects matching q
	Browse(ctx context.Context, q *query.Query) (json.RawMessage, error)

	// BrowseFrom fetches the page following cursor
	BrowseFrom(ctx context.Context, cursor string) (json.RawMessage, error)
}

// LocalBuilder is the local index a sync rebuilds
type LocalBuilder interface {
	// Build replaces the local data with the content of the given files and
	// returns an HTTP-like status code
	Build(ctx context.Context, settingsPath string, objectPaths []string, clear bool, deletedIDs []string) int
}

// Job describes one sync of one index
type Job struct {
	IndexName string
	Queries   []status.DataSelectionQuery
	Remote    RemoteSource
	Local     LocalBuilder
	// TempDir is the parent of the job scratch directory
	TempDir string
}

// Manager decides when an index needs a sync and runs the sync pipeline
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks github.com/stacklok/search-mirror/pkg/sync Manager
type Manager interface {
	// ShouldSync determines if a sync operation is needed
	ShouldSync(state *status.SyncState, policy Policy, now time.Time) (bool, Reason)

	// PerformSync executes the complete fetch and build pipeline
	PerformSync(ctx context.Context, job Job) (*Stats, *Error)
}

// QueryChangeDetector detects data selection query changes
type QueryChangeDetector interface {
	// IsQueriesChanged checks if the queries changed after the last sync
	IsQueriesChanged(state *status.SyncState) bool
}

// AutomaticSyncChecker handles automatic sync timing logic
type AutomaticSyncChecker interface {
	// IsIntervalSyncNeeded checks if sync is needed based on the delay between syncs.
	// Returns (syncNeeded, nextSyncTime)
	IsIntervalSyncNeeded(state *status.SyncState, policy Policy, now time.Time) (bool, time.Time)
}

// defaultSyncManager is the default implementation of Manager
type defaultSyncManager struct {
	queryChangeDetector  QueryChangeDetector
	automaticSyncChecker AutomaticSyncChecker
}

// NewDefaultSyncManager creates a new defaultSyncManager
func NewDefaultSyncManager() Manager {
	return &defaultSyncManager{
		queryChangeDetector:  &DefaultQueryChangeDetector{},
		automaticSyncChecker: &DefaultAutomaticSyncChecker{},
	}
}

// ShouldSync determines if a sync operation is needed.
// A sync is needed when the last one is older than the delay between syncs or
// when the queries changed after it.
func (s *defaultSyncManager) ShouldSync(state *status.SyncState, policy Policy, now time.Time) (bool, Reason) {
	if state == nil {
		return true, ReasonNeverSynced
	}

	// If the index is currently syncing, don't start another sync
	if state.Phase == status.SyncPhaseSyncing {
		return false, ReasonAlreadyInProgress
	}

	if state.NeverSynced() {
		return true, ReasonNeverSynced
	}
	if s.queryChangeDetector.IsQueriesChanged(state) {
		return true, ReasonQueriesChanged
	}
	if elapsed, _ := s.automaticSyncChecker.IsIntervalSyncNeeded(state, policy, now); elapsed {
		return true, ReasonIntervalElapsed
	}
	return false, ReasonUpToDate
}

// PerformSync fetches the settings and every data selection query into a
// scratch directory, then rebuilds the local index from those files. The
// scratch directory is removed whatever the outcome.
func (*defaultSyncManager) PerformSync(ctx context.Context, job Job) (*Stats, *Error) {
	if len(job.Queries) == 0 {
		return nil, &Error{
			Err:     searcherr.ErrNoDataSelectionQueries,
			Message: searcherr.ErrNoDataSelectionQueries.Error(),
			Stage:   StagePrecondition,
		}
	}

	stats := &Stats{}
	start := time.Now()
	logger := slog.With("index", job.IndexName)

	tmpDir := filepath.Join(job.TempDir, uuid.NewString())
	if err := os.MkdirAll(tmpDir, 0750); err != nil {
		return nil, newError(StageScratch, err, "failed to create scratch directory")
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.WarnContext(ctx, "Failed to remove scratch directory", "dir", tmpDir, "error", err)
		}
	}()

	// Settings, queries and pages are fetched one at a time, in order
	settings, err := job.Remote.GetSettings(ctx)
	if err != nil {
		return nil, newError(StageFetchSettings, err, "failed to fetch index settings")
	}
	settingsPath := filepath.Join(tmpDir, scratchSettingsFile)
	if err := os.WriteFile(settingsPath, settings, 0600); err != nil {
		return nil, newError(StageScratch, err, "failed to write settings file")
	}

	var objectFiles []string
	for _, q := range job.Queries {
		files, retrieved, err := fetchQuery(ctx, job.Remote, q, tmpDir, len(objectFiles))
		objectFiles = append(objectFiles, files...)
		stats.ObjectCount += retrieved
		if err != nil {
			return nil, err
		}
	}

	afterFetch := time.Now()
	stats.FetchDuration = afterFetch.Sub(start)
	stats.FileCount = len(objectFiles)

	if code := job.Local.Build(ctx, settingsPath, objectFiles, true, nil); code != http.StatusOK {
		buildErr := &searcherr.BuildFailedError{StatusCode: code}
		return nil, newError(StageBuild, buildErr, "failed to build local index")
	}

	afterBuild := time.Now()
	stats.BuildDuration = afterBuild.Sub(afterFetch)
	stats.TotalDuration = afterBuild.Sub(start)

	logger.InfoContext(ctx, "Sync completed", "stats", stats.String())
	return stats, nil
}

// fetchQuery browses the objects selected by q, writing the hits of every page
// to a numbered file in dir, until the cursor is exhausted or MaxObjects
// objects were retrieved. A page without hits ends the query without failing
// the sync.
func fetchQuery(
	ctx context.Context, remote RemoteSource, q status.DataSelectionQuery, dir string, fileNo int,
) ([]string, int, *Error) {
	var files []string
	retrieved := 0
	cursor := ""

	browseQuery := q.Query.Clone()
	if _, ok := browseQuery.HitsPerPage(); !ok && q.MaxObjects > 0 {
		browseQuery.SetHitsPerPage(min(q.MaxObjects, maxBrowseHitsPerPage))
	}

	for first := true; retrieved < q.MaxObjects && (first || cursor != ""); first = false {
		var (
			page json.RawMessage
			err  error
		)
		if first {
			page, err = remote.Browse(ctx, browseQuery)
		} else {
			page, err = remote.BrowseFrom(ctx, cursor)
		}
		if err != nil {
			return files, retrieved, newError(StageFetchObjects, err, "failed to browse %q", q.Query.Build())
		}

		hits := gjson.GetBytes(page, "hits")
		if !hits.IsArray() {
			slog.ErrorContext(ctx, "No hits in browse result, skipping the rest of the query",
				"query", q.Query.Build(),
				"error", &searcherr.MalformedResponseError{Field: "hits"})
			break
		}
		cursor = gjson.GetBytes(page, "cursor").String()

		objects := hits.Array()
		if remaining := q.MaxObjects - retrieved; len(objects) > remaining {
			objects = objects[:remaining]
		}

		path := filepath.Join(dir, fmt.Sprintf("%d.json", fileNo+len(files)))
		if err := writeHits(path, objects); err != nil {
			return files, retrieved, newError(StageScratch, err, "failed to write object file")
		}
		files = append(files, path)
		retrieved += len(objects)
	}
	return files, retrieved, nil
}

func writeHits(path string, hits []gjson.Result) error {
	raw := make([]json.RawMessage, 0, len(hits))
	for _, h := range hits {
		raw = append(raw, json.RawMessage(h.Raw))
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
