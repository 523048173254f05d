package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stacklok/search-mirror/pkg/searcherr"
	"github.com/stacklok/search-mirror/pkg/status"
	syncer "github.com/stacklok/search-mirror/pkg/sync"
)

const (
	// DefaultFallbackTimeout is how long FallbackOnTimeout waits for the
	// remote index before querying the mirror.
	DefaultFallbackTimeout = time.Second

	// DefaultDelayBetweenSyncs is the maximum age of the mirrored data.
	DefaultDelayBetweenSyncs = 24 * time.Hour
)

// MirroredIndex is a remote index that can keep a subset of its data on disk
// and answer from it. It is safe for concurrent use.
type MirroredIndex struct {
	client *Client
	name   string
	remote RemoteGateway
	dir    string

	syncing  atomic.Bool
	building atomic.Bool

	mu                sync.Mutex
	mirrored          bool
	strategy          Strategy
	fallbackTimeout   time.Duration
	delayBetweenSyncs time.Duration
	state             status.SyncState
	local             LocalGateway
	syncListeners     []SyncListener
	buildListeners    []BuildListener
}

func newMirroredIndex(c *Client, name string, remote RemoteGateway) *MirroredIndex {
	return &MirroredIndex{
		client:            c,
		name:              name,
		remote:            remote,
		dir:               status.IndexDir(c.basePath(), name),
		strategy:          FallbackOnFailure,
		fallbackTimeout:   DefaultFallbackTimeout,
		delayBetweenSyncs: DefaultDelayBetweenSyncs,
	}
}

// Name returns the index name.
func (m *MirroredIndex) Name() string {
	return m.name
}

// Dir returns the directory of the mirror.
func (m *MirroredIndex) Dir() string {
	return m.dir
}

// Remote returns the remote gateway.
func (m *MirroredIndex) Remote() RemoteGateway {
	return m.remote
}

// Mirrored reports whether mirroring is enabled.
func (m *MirroredIndex) Mirrored() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mirrored
}

// SetMirrored enables or disables mirroring. Enabling it loads the persisted
// sync state of the index. Data selection queries set while the index was
// not mirrored take precedence over the persisted ones.
func (m *MirroredIndex) SetMirrored(mirrored bool) {
	m.mu.Lock()
	wasMirrored := m.mirrored
	m.mirrored = mirrored
	m.mu.Unlock()

	if !mirrored || wasMirrored {
		return
	}

	ctx := context.Background()
	loaded, err := m.client.store.Load(ctx, m.name)
	if err != nil {
		slog.WarnContext(ctx, "Failed to load mirror settings, starting from scratch",
			"index", m.name,
			"error", err)
		return
	}
	if loaded == nil {
		loaded = &status.SyncState{}
	}
	// A sync of a previous process never finished
	if loaded.Phase == status.SyncPhaseSyncing {
		loaded.Phase = status.SyncPhaseFailed
		loaded.Message = "sync interrupted"
	}

	m.mu.Lock()
	pending := m.state.Queries
	m.state = *loaded
	changed := len(pending) > 0 && !status.EqualQueries(pending, loaded.Queries)
	if changed {
		m.state.Queries = pending
		m.state.QueriesModificationDate = m.client.now()
	}
	m.mu.Unlock()

	if changed {
		m.save(ctx)
	}
}

// RequestStrategy returns the strategy of routed read operations.
func (m *MirroredIndex) RequestStrategy() Strategy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategy
}

// SetRequestStrategy sets the strategy of routed read operations.
func (m *MirroredIndex) SetRequestStrategy(s Strategy) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategy = s
}

// OfflineFallbackTimeout returns the FallbackOnTimeout delay.
func (m *MirroredIndex) OfflineFallbackTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fallbackTimeout
}

// SetOfflineFallbackTimeout sets the FallbackOnTimeout delay.
func (m *MirroredIndex) SetOfflineFallbackTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("fallback timeout must be positive: %w", searcherr.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbackTimeout = d
	return nil
}

// DelayBetweenSyncs returns the maximum age of the mirrored data.
func (m *MirroredIndex) DelayBetweenSyncs() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.delayBetweenSyncs
}

// SetDelayBetweenSyncs sets the maximum age of the mirrored data.
func (m *MirroredIndex) SetDelayBetweenSyncs(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("delay between syncs must be positive: %w", searcherr.ErrInvalidArgument)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayBetweenSyncs = d
	return nil
}

// DataSelectionQueries returns the queries selecting the mirrored data.
func (m *MirroredIndex) DataSelectionQueries() []status.DataSelectionQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.Queries)
}

// SetDataSelectionQueries replaces the queries selecting the mirrored data.
// The next SyncIfNeeded syncs when the list changed.
func (m *MirroredIndex) SetDataSelectionQueries(queries ...status.DataSelectionQuery) {
	m.mu.Lock()
	if status.EqualQueries(m.state.Queries, queries) {
		m.mu.Unlock()
		return
	}
	m.state.Queries = slices.Clone(queries)
	m.state.QueriesModificationDate = m.client.now()
	m.mu.Unlock()

	m.save(context.Background())
}

// AddDataSelectionQuery appends a query selecting mirrored data.
func (m *MirroredIndex) AddDataSelectionQuery(q status.DataSelectionQuery) {
	m.mu.Lock()
	m.state.Queries = append(slices.Clone(m.state.Queries), q)
	m.state.QueriesModificationDate = m.client.now()
	m.mu.Unlock()

	m.save(context.Background())
}

// SyncState returns a copy of the sync state.
func (m *MirroredIndex) SyncState() status.SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.state
	state.Queries = slices.Clone(m.state.Queries)
	return state
}

// LastSyncDate returns the completion time of the last successful sync.
func (m *MirroredIndex) LastSyncDate() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.LastSyncDate
}

// IsSyncing reports whether a sync is queued or running.
func (m *MirroredIndex) IsSyncing() bool {
	return m.syncing.Load()
}

// HasOfflineData reports whether the mirror holds data.
func (m *MirroredIndex) HasOfflineData() bool {
	if !m.Mirrored() {
		return false
	}
	lg, err := m.localGateway(context.Background())
	if err != nil {
		return false
	}
	return lg.HasOfflineData()
}

// policy returns the staleness settings.
func (m *MirroredIndex) policy() syncer.Policy {
	m.mu.Lock()
	defer m.mu.Unlock()
	return syncer.Policy{DelayBetweenSyncs: m.delayBetweenSyncs}
}

// localGateway opens the mirror on first use.
func (m *MirroredIndex) localGateway(ctx context.Context) (LocalGateway, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.local != nil {
		return m.local, nil
	}
	lg, err := m.client.openLocal(ctx, m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open local index %s: %w", m.name, err)
	}
	m.local = lg
	return lg, nil
}

func (m *MirroredIndex) closeLocal() error {
	m.mu.Lock()
	lg := m.local
	m.local = nil
	m.mu.Unlock()

	if lg == nil {
		return nil
	}
	return lg.Close()
}

// save persists the sync state. Failures are logged.
func (m *MirroredIndex) save(ctx context.Context) {
	state := m.SyncState()
	if err := m.client.store.Save(ctx, m.name, &state); err != nil {
		slog.WarnContext(ctx, "Failed to persist mirror settings",
			"index", m.name,
			"error", err)
	}
}
