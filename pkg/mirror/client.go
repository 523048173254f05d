package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/search-mirror/internal/telemetry"
	"github.com/stacklok/search-mirror/pkg/httpclient"
	"github.com/stacklok/search-mirror/pkg/index"
	"github.com/stacklok/search-mirror/pkg/searcherr"
	"github.com/stacklok/search-mirror/pkg/status"
	syncer "github.com/stacklok/search-mirror/pkg/sync"
	"github.com/stacklok/search-mirror/pkg/sync/coordinator"
)

// AppName names the default data and temporary directories.
const AppName = "search-mirror"

// ErrClientClosed is returned when work is submitted to a closed client.
var ErrClientClosed = errors.New("mirror client closed")

// Option configures a Client.
type Option func(*Client) error

// WithDataDir sets the directory holding the mirrors. Each application gets
// a subdirectory named after its application ID.
func WithDataDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return fmt.Errorf("data directory cannot be empty: %w", searcherr.ErrInvalidArgument)
		}
		c.dataDir = dir
		return nil
	}
}

// WithTempDir sets the parent of the sync scratch directories.
func WithTempDir(dir string) Option {
	return func(c *Client) error {
		if dir == "" {
			return fmt.Errorf("temporary directory cannot be empty: %w", searcherr.ErrInvalidArgument)
		}
		c.tempDir = dir
		return nil
	}
}

// WithCompletionExecutor delivers completion handlers and listener
// notifications through e instead of a serial executor owned by the client.
func WithCompletionExecutor(e Executor) Option {
	return func(c *Client) error {
		if e == nil {
			return fmt.Errorf("executor cannot be nil: %w", searcherr.ErrInvalidArgument)
		}
		c.executor = e
		return nil
	}
}

// WithCoordinator runs syncs and builds on coord. The caller starts and stops
// it; every index of the client registers with it for auto-sync.
func WithCoordinator(coord coordinator.Coordinator) Option {
	return func(c *Client) error {
		if coord == nil {
			return fmt.Errorf("coordinator cannot be nil: %w", searcherr.ErrInvalidArgument)
		}
		c.coordinator = coord
		return nil
	}
}

// WithSettingsStore persists the sync state of the indices in store.
func WithSettingsStore(store status.Store) Option {
	return func(c *Client) error {
		c.store = store
		return nil
	}
}

// WithLocalEngine opens local gateways with open.
func WithLocalEngine(open LocalOpener) Option {
	return func(c *Client) error {
		c.openLocal = open
		return nil
	}
}

// WithRemoteGateways builds the remote gateway of each index with factory.
func WithRemoteGateways(factory RemoteFactory) Option {
	return func(c *Client) error {
		c.newRemote = factory
		return nil
	}
}

// WithIndexOptions applies opts to the remote index of every mirrored index.
func WithIndexOptions(opts ...index.Option) Option {
	return func(c *Client) error {
		c.indexOptions = append(c.indexOptions, opts...)
		return nil
	}
}

// WithSyncManager replaces the sync pipeline.
func WithSyncManager(manager syncer.Manager) Option {
	return func(c *Client) error {
		c.manager = manager
		return nil
	}
}

// WithSyncMetrics records sync metrics.
func WithSyncMetrics(m *telemetry.SyncMetrics) Option {
	return func(c *Client) error {
		c.syncMetrics = m
		return nil
	}
}

// WithRequestMetrics records routed request metrics.
func WithRequestMetrics(m *telemetry.RequestMetrics) Option {
	return func(c *Client) error {
		c.requestMetrics = m
		return nil
	}
}

// WithTracer traces routed requests.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) error {
		c.tracer = tracer
		return nil
	}
}

// Client hands out the mirrored indices of one application. It owns the
// single worker every sync and build runs on.
type Client struct {
	api     *httpclient.Client
	dataDir string
	tempDir string

	executor        Executor
	ownedExecutor   *SerialExecutor
	coordinator     coordinator.Coordinator
	ownsCoordinator bool

	store          status.Store
	openLocal      LocalOpener
	newRemote      RemoteFactory
	indexOptions   []index.Option
	manager        syncer.Manager
	syncMetrics    *telemetry.SyncMetrics
	requestMetrics *telemetry.RequestMetrics
	tracer         trace.Tracer
	now            func() time.Time

	mu      sync.Mutex
	indices map[string]*MirroredIndex
	closed  bool
}

// NewClient creates a client for the application of api. api may be nil
// when WithRemoteGateways is given.
func NewClient(api *httpclient.Client, opts ...Option) (*Client, error) {
	c := &Client{
		api:     api,
		dataDir: filepath.Join(xdg.DataHome, AppName),
		tempDir: filepath.Join(xdg.CacheHome, AppName, "tmp"),
		indices: make(map[string]*MirroredIndex),
		now:     time.Now,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.newRemote == nil {
		if api == nil {
			return nil, fmt.Errorf("an API client or a remote gateway factory is required: %w", searcherr.ErrInvalidArgument)
		}
		c.newRemote = func(name string) RemoteGateway {
			return index.New(api, name, append([]index.Option{index.WithTracer(c.tracer)}, c.indexOptions...)...)
		}
	}
	if c.openLocal == nil {
		c.openLocal = openEngine
	}
	if c.store == nil {
		c.store = status.NewFileStore(c.basePath())
	}
	if c.manager == nil {
		c.manager = syncer.NewDefaultSyncManager()
	}
	if c.executor == nil {
		c.ownedExecutor = NewSerialExecutor()
		c.executor = c.ownedExecutor
	}
	if c.coordinator == nil {
		c.coordinator = coordinator.New()
		c.ownsCoordinator = true
		go func() {
			err := c.coordinator.Start(context.Background())
			if err != nil && !errors.Is(err, coordinator.ErrStopped) {
				slog.Error("Sync coordinator failed", "error", err)
			}
		}()
	}

	return c, nil
}

// basePath is the directory of this application's mirrors.
func (c *Client) basePath() string {
	if c.api == nil || c.api.AppID() == "" {
		return c.dataDir
	}
	return filepath.Join(c.dataDir, c.api.AppID())
}

// DataDir returns the directory holding the mirrors of the application.
func (c *Client) DataDir() string {
	return c.basePath()
}

// TempDir returns the parent of the sync scratch directories.
func (c *Client) TempDir() string {
	return c.tempDir
}

// Index returns the mirrored index called name. Every call with the same name
// returns the same instance.
func (c *Client) Index(name string) *MirroredIndex {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.indices[name]; ok {
		return idx
	}
	idx := newMirroredIndex(c, name, c.newRemote(name))
	c.indices[name] = idx
	c.coordinator.Register(idx)
	return idx
}

// Indices returns the indices handed out so far.
func (c *Client) Indices() []*MirroredIndex {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*MirroredIndex, 0, len(c.indices))
	for _, idx := range c.indices {
		out = append(out, idx)
	}
	return out
}

// submit queues a task on the sync worker.
func (c *Client) submit(task coordinator.Task) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || !c.coordinator.Submit(task) {
		return ErrClientClosed
	}
	return nil
}

// Close stops the sync worker when the client owns it, delivers the pending
// notifications and closes the local indices.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	indices := make([]*MirroredIndex, 0, len(c.indices))
	for _, idx := range c.indices {
		indices = append(indices, idx)
		c.coordinator.Unregister(idx.Name())
	}
	c.mu.Unlock()

	var errs []error
	if c.ownsCoordinator {
		if err := c.coordinator.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop sync coordinator: %w", err))
		}
	}
	if c.ownedExecutor != nil {
		c.ownedExecutor.Close()
	}
	for _, idx := range indices {
		if err := idx.closeLocal(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close local index %s: %w", idx.Name(), err))
		}
	}
	return errors.Join(errs...)
}
