package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

var (
	// ErrAlreadyStarted is returned by Start when the coordinator runs already
	ErrAlreadyStarted = errors.New("coordinator already started")

	// ErrStopped is returned by Start after Stop
	ErrStopped = errors.New("coordinator stopped")
)

// Task is one unit of background work
type Task func(ctx context.Context)

// Syncable is a mirrored index checked on every auto-sync tick
type Syncable interface {
	// Name identifies the index in logs
	Name() string

	// SyncIfNeeded submits a sync when the local data is stale
	SyncIfNeeded(ctx context.Context) error
}

// Coordinator serializes background work on a single worker
type Coordinator interface {
	// Start runs the worker loop
	// Blocks until the context is cancelled or Stop is called
	Start(ctx context.Context) error

	// Stop gracefully stops the coordinator, waiting for the running task
	Stop() error

	// Submit appends a task to the queue. Returns false once stopped
	Submit(task Task) bool

	// Register adds an index to the auto-sync checks
	Register(s Syncable)

	// Unregister removes an index from the auto-sync checks
	Unregister(name string)

	// Pending returns the number of queued tasks
	Pending() int
}

// defaultCoordinator is the default implementation of Coordinator
type defaultCoordinator struct {
	autoSyncInterval time.Duration

	mu        sync.Mutex
	queue     []Task
	syncables map[string]Syncable
	started   bool
	stopped   bool
	wake      chan struct{}

	// Lifecycle management
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// Option is a function that configures the coordinator
type Option func(*defaultCoordinator)

// WithAutoSync checks every registered Syncable about every interval
func WithAutoSync(interval time.Duration) Option {
	return func(c *defaultCoordinator) {
		c.autoSyncInterval = interval
	}
}

// New creates a new coordinator
func New(opts ...Option) Coordinator {
	c := &defaultCoordinator{
		syncables: make(map[string]Syncable),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// calculatePollingInterval returns base with a random jitter of up to a
// quarter of base in either direction.
func calculatePollingInterval(base time.Duration) time.Duration {
	jitter := base / 4
	if jitter <= 0 {
		return base
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for polling jitter
	jitterOffset := time.Duration(rand.Int64N(int64(2*jitter))) - jitter
	return base + jitterOffset
}

// Start runs the worker loop
func (c *defaultCoordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	coordCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.mu.Unlock()

	slog.Info("Starting background sync coordinator", "auto_sync_interval", c.autoSyncInterval)
	defer func() {
		c.drain(coordCtx)
		close(c.done)
		slog.Info("Background sync coordinator shutting down")
	}()

	// tick stays nil, and never fires, when auto-sync is off
	var tick <-chan time.Time
	var timer *time.Timer
	if c.autoSyncInterval > 0 {
		timer = time.NewTimer(calculatePollingInterval(c.autoSyncInterval))
		defer timer.Stop()
		tick = timer.C

		// Perform initial sync check
		c.checkSyncables(coordCtx)
	}

	for {
		if c.runNext(coordCtx) {
			continue
		}
		select {
		case <-c.wake:
		case <-tick:
			c.checkSyncables(coordCtx)
			timer.Reset(calculatePollingInterval(c.autoSyncInterval))
		case <-coordCtx.Done():
			slog.Info("Sync coordinator stopping")
			return nil
		}
	}
}

// Stop gracefully stops the coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	started := c.started
	cancel := c.cancelFunc
	if !started {
		c.stopped = true
	}
	c.mu.Unlock()

	if !started {
		// Queued tasks still run once, with a cancelled context
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c.drain(ctx)
		return nil
	}

	slog.Info("Stopping sync coordinator")
	cancel()
	<-c.done
	return nil
}

// Submit appends a task to the queue
func (c *defaultCoordinator) Submit(task Task) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}
	c.queue = append(c.queue, task)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return true
}

// Register adds an index to the auto-sync checks
func (c *defaultCoordinator) Register(s Syncable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncables[s.Name()] = s
}

// Unregister removes an index from the auto-sync checks
func (c *defaultCoordinator) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.syncables, name)
}

// Pending returns the number of queued tasks
func (c *defaultCoordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}
