package coordinator

import (
	"context"
	"log/slog"
	"slices"
	"strings"
)

// runNext pops and runs the oldest queued task. Returns false when the queue
// is empty. The task context is detached from coordinator cancellation: a
// running task always completes.
func (c *defaultCoordinator) runNext(ctx context.Context) bool {
	c.mu.Lock()
	if len(c.queue) == 0 {
		c.mu.Unlock()
		return false
	}
	task := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	c.mu.Unlock()

	c.run(context.WithoutCancel(ctx), task)
	return true
}

// drain marks the coordinator stopped and runs the tasks still queued with
// the cancelled coordinator context.
func (c *defaultCoordinator) drain(ctx context.Context) {
	c.mu.Lock()
	c.stopped = true
	pending := c.queue
	c.queue = nil
	c.mu.Unlock()

	if len(pending) > 0 {
		slog.Info("Failing queued tasks on shutdown", "count", len(pending))
	}
	for _, task := range pending {
		c.run(ctx, task)
	}
}

func (*defaultCoordinator) run(ctx context.Context, task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "Background task panicked", "panic", r)
		}
	}()
	task(ctx)
}

// checkSyncables asks every registered index to sync if its data is stale
func (c *defaultCoordinator) checkSyncables(ctx context.Context) {
	c.mu.Lock()
	syncables := make([]Syncable, 0, len(c.syncables))
	for _, s := range c.syncables {
		syncables = append(syncables, s)
	}
	c.mu.Unlock()

	slices.SortFunc(syncables, func(a, b Syncable) int {
		return strings.Compare(a.Name(), b.Name())
	})
	for _, s := range syncables {
		if err := s.SyncIfNeeded(ctx); err != nil {
			slog.DebugContext(ctx, "Index sync check skipped",
				"index", s.Name(),
				"error", err)
		}
	}
}
