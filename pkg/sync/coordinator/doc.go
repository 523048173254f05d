// Package coordinator runs the background work of mirrored indices.
//
// A Coordinator owns exactly one worker goroutine draining a FIFO queue of
// tasks. Every mirrored index of a client submits its sync and build jobs to
// the same coordinator, so at most one rebuild runs at a time in the process
// and jobs run in submission order.
//
// # Lifecycle
//
//	coord := coordinator.New(coordinator.WithAutoSync(time.Hour))
//	go func() { _ = coord.Start(ctx) }()
//	...
//	_ = coord.Stop()
//
// Tasks may be submitted before Start; they wait in the queue. A running task
// is never cancelled: Stop waits for it to return. Tasks still queued when
// the coordinator stops are run with a cancelled context so they can report
// their failure, and Submit returns false from then on.
//
// # Auto-sync
//
// WithAutoSync adds a ticker that calls SyncIfNeeded on every registered
// Syncable. The interval is jittered by up to a quarter in each direction so
// processes started together do not hit the API at the same instant.
package coordinator
