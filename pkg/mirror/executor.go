package mirror

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Executor runs completion handlers and listener notifications.
type Executor interface {
	Execute(fn func())
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(fn func())

// Execute calls f(fn).
func (f ExecutorFunc) Execute(fn func()) {
	f(fn)
}

// SerialExecutor runs functions one at a time, in submission order, on its own
// goroutine.
type SerialExecutor struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewSerialExecutor starts a serial executor.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go e.loop()
	return e
}

// Execute queues fn. After Close, fn runs on the calling goroutine.
func (e *SerialExecutor) Execute(fn func()) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		runRecovered(fn)
		return
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Close runs the queued functions and stops the executor.
func (e *SerialExecutor) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.closed = true
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	<-e.done
}

func (e *SerialExecutor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		batch := e.queue
		e.queue = nil
		closed := e.closed
		e.mu.Unlock()

		for _, fn := range batch {
			runRecovered(fn)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-e.wake
	}
}

func runRecovered(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Completion handler panicked", "panic", r)
		}
	}()
	fn()
}

// CompletionHandler receives the outcome of an asynchronous request.
type CompletionHandler func(result *Result, err error)

// Request is a handle on an asynchronous read operation.
type Request struct {
	cancelled atomic.Bool
	done      chan struct{}
}

// Cancel suppresses the completion handler. The underlying operation still
// runs to completion.
func (r *Request) Cancel() {
	r.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called.
func (r *Request) Cancelled() bool {
	return r.cancelled.Load()
}

// Done is closed once the operation finished and its handler either ran or
// was suppressed.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// runAsync runs op on its own goroutine and delivers the outcome to handler
// through executor.
func runAsync(
	ctx context.Context,
	executor Executor,
	op func(ctx context.Context) (*Result, error),
	handler CompletionHandler,
) *Request {
	r := &Request{done: make(chan struct{})}
	go func() {
		result, err := op(ctx)
		executor.Execute(func() {
			defer close(r.done)
			if r.cancelled.Load() || handler == nil {
				return
			}
			handler(result, err)
		})
	}()
	return r
}
