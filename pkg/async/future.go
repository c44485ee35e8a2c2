// Package async provides the thread-safe coordination primitives that
// bridge BLE radio callbacks (running on an arbitrary goroutine) to
// user-facing request/response operations: a one-shot latch ("fuse"),
// a keyed multi-listener event, and an ordered future stream.
//
// The original MT protocol client (a single-threaded Python asyncio
// program bridging to an OS dispatch queue) needed an explicit
// call-soon scheduler to marshal every completion onto its one loop
// thread. Go has no such restriction: every primitive here guards its
// state with a plain sync.Mutex and is safe to call from any
// goroutine, so no scheduler/event-loop indirection is carried over —
// see DESIGN.md for the rationale.
package async

import (
	"context"
	"sync"
)

// Future is a complete-once result holder: the "runtime allocation of
// completions" the original implements with ad-hoc future objects,
// here a concrete reference type with a Pending|Done state flag held
// under its own mutex.
type Future struct {
	mu    sync.Mutex
	done  bool
	value interface{}
	err   error
	ch    chan struct{}
}

// NewFuture returns a pending Future.
func NewFuture() *Future {
	return &Future{ch: make(chan struct{})}
}

// Complete transitions the future from Pending to Done exactly once,
// storing value/err and waking every Wait call. Subsequent calls are
// no-ops and report false. Exported so callers outside this package
// (the write pipeline, which completes the futures queued with its
// writes) can resolve a Future directly, not just through
// Fuse/FutureStream/KeyedEvent.
func (f *Future) Complete(value interface{}, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done {
		return false
	}
	f.done = true
	f.value, f.err = value, err
	close(f.ch)
	return true
}

// Done reports whether the future has already been completed.
func (f *Future) Done() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

// Wait blocks until the future completes or ctx is done.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.ch:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
