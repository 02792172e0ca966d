// Package dispatch marshals callbacks from protocol I/O goroutines onto the
// single UI-owning goroutine. Events queued through a Loop are applied in
// FIFO order, which preserves per-channel receipt order.
package dispatch

import (
	"context"
	"sync"

	"github.com/rtsoliday/pvdisplay/pkg/errors"
)

// Dispatcher schedules a callback to run on the UI goroutine.
type Dispatcher interface {
	// Dispatch queues a callback. It is O(1) and never blocks the caller.
	// Returns false if the callback could not be scheduled.
	Dispatch(fn func()) bool
}

// Direct is a Dispatcher that runs callbacks inline on the calling
// goroutine. It is intended for tests that want synchronous delivery.
type Direct struct{}

// Dispatch runs fn immediately.
func (Direct) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}
	fn()
	return true
}

// Loop is an unbounded FIFO of callbacks drained by a single goroutine.
// Dispatch may be called from any goroutine; Run and Pump must be called
// from the goroutine that owns UI state.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed bool
}

// NewLoop creates an empty loop.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Dispatch queues a callback for the UI goroutine. Returns false if the
// loop is closed or fn is nil.
func (l *Loop) Dispatch(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run drains the loop until the context is canceled. Pending callbacks at
// cancellation time are dropped; the loop rejects further dispatches.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.closed = true
			l.queue = nil
			l.mu.Unlock()
			return
		case <-l.wake:
			l.Pump()
		}
	}
}

// Pump synchronously runs every callback queued so far, including any
// queued by the callbacks themselves while draining. It is exposed so
// tests can apply pending events deterministically.
func (l *Loop) Pump() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
	}
}

// Pending reports the number of callbacks waiting to run.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) invoke(fn func()) {
	defer errors.Recover("dispatch.Loop")
	fn()
}
