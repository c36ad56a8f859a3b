// Package eventloop provides the single-threaded cooperative loop that owns
// all model state. Whichever goroutine calls ProcessEvents, Flush or Run is
// the loop goroutine; everything else reaches it through Post.
package eventloop

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// maxFlushIterations bounds Flush so a callback that keeps rescheduling
// itself cannot hang the caller.
const maxFlushIterations = 10000

// Loop is a FIFO queue of calls plus a list of idle callbacks.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	idle  []func()
	wake  chan struct{}
	ticks atomic.Uint64
}

// New returns an empty loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post queues fn to run on the loop goroutine. Safe from any goroutine.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

// OnIdle runs fn on the next idle tick, after the queue has drained.
// Callbacks registered while an idle flush is running run on the tick after.
func (l *Loop) OnIdle(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.idle = append(l.idle, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Ticks returns the number of idle flushes run so far.
func (l *Loop) Ticks() uint64 { return l.ticks.Load() }

// Pending reports whether queued or idle work exists.
func (l *Loop) Pending() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) > 0 || len(l.idle) > 0
}

// ProcessEvents runs one loop iteration: the queue until empty, then one idle
// flush. It returns true if anything ran.
func (l *Loop) ProcessEvents() bool {
	ran := false
	for {
		l.mu.Lock()
		q := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(q) == 0 {
			break
		}
		ran = true
		for _, fn := range q {
			run(fn)
		}
	}

	l.mu.Lock()
	idle := l.idle
	l.idle = nil
	l.mu.Unlock()
	if len(idle) > 0 {
		ran = true
		for _, fn := range idle {
			run(fn)
		}
	}
	l.ticks.Add(1)
	return ran
}

// Flush iterates until no work remains.
func (l *Loop) Flush() {
	for i := 0; i < maxFlushIterations; i++ {
		if !l.ProcessEvents() && !l.Pending() {
			return
		}
	}
	slog.Warn("eventloop: flush did not settle", "iterations", maxFlushIterations)
}

// Run drives the loop until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	for {
		for l.ProcessEvents() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Call posts fn and blocks until it has run on the loop or ctx is done.
// It must not be called from the loop goroutine unless something else is
// driving the loop.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch runs fn now when ctx belongs to the loop, or posts it when ctx
// belongs to a worker.
func (l *Loop) Dispatch(ctx context.Context, fn func()) {
	if InWorker(ctx) {
		l.Post(fn)
		return
	}
	fn()
}

func run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("eventloop: callback panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}
