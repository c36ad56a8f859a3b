// Package worker runs long operations off the loop goroutine. A worker
// reports its progress as Status values and its failure as a WorkerError,
// both delivered on the loop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/inventory"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/logging"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/metrics"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// ErrStarted is returned by Start on a worker that already ran.
var ErrStarted = errors.New("worker already started")

// Status is a progress report. Percent is -1 while the amount of work left
// is unknown.
type Status struct {
	Percent int
	Label   string
}

// Complete is the last status every worker reports.
var Complete = Status{Percent: 100, Label: "Complete"}

// WorkerError wraps a failed run with the worker it came from.
type WorkerError struct {
	Phase string    // worker name
	Cause error     // the underlying error
	Stack string    // set when the run panicked
	Time  time.Time // when the run failed
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Cause)
}

func (e *WorkerError) Unwrap() error {
	return e.Cause
}

// RunFunc is the body of a worker. ctx carries the worker id and a
// connection scope.
type RunFunc func(ctx context.Context, args ...any) error

// Worker runs a RunFunc once on its own goroutine.
type Worker struct {
	name   string
	run    RunFunc
	id     uint64
	loop   *eventloop.Loop
	logger *slog.Logger
	fanout *logging.Fanout

	// Status receives progress, always on the loop goroutine.
	Status *signals.Signal[Status]
	// Exception receives the error of a failed run, on the loop goroutine.
	Exception *signals.Signal[*WorkerError]

	mu      sync.Mutex
	started bool
	args    []any
	err     error
	done    chan struct{}
}

// Option configures a Worker.
type Option func(*Worker)

// WithLoop sets the loop that receives Status and Exception emissions.
func WithLoop(l *eventloop.Loop) Option {
	return func(w *Worker) { w.loop = l }
}

// WithLogger sets the logger used for failures.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) { w.logger = l }
}

// WithFanout sets the handler that INFO records of the run are taken from.
// It defaults to logging.Default().
func WithFanout(f *logging.Fanout) Option {
	return func(w *Worker) { w.fanout = f }
}

// New returns a worker that will call run when started.
func New(name string, run RunFunc, opts ...Option) *Worker {
	w := &Worker{
		name:      name,
		run:       run,
		id:        eventloop.NewWorkerID(),
		logger:    slog.Default(),
		fanout:    logging.Default(),
		Status:    signals.New[Status](name + ".status"),
		Exception: signals.New[*WorkerError](name + ".exception"),
		done:      make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Name returns the worker name.
func (w *Worker) Name() string { return w.name }

// ID returns the worker id carried by the run's context.
func (w *Worker) ID() uint64 { return w.id }

// Args returns the arguments given to Start.
func (w *Worker) Args() []any {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.args
}

// Start runs the worker on a new goroutine.
func (w *Worker) Start(ctx context.Context, args ...any) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrStarted
	}
	w.started = true
	w.args = args
	w.mu.Unlock()

	ctx = eventloop.WithWorker(ctx, w.id)
	ctx, scope := inventory.WithConnScope(ctx)
	go w.main(ctx, scope, args)
	return nil
}

// Done is closed when the run has finished and its connections are released.
func (w *Worker) Done() <-chan struct{} { return w.done }

// Wait blocks until the run is over and returns its error.
func (w *Worker) Wait() error {
	<-w.done
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) main(ctx context.Context, scope *inventory.ConnScope, args []any) {
	defer close(w.done)
	defer metrics.Timer(metrics.WorkerRun)()

	conn := Ticks.Connect(func(t Tick) {
		if t.Worker == w.id {
			w.emit(statusOf(t))
		}
	})
	detach := func() {}
	if w.fanout != nil {
		detach = w.fanout.Attach(&logging.WorkerSink{
			Worker: w.id,
			Level:  slog.LevelInfo,
			Fn:     func(r slog.Record) { w.emit(Status{Percent: -1, Label: r.Message}) },
		})
	}

	var err error
	if werr := w.safeRun(ctx, args); werr != nil {
		err = werr
		attrs := []any{"worker", w.name, "err", werr.Cause}
		if werr.Stack != "" {
			attrs = append(attrs, "stack", werr.Stack)
		}
		w.logger.Error("worker failed", attrs...)
		w.post(func() { w.Exception.Emit(werr) })
	}

	if cerr := scope.Close(); cerr != nil {
		w.logger.Warn("worker: releasing connections", "worker", w.name, "err", cerr)
	}
	conn.Disconnect()
	detach()

	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	w.emit(Complete)
}

// safeRun calls the body and recovers from any panic.
func (w *Worker) safeRun(ctx context.Context, args []any) (result *WorkerError) {
	defer func() {
		if r := recover(); r != nil {
			result = &WorkerError{
				Phase: w.name,
				Cause: fmt.Errorf("panic: %v", r),
				Stack: string(debug.Stack()),
				Time:  time.Now(),
			}
		}
	}()
	if err := w.run(ctx, args...); err != nil {
		return &WorkerError{Phase: w.name, Cause: err, Time: time.Now()}
	}
	return nil
}

func (w *Worker) emit(s Status) {
	w.post(func() { w.Status.Emit(s) })
}

func (w *Worker) post(fn func()) {
	if w.loop == nil {
		fn()
		return
	}
	w.loop.Post(fn)
}
