package eventloop

import (
	"context"
	"sync/atomic"
)

type workerKey struct{}

var nextWorker atomic.Uint64

// NewWorkerID returns a process-unique worker id.
func NewWorkerID() uint64 { return nextWorker.Add(1) }

// WithWorker marks ctx as belonging to the background worker id. Library
// calls made with such a context re-dispatch their events onto the loop.
func WithWorker(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// WorkerID returns the worker id carried by ctx.
func WorkerID(ctx context.Context) (uint64, bool) {
	if ctx == nil {
		return 0, false
	}
	id, ok := ctx.Value(workerKey{}).(uint64)
	return id, ok
}

// InWorker reports whether ctx belongs to a background worker.
func InWorker(ctx context.Context) bool {
	_, ok := WorkerID(ctx)
	return ok
}
