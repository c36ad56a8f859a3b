package inventory

import (
	"context"
	"sync"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/model"
)

// Hook is a primitive callback list fired by the store after a write. Hooks
// run synchronously on the writing goroutine.
type Hook[T any] struct {
	mu   sync.Mutex
	next int
	fns  []hookFn[T]
}

type hookFn[T any] struct {
	id int
	fn func(T)
}

// Add registers fn and returns a function that removes it.
func (h *Hook[T]) Add(fn func(T)) (remove func()) {
	h.mu.Lock()
	h.next++
	id := h.next
	h.fns = append(h.fns, hookFn[T]{id: id, fn: fn})
	h.mu.Unlock()
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, f := range h.fns {
			if f.id == id {
				h.fns = append(h.fns[:i:i], h.fns[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered callbacks.
func (h *Hook[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fns)
}

func (h *Hook[T]) fire(v T) {
	h.mu.Lock()
	fns := append([]hookFn[T](nil), h.fns...)
	h.mu.Unlock()
	for _, f := range fns {
		f.fn(v)
	}
}

// SaveEvent is fired after a dataset (node, edge or parameter) is saved.
// New and Old hold *model.Node, *model.Edge or *model.Parameter; Old is nil
// for a new dataset.
type SaveEvent struct {
	Ctx context.Context
	New any
	Old any
}

// DeleteEvent is fired after a dataset is deleted.
type DeleteEvent struct {
	Ctx context.Context
	Old any
}

// MoveEvent is fired after a node changes code or database.
type MoveEvent struct {
	Ctx context.Context
	Old *model.Node
	New *model.Node
}

// DatabaseEvent names the database a bulk operation touched.
type DatabaseEvent struct {
	Ctx  context.Context
	Name string
}

// RecalculateEvent is fired once after parameters were recalculated.
type RecalculateEvent struct {
	Ctx          context.Context
	Parameters   int
	EdgesChanged int
}

// CreatedEvent names a newly created project.
type CreatedEvent struct {
	Ctx  context.Context
	Name string
}

// ProjectEvent is fired on project activation. Old is nil on the first
// activation.
type ProjectEvent struct {
	Ctx context.Context
	New *Project
	Old *Project
}

// Hooks is the set of primitive hooks a Manager exposes.
type Hooks struct {
	DatasetSaved           Hook[SaveEvent]
	DatasetDeleted         Hook[DeleteEvent]
	CodeChanged            Hook[MoveEvent]
	DatabaseChanged        Hook[MoveEvent]
	DatabaseWritten        Hook[DatabaseEvent]
	DatabaseReset          Hook[DatabaseEvent]
	DatabaseDeleted        Hook[DatabaseEvent]
	ParametersRecalculated Hook[RecalculateEvent]
	ProjectChanged         Hook[ProjectEvent]
	ProjectCreated         Hook[CreatedEvent]
}
