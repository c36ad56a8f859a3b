// Package progress is the library-side progress bar used by long inventory
// operations. Its update step is a patchable attribute so the worker layer can
// observe ticks without the library knowing about it.
package progress

import (
	"context"
	"sync"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/eventloop"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
)

// UpdateFunc advances b by n steps.
type UpdateFunc func(b *Bar, n int)

// BarClass holds the "update" attribute every Bar calls through.
var BarClass = patch.NewClass("progress.Bar", nil).Define("update", UpdateFunc(advance))

// Bar counts completed steps out of Total. A Total of zero means unknown.
type Bar struct {
	ctx   context.Context
	label string
	total int

	mu sync.Mutex
	n  int
}

// New starts a bar. ctx identifies the worker the bar reports to.
func New(ctx context.Context, label string, total int) *Bar {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Bar{ctx: ctx, label: label, total: total}
}

// Add advances the bar by n.
func (b *Bar) Add(n int) {
	update, ok := patch.Lookup[UpdateFunc](BarClass, "update")
	if !ok {
		advance(b, n)
		return
	}
	update(b, n)
}

// Finish moves the bar to its total.
func (b *Bar) Finish() {
	b.mu.Lock()
	rest := b.total - b.n
	b.mu.Unlock()
	if rest > 0 {
		b.Add(rest)
	}
}

// Label returns the bar description.
func (b *Bar) Label() string { return b.label }

// Total returns the step count.
func (b *Bar) Total() int { return b.total }

// N returns the completed step count.
func (b *Bar) N() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.n
}

// Fraction returns completion in [0,1], or -1 when the total is unknown.
func (b *Bar) Fraction() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.total <= 0 {
		return -1
	}
	f := float64(b.n) / float64(b.total)
	if f > 1 {
		f = 1
	}
	return f
}

// Worker returns the worker id of the bar's context.
func (b *Bar) Worker() (uint64, bool) {
	return eventloop.WorkerID(b.ctx)
}

func advance(b *Bar, n int) {
	b.mu.Lock()
	b.n += n
	b.mu.Unlock()
}
