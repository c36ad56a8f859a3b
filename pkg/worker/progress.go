package worker

import (
	"math"

	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/patch"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/progress"
	"github.com/LCA-ActivityBrowser/activity-browser-sub003/pkg/signals"
)

// Tick is one progress bar update made on a worker's goroutine.
type Tick struct {
	Worker   uint64
	Label    string
	Fraction float64 // -1 when the bar has no total
}

// Ticks receives every bar update made under a worker context once
// InstallProgress has run. Slots run on the updating goroutine.
var Ticks = signals.New[Tick]("progress.ticks")

// InstallProgress patches progress.BarClass so bar updates are observable on
// Ticks.
func InstallProgress(r *patch.Registry) {
	r.PatchAttribute(progress.BarClass, "update", progress.UpdateFunc(func(b *progress.Bar, n int) {
		if orig, ok := patch.OriginalOf[progress.UpdateFunc](r, progress.BarClass, "update"); ok {
			orig(b, n)
		}
		id, ok := b.Worker()
		if !ok {
			return
		}
		Ticks.Emit(Tick{Worker: id, Label: b.Label(), Fraction: b.Fraction()})
	}))
}

// statusOf maps a tick to a status. A full bar means the step is done but
// the worker is not, so it reads as indeterminate.
func statusOf(t Tick) Status {
	if t.Fraction < 0 {
		return Status{Percent: -1, Label: t.Label}
	}
	pct := int(math.Floor(t.Fraction * 100))
	if pct >= 100 {
		return Status{Percent: -1, Label: "Working..."}
	}
	return Status{Percent: pct, Label: t.Label}
}
