// Package metrics provides performance instrumentation for the model core:
// bus forwarding latency, loader phases, solver runs and traversal cache
// hit rates.
//
// Metrics are collected in-memory with atomic operations for thread-safety
// and exported to Prometheus through Collector. Collection is enabled by
// default but can be disabled via AB_METRICS=0.
//
// Usage:
//
//	func loadPrimary() {
//	    defer metrics.Timer(metrics.MDSPrimaryLoad)()
//	    // ... operation code
//	}
package metrics

import (
	"os"
	"sync/atomic"
	"time"
)

// enabled controls whether metrics are collected.
// Defaults to true unless AB_METRICS=0 is set.
var enabled = os.Getenv("AB_METRICS") != "0"

// Enabled returns whether metrics collection is enabled.
func Enabled() bool {
	return enabled
}

// SetEnabled allows programmatic control of metrics collection.
func SetEnabled(e bool) {
	enabled = e
}

// TimingMetric tracks latency statistics for a named operation.
// All methods are safe for concurrent use.
type TimingMetric struct {
	name  string
	count atomic.Int64
	total atomic.Int64
	max   atomic.Int64
	min   atomic.Int64 // 0 means not set
}

func newTimingMetric(name string) *TimingMetric {
	return &TimingMetric{name: name}
}

// Record adds one measurement.
func (m *TimingMetric) Record(d time.Duration) {
	if !enabled {
		return
	}
	ns := d.Nanoseconds()
	m.count.Add(1)
	m.total.Add(ns)
	for {
		old := m.max.Load()
		if ns <= old || m.max.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.min.Load()
		if (old != 0 && ns >= old) || m.min.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Name returns the metric name.
func (m *TimingMetric) Name() string { return m.name }

// Count returns the number of recorded measurements.
func (m *TimingMetric) Count() int64 { return m.count.Load() }

// TotalNs returns the total time in nanoseconds.
func (m *TimingMetric) TotalNs() int64 { return m.total.Load() }

// MaxNs returns the slowest measurement in nanoseconds.
func (m *TimingMetric) MaxNs() int64 { return m.max.Load() }

// MinNs returns the fastest measurement, or 0 before the first one.
func (m *TimingMetric) MinNs() int64 { return m.min.Load() }

// AvgNs returns the mean, or 0 before the first measurement.
func (m *TimingMetric) AvgNs() int64 {
	n := m.count.Load()
	if n == 0 {
		return 0
	}
	return m.total.Load() / n
}

// Stats returns all timing statistics at once.
func (m *TimingMetric) Stats() TimingStats {
	return TimingStats{
		Name:    m.name,
		Count:   m.Count(),
		TotalMs: float64(m.TotalNs()) / 1e6,
		AvgMs:   float64(m.AvgNs()) / 1e6,
		MaxMs:   float64(m.MaxNs()) / 1e6,
		MinMs:   float64(m.MinNs()) / 1e6,
	}
}

// Reset clears all recorded measurements.
func (m *TimingMetric) Reset() {
	m.count.Store(0)
	m.total.Store(0)
	m.max.Store(0)
	m.min.Store(0)
}

// TimingStats holds a snapshot of timing statistics.
type TimingStats struct {
	Name    string  `json:"name"`
	Count   int64   `json:"count"`
	TotalMs float64 `json:"total_ms"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	MinMs   float64 `json:"min_ms,omitempty"`
}

// Timer returns a function that records elapsed time when called.
// Use with defer for automatic timing:
//
//	func myFunc() {
//	    defer metrics.Timer(metrics.SomeMetric)()
//	    // ... function body
//	}
func Timer(m *TimingMetric) func() {
	if !enabled || m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.Record(time.Since(start))
	}
}

// Global timing metrics for the core's hot paths.
var (
	BusForward       = newTimingMetric("bus_forward")
	HandleFlush      = newTimingMetric("handle_flush")
	MDSPrimaryLoad   = newTimingMetric("mds_primary_load")
	MDSSecondaryLoad = newTimingMetric("mds_secondary_load")
	MDSMerge         = newTimingMetric("mds_merge")
	MDSUpdate        = newTimingMetric("mds_update")
	ParameterRecalc  = newTimingMetric("parameter_recalc")
	LCAFactorize     = newTimingMetric("lca_factorize")
	LCASolve         = newTimingMetric("lca_solve")
	Traversal        = newTimingMetric("graph_traversal")
	NavigatorRender  = newTimingMetric("navigator_render")
	WorkerRun        = newTimingMetric("worker_run")
)

// AllTimingMetrics returns all registered timing metrics.
func AllTimingMetrics() []*TimingMetric {
	return []*TimingMetric{
		BusForward,
		HandleFlush,
		MDSPrimaryLoad,
		MDSSecondaryLoad,
		MDSMerge,
		MDSUpdate,
		ParameterRecalc,
		LCAFactorize,
		LCASolve,
		Traversal,
		NavigatorRender,
		WorkerRun,
	}
}

// ResetAll resets all timing metrics.
func ResetAll() {
	for _, m := range AllTimingMetrics() {
		m.Reset()
	}
	for _, m := range AllCacheMetrics() {
		m.Reset()
	}
}

// AllTimingStats returns stats for all timing metrics.
func AllTimingStats() []TimingStats {
	metrics := AllTimingMetrics()
	stats := make([]TimingStats, 0, len(metrics))
	for _, m := range metrics {
		if m.Count() > 0 { // Only include metrics with data
			stats = append(stats, m.Stats())
		}
	}
	return stats
}
