package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "abcore"

// Collector exports the in-memory metrics to Prometheus. Values are read at
// scrape time, so registering it costs nothing on the hot paths.
type Collector struct {
	timingCount *prometheus.Desc
	timingSum   *prometheus.Desc
	timingMax   *prometheus.Desc
	cacheHits   *prometheus.Desc
	cacheMisses *prometheus.Desc
	cacheEvicts *prometheus.Desc
}

// NewCollector returns a collector over the global metrics.
func NewCollector() *Collector {
	return &Collector{
		timingCount: prometheus.NewDesc(prometheus.BuildFQName(namespace, "op", "count"),
			"Number of recorded operations.", []string{"op"}, nil),
		timingSum: prometheus.NewDesc(prometheus.BuildFQName(namespace, "op", "seconds_total"),
			"Total time spent in the operation.", []string{"op"}, nil),
		timingMax: prometheus.NewDesc(prometheus.BuildFQName(namespace, "op", "max_seconds"),
			"Slowest recorded operation.", []string{"op"}, nil),
		cacheHits: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "hits_total"),
			"Cache hits.", []string{"cache"}, nil),
		cacheMisses: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "misses_total"),
			"Cache misses.", []string{"cache"}, nil),
		cacheEvicts: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache", "evictions_total"),
			"Cache evictions.", []string{"cache"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.timingCount
	ch <- c.timingSum
	ch <- c.timingMax
	ch <- c.cacheHits
	ch <- c.cacheMisses
	ch <- c.cacheEvicts
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range AllTimingMetrics() {
		ch <- prometheus.MustNewConstMetric(c.timingCount, prometheus.CounterValue, float64(m.Count()), m.Name())
		ch <- prometheus.MustNewConstMetric(c.timingSum, prometheus.CounterValue, float64(m.TotalNs())/1e9, m.Name())
		ch <- prometheus.MustNewConstMetric(c.timingMax, prometheus.GaugeValue, float64(m.MaxNs())/1e9, m.Name())
	}
	for _, m := range AllCacheMetrics() {
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(m.Hits()), m.Name())
		ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(m.Misses()), m.Name())
		ch <- prometheus.MustNewConstMetric(c.cacheEvicts, prometheus.CounterValue, float64(m.Evictions()), m.Name())
	}
}

// Register adds the collector to reg.
func Register(reg prometheus.Registerer) error {
	return reg.Register(NewCollector())
}
