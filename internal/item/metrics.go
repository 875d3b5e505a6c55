package item

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricItemCacheHits   = "item_cache_hits_total"
	MetricItemCacheMisses = "item_cache_misses_total"
)

// Metrics contains Prometheus metrics for listing lookups.
// All operations are thread-safe.
type Metrics struct {
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricItemCacheHits,
				Help: "Total number of listing cache hits",
			},
		),
		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricItemCacheMisses,
				Help: "Total number of listing cache misses",
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.cacheHits, m.cacheMisses} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordCacheHit increments the cache hit counter.
func (m *Metrics) RecordCacheHit() {
	m.cacheHits.Inc()
}

// RecordCacheMiss increments the cache miss counter.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMisses.Inc()
}
