package sponsorship

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricCandidatesScored  = "sponsorship_candidates_scored_total"
	MetricCandidatesSkipped = "sponsorship_candidates_skipped_total"
	MetricFeaturedFallback  = "sponsorship_featured_fallback_total"
	MetricSelectionDuration = "sponsorship_selection_duration_seconds"
)

// Skip reasons for the candidates-skipped counter.
const (
	SkipReasonUsed        = "used"
	SkipReasonMissing     = "missing"
	SkipReasonCurrentItem = "current_item"
	SkipReasonFetchError  = "fetch_error"
)

// Metrics contains Prometheus metrics for the ranking engine.
// All operations are thread-safe.
type Metrics struct {
	candidatesScored  prometheus.Counter
	candidatesSkipped *prometheus.CounterVec
	featuredFallback  prometheus.Counter
	selectionDuration prometheus.Histogram
}

// NewMetrics creates a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		candidatesScored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricCandidatesScored,
				Help: "Total number of sponsored candidates scored",
			},
		),
		candidatesSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricCandidatesSkipped,
				Help: "Total number of sponsored candidates skipped, by reason",
			},
			[]string{"reason"},
		),
		featuredFallback: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: MetricFeaturedFallback,
				Help: "Total number of featured-flag fallback activations",
			},
		),
		selectionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    MetricSelectionDuration,
				Help:    "Duration of sponsored item selection passes in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.candidatesScored,
		m.candidatesSkipped,
		m.featuredFallback,
		m.selectionDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// RecordScored increments the scored-candidates counter.
func (m *Metrics) RecordScored() {
	m.candidatesScored.Inc()
}

// RecordSkipped increments the skipped-candidates counter for a reason.
func (m *Metrics) RecordSkipped(reason string) {
	m.candidatesSkipped.WithLabelValues(reason).Inc()
}

// RecordFallback increments the featured-fallback counter.
func (m *Metrics) RecordFallback() {
	m.featuredFallback.Inc()
}

// ObserveSelectionDuration records the duration of one selection pass.
func (m *Metrics) ObserveSelectionDuration(seconds float64) {
	m.selectionDuration.Observe(seconds)
}
