package optimize

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics tracks maintenance pass activity.
type Metrics struct {
	RunsTotal     prometheus.Counter
	FailuresTotal prometheus.Counter
	DecayedTotal  prometheus.Counter
	PrunedTotal   prometheus.Counter
	RunDuration   prometheus.Histogram
}

// NewMetrics creates and registers the optimizer metrics.
//
// Registration happens once per process; later calls return the same
// instance, preventing duplicate collector registration panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			RunsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_optimize_runs_total",
				Help: "Completed maintenance passes",
			}),
			FailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_optimize_failures_total",
				Help: "Maintenance passes that failed and mutated nothing",
			}),
			DecayedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_optimize_decayed_total",
				Help: "Patterns whose confidence was decayed",
			}),
			PrunedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_optimize_pruned_total",
				Help: "Patterns deleted by pruning",
			}),
			RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "toolguard_optimize_duration_seconds",
				Help:    "Maintenance pass latency",
				Buckets: prometheus.ExponentialBuckets(0.0001, 10, 6),
			}),
		}
	})
	return globalMetrics
}

// RecordRun records one completed non-dry pass.
func (m *Metrics) RecordRun(decayed, pruned int, elapsed time.Duration) {
	m.RunsTotal.Inc()
	m.DecayedTotal.Add(float64(decayed))
	m.PrunedTotal.Add(float64(pruned))
	m.RunDuration.Observe(elapsed.Seconds())
}

// RecordFailure records a pass that failed before committing.
func (m *Metrics) RecordFailure() {
	m.FailuresTotal.Inc()
}
