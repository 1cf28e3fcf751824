package track

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics tracks outcome analysis activity.
type Metrics struct {
	OutcomesTotal       prometheus.Counter
	FalsePositivesTotal prometheus.Counter
	PreventionsTotal    prometheus.Counter
}

// NewMetrics creates and registers the tracker metrics.
//
// Registration happens once per process; later calls return the same
// instance, preventing duplicate collector registration panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			OutcomesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_track_outcomes_total",
				Help: "Successful warned calls analyzed for warning quality",
			}),
			FalsePositivesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_track_false_positives_total",
				Help: "Warnings graded as false positives",
			}),
			PreventionsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_track_preventions_total",
				Help: "Warnings graded as prevented mistakes",
			}),
		}
	})
	return globalMetrics
}

// RecordOutcome records one graded call outcome.
func (m *Metrics) RecordOutcome() {
	m.OutcomesTotal.Inc()
}

// RecordFalsePositive records a warning that proved wrong.
func (m *Metrics) RecordFalsePositive() {
	m.FalsePositivesTotal.Inc()
}

// RecordPrevention records a warning that changed caller behavior.
func (m *Metrics) RecordPrevention() {
	m.PreventionsTotal.Inc()
}
