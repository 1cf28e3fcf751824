package learn

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the learner.
type Metrics struct {
	LearnedTotal             *prometheus.CounterVec
	MergesTotal              *prometheus.CounterVec
	PreventionSuccessesTotal prometheus.Counter
	PreventionFailuresTotal  prometheus.Counter
}

// NewMetrics creates and registers the learner metrics once per process.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			LearnedTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolguard_learn_patterns_total",
					Help: "Total number of new patterns learned",
				},
				[]string{"category"},
			),
			MergesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "toolguard_learn_merges_total",
					Help: "Total number of candidates merged into existing patterns",
				},
				[]string{"category"},
			),
			PreventionSuccessesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toolguard_prevention_successes_total",
					Help: "Total number of recorded prevention successes",
				},
			),
			PreventionFailuresTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toolguard_prevention_failures_total",
					Help: "Total number of recorded prevention failures",
				},
			),
		}
	})
	return globalMetrics
}

// RecordLearned counts a newly learned pattern.
func (m *Metrics) RecordLearned(category pattern.ErrorCategory) {
	m.LearnedTotal.WithLabelValues(string(category)).Inc()
}

// RecordMerge counts a candidate folded into an existing pattern.
func (m *Metrics) RecordMerge(category pattern.ErrorCategory) {
	m.MergesTotal.WithLabelValues(string(category)).Inc()
}

// RecordPreventionSuccess counts a heeded warning.
func (m *Metrics) RecordPreventionSuccess() {
	m.PreventionSuccessesTotal.Inc()
}

// RecordPreventionFailure counts a false positive.
func (m *Metrics) RecordPreventionFailure() {
	m.PreventionFailuresTotal.Inc()
}
