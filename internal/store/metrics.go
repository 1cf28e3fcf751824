package store

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the pattern store.
type Metrics struct {
	PatternCount    prometheus.Gauge
	SavesTotal      prometheus.Counter
	SaveErrorsTotal prometheus.Counter
	ReloadsTotal    prometheus.Counter
}

// NewMetrics creates and registers the store metrics.
//
// Registration happens once per process; later calls return the same
// instance, preventing duplicate collector registration panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			PatternCount: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "toolguard_store_patterns",
					Help: "Current number of stored patterns",
				},
			),
			SavesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toolguard_store_saves_total",
					Help: "Total number of successful document saves",
				},
			),
			SaveErrorsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toolguard_store_save_errors_total",
					Help: "Total number of failed document saves",
				},
			),
			ReloadsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "toolguard_store_reloads_total",
					Help: "Total number of document loads from the backend",
				},
			),
		}
	})
	return globalMetrics
}

// SetPatternCount updates the stored pattern gauge.
func (m *Metrics) SetPatternCount(n int) {
	m.PatternCount.Set(float64(n))
}

// RecordSave records a successful document save.
func (m *Metrics) RecordSave() {
	m.SavesTotal.Inc()
}

// RecordSaveError records a failed document save.
func (m *Metrics) RecordSaveError() {
	m.SaveErrorsTotal.Inc()
}

// RecordReload records a document load.
func (m *Metrics) RecordReload() {
	m.ReloadsTotal.Inc()
}
