package check

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

// Metrics tracks pre-call check activity.
type Metrics struct {
	ChecksTotal   prometheus.Counter
	WarningsTotal prometheus.Counter
	BlocksTotal   prometheus.Counter
	CheckDuration prometheus.Histogram
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	CacheSize     prometheus.Gauge
}

// NewMetrics creates and registers the check metrics.
//
// Registration happens once per process; later calls return the same
// instance, preventing duplicate collector registration panics.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ChecksTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_checks_total",
				Help: "Total pre-call checks performed",
			}),
			WarningsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_check_warnings_total",
				Help: "Total warnings issued by pre-call checks",
			}),
			BlocksTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_check_blocks_total",
				Help: "Total calls flagged for blocking",
			}),
			CheckDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "toolguard_check_duration_seconds",
				Help:    "Pre-call check latency",
				Buckets: prometheus.ExponentialBuckets(0.00001, 10, 6),
			}),
			CacheHits: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_check_cache_hits_total",
				Help: "Pattern lookup cache hits",
			}),
			CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
				Name: "toolguard_check_cache_misses_total",
				Help: "Pattern lookup cache misses",
			}),
			CacheSize: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "toolguard_check_cache_entries",
				Help: "Current pattern lookup cache entries",
			}),
		}
	})
	return globalMetrics
}

// RecordCheck records one completed check.
func (m *Metrics) RecordCheck(warnings int, blocked bool, elapsed time.Duration) {
	m.ChecksTotal.Inc()
	m.WarningsTotal.Add(float64(warnings))
	if blocked {
		m.BlocksTotal.Inc()
	}
	m.CheckDuration.Observe(elapsed.Seconds())
}

// RecordCacheHit records a pattern lookup served from cache.
func (m *Metrics) RecordCacheHit() {
	m.CacheHits.Inc()
}

// RecordCacheMiss records a pattern lookup that fell through to the store.
func (m *Metrics) RecordCacheMiss() {
	m.CacheMisses.Inc()
}

// SetCacheSize records the current cache entry count.
func (m *Metrics) SetCacheSize(n int) {
	m.CacheSize.Set(float64(n))
}
