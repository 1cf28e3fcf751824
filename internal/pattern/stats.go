package pattern

import "time"

// AggregateStats is a materialized view over the whole pattern collection.
// It is recomputed synchronously after every storage mutation and is never
// an independent source of truth.
type AggregateStats struct {
	// TotalPatterns is the number of stored patterns.
	TotalPatterns int `json:"total_patterns"`

	// ByCategory counts patterns per error category.
	ByCategory map[ErrorCategory]int `json:"by_category,omitempty"`

	// ByBand counts patterns per confidence band.
	ByBand map[ConfidenceBand]int `json:"by_band,omitempty"`

	// TotalObservations sums observations across all patterns.
	TotalObservations int `json:"total_observations"`

	// PreventionSuccesses sums success_after_prevention across all patterns.
	PreventionSuccesses int `json:"prevention_successes"`

	// PreventionSuccessRate is PreventionSuccesses / TotalObservations,
	// zero when nothing has been observed.
	PreventionSuccessRate float64 `json:"prevention_success_rate"`

	// ComputedAt is when this view was last recomputed.
	ComputedAt time.Time `json:"computed_at"`
}

// ComputeStats derives the aggregate view from a pattern collection.
func ComputeStats(patterns []Pattern) AggregateStats {
	stats := AggregateStats{
		TotalPatterns: len(patterns),
		ByCategory:    make(map[ErrorCategory]int),
		ByBand:        make(map[ConfidenceBand]int),
		ComputedAt:    time.Now(),
	}
	for i := range patterns {
		p := &patterns[i]
		stats.ByCategory[p.Category]++
		stats.ByBand[BandFor(p.Confidence)]++
		stats.TotalObservations += p.Observations
		stats.PreventionSuccesses += p.SuccessAfterPrevention
	}
	if stats.TotalObservations > 0 {
		stats.PreventionSuccessRate = float64(stats.PreventionSuccesses) / float64(stats.TotalObservations)
	}
	return stats
}
