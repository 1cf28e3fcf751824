package pattern

import "sort"

// Confidence bounds and the initial value for a fresh candidate. These are
// the defaults; deployments tune them through configuration.
const (
	// ConfidenceFloor is the lowest confidence any pattern may hold.
	ConfidenceFloor = 0.30

	// ConfidenceCeiling is the highest confidence any pattern may hold.
	ConfidenceCeiling = 0.99

	// InitialConfidence is assigned to a first-observation candidate.
	InitialConfidence = 0.50
)

// ConfidenceStep maps an observation threshold to a base confidence. Steps
// form a monotonic table: the base for a pattern is the entry with the
// largest threshold not exceeding its observation count.
type ConfidenceStep struct {
	// Observations is the inclusive lower bound for this step.
	Observations int `json:"observations"`

	// Base is the confidence base assigned at this step.
	Base float64 `json:"base"`
}

// ConfidenceParams governs how confidence is derived from a pattern's
// counters. The zero value is unusable; start from DefaultConfidenceParams.
type ConfidenceParams struct {
	// Floor and Ceiling clamp every computed confidence.
	Floor   float64 `json:"floor"`
	Ceiling float64 `json:"ceiling"`

	// ObservationWeight and SuccessWeight blend the step-table base with
	// the prevention success rate once success evidence exists.
	ObservationWeight float64 `json:"observation_weight"`
	SuccessWeight     float64 `json:"success_weight"`

	// Steps is the monotonic base table keyed by observation count,
	// ascending by threshold.
	Steps []ConfidenceStep `json:"steps"`
}

// DefaultConfidenceParams returns the stock step table and blend weights.
func DefaultConfidenceParams() ConfidenceParams {
	return ConfidenceParams{
		Floor:             ConfidenceFloor,
		Ceiling:           ConfidenceCeiling,
		ObservationWeight: 0.7,
		SuccessWeight:     0.3,
		Steps: []ConfidenceStep{
			{Observations: 1, Base: 0.50},
			{Observations: 3, Base: 0.60},
			{Observations: 5, Base: 0.70},
			{Observations: 10, Base: 0.75},
			{Observations: 20, Base: 0.85},
			{Observations: 45, Base: 0.92},
			{Observations: 100, Base: 0.95},
		},
	}
}

// Compute derives confidence from observation and success counters.
//
// The base comes from the step table. When prevention-success evidence
// exists, the base is blended with the success rate
// (successes/observations); purely observation-driven growth stays on the
// table and caps at its top step. The result is clamped to [Floor, Ceiling].
func (p ConfidenceParams) Compute(observations, successes int) float64 {
	if observations < 1 {
		observations = 1
	}
	base := p.baseFor(observations)
	conf := base
	if successes > 0 {
		rate := float64(successes) / float64(observations)
		conf = p.ObservationWeight*base + p.SuccessWeight*rate
	}
	return p.Clamp(conf)
}

// Clamp bounds a confidence value to [Floor, Ceiling].
func (p ConfidenceParams) Clamp(v float64) float64 {
	if v < p.Floor {
		return p.Floor
	}
	if v > p.Ceiling {
		return p.Ceiling
	}
	return v
}

// baseFor returns the step-table base for an observation count.
func (p ConfidenceParams) baseFor(observations int) float64 {
	steps := p.Steps
	if len(steps) == 0 {
		return InitialConfidence
	}
	// First step whose threshold exceeds the count; the base is the entry
	// before it.
	i := sort.Search(len(steps), func(i int) bool {
		return steps[i].Observations > observations
	})
	if i == 0 {
		return steps[0].Base
	}
	return steps[i-1].Base
}
