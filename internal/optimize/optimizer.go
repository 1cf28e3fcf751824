// Package optimize performs scheduled maintenance over the pattern store.
//
// Two phases run against the collection, never per-call: decay lowers the
// confidence of patterns that have stopped recurring, and prune deletes
// patterns that aged out or never earned trust. Both phases share their
// deciding logic with dry-run mode, so a dry-run report names exactly the
// patterns a real run would touch.
package optimize

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
)

const (
	// DefaultDecayRate is the confidence reduction per inactive period.
	DefaultDecayRate = 0.05

	// DefaultInactivePeriod is how long a pattern may go unseen before
	// decay starts.
	DefaultInactivePeriod = 30 * 24 * time.Hour

	// DefaultMaxAge is how long an unseen low-confidence pattern survives
	// before pruning.
	DefaultMaxAge = 90 * 24 * time.Hour

	// DefaultPruneMinConfidence is the confidence below which stale or
	// barely-observed patterns are pruned.
	DefaultPruneMinConfidence = 0.70

	// pruneCollapseThreshold prunes regardless of age or observations.
	pruneCollapseThreshold = 0.50

	// pruneMinObservations is the observation count below which a pattern
	// has not proven it recurs.
	pruneMinObservations = 3
)

// DecayOptions controls the decay phase.
type DecayOptions struct {
	// Rate is subtracted from confidence once per whole inactive period.
	Rate float64

	// InactivePeriod is the unseen span that accrues one decay step.
	InactivePeriod time.Duration

	// DryRun reports what would change without mutating the store.
	DryRun bool
}

// DefaultDecayOptions returns the standard decay configuration.
func DefaultDecayOptions() DecayOptions {
	return DecayOptions{
		Rate:           DefaultDecayRate,
		InactivePeriod: DefaultInactivePeriod,
	}
}

// PruneOptions controls the prune phase.
type PruneOptions struct {
	// MaxAge is the unseen span after which low-confidence patterns are
	// deleted.
	MaxAge time.Duration

	// MinConfidence is the threshold under which stale or barely-observed
	// patterns are deleted.
	MinConfidence float64

	// DryRun reports what would be deleted without mutating the store.
	DryRun bool
}

// DefaultPruneOptions returns the standard prune configuration.
func DefaultPruneOptions() PruneOptions {
	return PruneOptions{
		MaxAge:        DefaultMaxAge,
		MinConfidence: DefaultPruneMinConfidence,
	}
}

// Options configures a combined maintenance pass.
type Options struct {
	Decay DecayOptions
	Prune PruneOptions

	// DryRun applies to the whole pass.
	DryRun bool
}

// DefaultOptions returns the standard combined configuration.
func DefaultOptions() Options {
	return Options{
		Decay: DefaultDecayOptions(),
		Prune: DefaultPruneOptions(),
	}
}

// DecayedPattern records one confidence reduction.
type DecayedPattern struct {
	ID      string  `json:"id"`
	Before  float64 `json:"before"`
	After   float64 `json:"after"`
	Periods int     `json:"periods"`
}

// PrunedPattern records one deletion.
type PrunedPattern struct {
	ID         string    `json:"id"`
	Confidence float64   `json:"confidence"`
	LastSeen   time.Time `json:"last_seen"`
	Reason     string    `json:"reason"`
}

// Report summarizes one maintenance pass.
type Report struct {
	DryRun bool `json:"dry_run"`

	Decayed []DecayedPattern `json:"decayed,omitempty"`
	Pruned  []PrunedPattern  `json:"pruned,omitempty"`

	StatsBefore pattern.AggregateStats `json:"stats_before"`
	StatsAfter  pattern.AggregateStats `json:"stats_after"`

	MeanConfidenceBefore float64 `json:"mean_confidence_before"`
	MeanConfidenceAfter  float64 `json:"mean_confidence_after"`

	Duration time.Duration `json:"duration"`
}

// Optimizer runs maintenance passes over a pattern store.
type Optimizer struct {
	store   *store.PatternStore
	logger  *zap.Logger
	metrics *Metrics

	// now is the decay clock, overridable in tests.
	now func() time.Time
}

// NewOptimizer creates an Optimizer over the given store.
func NewOptimizer(st *store.PatternStore, logger *zap.Logger) *Optimizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Optimizer{
		store:   st,
		logger:  logger,
		metrics: NewMetrics(),
		now:     time.Now,
	}
}

// ApplyDecay runs only the decay phase.
func (o *Optimizer) ApplyDecay(ctx context.Context, opts DecayOptions) (*Report, error) {
	if opts.Rate <= 0 {
		opts.Rate = DefaultDecayRate
	}
	if opts.InactivePeriod <= 0 {
		opts.InactivePeriod = DefaultInactivePeriod
	}
	return o.execute(ctx, Options{Decay: opts, DryRun: opts.DryRun}, true, false)
}

// PruneOldPatterns runs only the prune phase.
func (o *Optimizer) PruneOldPatterns(ctx context.Context, opts PruneOptions) (*Report, error) {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultPruneMinConfidence
	}
	return o.execute(ctx, Options{Prune: opts, DryRun: opts.DryRun}, false, true)
}

// Optimize runs decay then prune in one store transaction, so patterns the
// decay phase pushes under the prune thresholds are deleted in the same
// cycle.
func (o *Optimizer) Optimize(ctx context.Context, opts Options) (*Report, error) {
	if opts.Decay.Rate <= 0 {
		opts.Decay.Rate = DefaultDecayRate
	}
	if opts.Decay.InactivePeriod <= 0 {
		opts.Decay.InactivePeriod = DefaultInactivePeriod
	}
	if opts.Prune.MaxAge <= 0 {
		opts.Prune.MaxAge = DefaultMaxAge
	}
	if opts.Prune.MinConfidence <= 0 {
		opts.Prune.MinConfidence = DefaultPruneMinConfidence
	}
	opts.DryRun = opts.DryRun || opts.Decay.DryRun || opts.Prune.DryRun
	return o.execute(ctx, opts, true, true)
}

func (o *Optimizer) execute(ctx context.Context, opts Options, doDecay, doPrune bool) (*Report, error) {
	start := time.Now()
	now := o.now()

	report := &Report{DryRun: opts.DryRun}
	before := o.store.List()
	report.StatsBefore = o.store.Stats()
	report.MeanConfidenceBefore = meanConfidence(before)

	if opts.DryRun {
		// The pass operates on clones, so decisions are identical to a
		// real run without touching the store.
		decayed, pruned := runPass(before, opts, now, doDecay, doPrune)
		report.Decayed = decayed
		report.Pruned = pruned

		remaining := survivors(before, pruned)
		report.StatsAfter = pattern.ComputeStats(remaining)
		report.MeanConfidenceAfter = meanConfidencePatterns(remaining)
		report.Duration = time.Since(start)

		o.logger.Info("maintenance dry run",
			zap.Int("would_decay", len(report.Decayed)),
			zap.Int("would_prune", len(report.Pruned)))
		return report, nil
	}

	err := o.store.Mutate(ctx, func(doc *store.Document) error {
		ordered := make([]*pattern.Pattern, 0, len(doc.Patterns))
		for _, p := range doc.Patterns {
			ordered = append(ordered, p)
		}
		sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

		decayed, pruned := runPass(ordered, opts, now, doDecay, doPrune)
		for _, pr := range pruned {
			doc.Delete(pr.ID)
		}
		report.Decayed = decayed
		report.Pruned = pruned
		return nil
	})
	if err != nil {
		o.metrics.RecordFailure()
		o.logger.Error("maintenance pass failed", zap.Error(err))
		return nil, fmt.Errorf("maintenance pass: %w", err)
	}

	after := o.store.List()
	report.StatsAfter = o.store.Stats()
	report.MeanConfidenceAfter = meanConfidence(after)
	report.Duration = time.Since(start)

	o.metrics.RecordRun(len(report.Decayed), len(report.Pruned), report.Duration)
	o.logger.Info("maintenance pass completed",
		zap.Int("decayed", len(report.Decayed)),
		zap.Int("pruned", len(report.Pruned)),
		zap.Int("patterns", report.StatsAfter.TotalPatterns),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// runPass applies decay then prune decisions over pattern clones, mutating
// them in place. Both the dry-run path and the store transaction call it
// with the same inputs, which keeps their decisions identical.
func runPass(patterns []*pattern.Pattern, opts Options, now time.Time, doDecay, doPrune bool) ([]DecayedPattern, []PrunedPattern) {
	var decayed []DecayedPattern
	var pruned []PrunedPattern

	for _, p := range patterns {
		if doDecay {
			if d, ok := decayPattern(p, opts.Decay, now); ok {
				decayed = append(decayed, d)
			}
		}
		if doPrune {
			if reason, ok := pruneReason(p, opts.Prune, now); ok {
				pruned = append(pruned, PrunedPattern{
					ID:         p.ID,
					Confidence: p.Confidence,
					LastSeen:   p.LastSeen,
					Reason:     reason,
				})
			}
		}
	}
	return decayed, pruned
}

// decayPattern lowers a pattern's confidence by one rate step per whole
// inactive period accrued since the last decay (or since it was last seen),
// floored at the confidence floor. It mutates p and reports whether any
// reduction applied. Whole-period accounting makes repeated passes additive
// rather than compounding.
func decayPattern(p *pattern.Pattern, opts DecayOptions, now time.Time) (DecayedPattern, bool) {
	if now.Sub(p.LastSeen) <= opts.InactivePeriod {
		return DecayedPattern{}, false
	}

	ref := p.LastSeen
	if !p.DecayAppliedAt.IsZero() {
		ref = p.DecayAppliedAt
	}
	periods := int(now.Sub(ref) / opts.InactivePeriod)
	if periods < 1 {
		return DecayedPattern{}, false
	}

	after := p.Confidence - opts.Rate*float64(periods)
	if after < pattern.ConfidenceFloor {
		after = pattern.ConfidenceFloor
	}
	if after >= p.Confidence {
		// Already at the floor; nothing to reduce, nothing to stamp.
		return DecayedPattern{}, false
	}

	d := DecayedPattern{ID: p.ID, Before: p.Confidence, After: after, Periods: periods}
	p.Confidence = after
	p.DecayAppliedAt = now
	return d, true
}

// pruneReason decides whether a pattern should be deleted, returning a
// human-readable reason. It runs after decay in a combined pass, so it sees
// decayed confidences.
func pruneReason(p *pattern.Pattern, opts PruneOptions, now time.Time) (string, bool) {
	switch {
	case now.Sub(p.LastSeen) > opts.MaxAge && p.Confidence < opts.MinConfidence:
		return "stale and below confidence threshold", true
	case p.Confidence < pruneCollapseThreshold:
		return "confidence collapsed", true
	case p.Observations < pruneMinObservations && p.Confidence < opts.MinConfidence:
		return "never recurred", true
	}
	return "", false
}

func meanConfidence(patterns []*pattern.Pattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	var sum float64
	for _, p := range patterns {
		sum += p.Confidence
	}
	return sum / float64(len(patterns))
}

func meanConfidencePatterns(patterns []pattern.Pattern) float64 {
	if len(patterns) == 0 {
		return 0
	}
	var sum float64
	for i := range patterns {
		sum += patterns[i].Confidence
	}
	return sum / float64(len(patterns))
}

// survivors returns the flattened post-pass collection for a dry run.
func survivors(patterns []*pattern.Pattern, pruned []PrunedPattern) []pattern.Pattern {
	dropped := make(map[string]struct{}, len(pruned))
	for _, pr := range pruned {
		dropped[pr.ID] = struct{}{}
	}
	out := make([]pattern.Pattern, 0, len(patterns))
	for _, p := range patterns {
		if _, gone := dropped[p.ID]; gone {
			continue
		}
		out = append(out, *p)
	}
	return out
}
