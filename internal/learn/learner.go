// Package learn folds classified mistakes into the pattern store.
//
// New candidates either reinforce an existing pattern (same id, or similar
// enough within the same tool and category) or start a new one. Confidence
// is always recomputed from the observation and success counters, except for
// the prevention-failure penalty, which is a direct deduction.
package learn

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
)

// DefaultMergeThreshold is the similarity at or above which a candidate
// folds into an existing pattern instead of starting a new one.
const DefaultMergeThreshold = 0.70

// DefaultFailurePenalty is deducted from confidence on a recorded
// prevention failure.
const DefaultFailurePenalty = 0.05

// Options configures the learner.
type Options struct {
	// MergeThreshold is the minimum similarity for a merge.
	MergeThreshold float64

	// Weights blends the similarity components.
	Weights Weights

	// Confidence computes scores from the pattern counters.
	Confidence pattern.ConfidenceParams

	// FailurePenalty is deducted on a prevention failure.
	FailurePenalty float64
}

// DefaultOptions returns the standard learner configuration.
func DefaultOptions() Options {
	return Options{
		MergeThreshold: DefaultMergeThreshold,
		Weights:        DefaultWeights(),
		Confidence:     pattern.DefaultConfidenceParams(),
		FailurePenalty: DefaultFailurePenalty,
	}
}

// MergeResult reports what MergeOrAdd did with a candidate.
type MergeResult struct {
	// PatternID is the stored pattern the candidate ended up in.
	PatternID string

	// Merged is true when the candidate reinforced an existing pattern.
	Merged bool

	// Similarity is the score against the merged-into pattern (1 for an id
	// match), or the best rejected score when a new pattern was added.
	Similarity float64
}

// Learner mutates the store in response to observed mistakes and
// prevention outcomes.
type Learner struct {
	store   *store.PatternStore
	opts    Options
	logger  *zap.Logger
	metrics *Metrics
}

// NewLearner creates a learner over the shared store. Zero option fields
// fall back to defaults.
func NewLearner(st *store.PatternStore, opts Options, logger *zap.Logger) *Learner {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultOptions()
	if opts.MergeThreshold <= 0 {
		opts.MergeThreshold = def.MergeThreshold
	}
	if opts.Weights == (Weights{}) {
		opts.Weights = def.Weights
	}
	if len(opts.Confidence.Steps) == 0 {
		opts.Confidence = def.Confidence
	}
	if opts.FailurePenalty <= 0 {
		opts.FailurePenalty = def.FailurePenalty
	}
	return &Learner{
		store:   st,
		opts:    opts,
		logger:  logger,
		metrics: NewMetrics(),
	}
}

// MergeOrAdd folds a candidate into the store. An existing pattern with the
// candidate's id always wins; otherwise the closest pattern of the same tool
// and category at or above the merge threshold does. With no match the
// candidate is stored as a new pattern.
func (l *Learner) MergeOrAdd(ctx context.Context, candidate *pattern.Pattern) (MergeResult, error) {
	if err := candidate.Validate(); err != nil {
		return MergeResult{}, fmt.Errorf("candidate: %w", err)
	}

	var res MergeResult
	err := l.store.Mutate(ctx, func(doc *store.Document) error {
		if existing, ok := doc.Get(candidate.ID); ok {
			l.merge(existing, candidate)
			res = MergeResult{PatternID: existing.ID, Merged: true, Similarity: 1.0}
			return nil
		}

		var best *pattern.Pattern
		bestScore := 0.0
		for _, p := range doc.ByToolCategory(candidate.Tool, candidate.Category) {
			if score := Similarity(p, candidate, l.opts.Weights); score > bestScore {
				best, bestScore = p, score
			}
		}
		if best != nil && bestScore >= l.opts.MergeThreshold {
			l.merge(best, candidate)
			res = MergeResult{PatternID: best.ID, Merged: true, Similarity: bestScore}
			return nil
		}

		doc.Put(candidate.Clone())
		res = MergeResult{PatternID: candidate.ID, Merged: false, Similarity: bestScore}
		return nil
	})
	if err != nil {
		return MergeResult{}, err
	}

	if res.Merged {
		l.metrics.RecordMerge(candidate.Category)
		l.logger.Debug("pattern reinforced",
			zap.String("id", res.PatternID),
			zap.Float64("similarity", res.Similarity))
	} else {
		l.metrics.RecordLearned(candidate.Category)
		l.logger.Info("new pattern learned",
			zap.String("id", res.PatternID),
			zap.String("tool", candidate.Tool),
			zap.String("category", string(candidate.Category)))
	}
	return res, nil
}

// merge folds the candidate's observation into an existing pattern in place.
func (l *Learner) merge(existing, candidate *pattern.Pattern) {
	existing.Observations += candidate.Observations
	existing.Shape = existing.Shape.Merge(candidate.Shape)
	if candidate.LastSeen.After(existing.LastSeen) {
		existing.LastSeen = candidate.LastSeen
	}
	if candidate.FirstSeen.Before(existing.FirstSeen) {
		existing.FirstSeen = candidate.FirstSeen
	}
	if len(existing.PreventionSteps) == 0 {
		existing.PreventionSteps = append([]pattern.PreventionStep(nil), candidate.PreventionSteps...)
	}
	existing.Confidence = l.opts.Confidence.Compute(existing.Observations, existing.SuccessAfterPrevention)
}

// RecordPreventionSuccess counts a heeded warning and recomputes the
// pattern's confidence.
func (l *Learner) RecordPreventionSuccess(ctx context.Context, id string) error {
	err := l.store.Mutate(ctx, func(doc *store.Document) error {
		p, ok := doc.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", store.ErrPatternNotFound, id)
		}
		p.SuccessAfterPrevention++
		p.Confidence = l.opts.Confidence.Compute(p.Observations, p.SuccessAfterPrevention)
		return nil
	})
	if err != nil {
		return err
	}
	l.metrics.RecordPreventionSuccess()
	l.logger.Debug("prevention success recorded", zap.String("id", id))
	return nil
}

// RecordPreventionFailure deducts the failure penalty from the pattern's
// confidence, floored at the confidence floor. The reason is logged, never
// stored.
func (l *Learner) RecordPreventionFailure(ctx context.Context, id, reason string) error {
	err := l.store.Mutate(ctx, func(doc *store.Document) error {
		p, ok := doc.Get(id)
		if !ok {
			return fmt.Errorf("%w: %s", store.ErrPatternNotFound, id)
		}
		p.Confidence -= l.opts.FailurePenalty
		if p.Confidence < l.opts.Confidence.Floor {
			p.Confidence = l.opts.Confidence.Floor
		}
		return nil
	})
	if err != nil {
		return err
	}
	l.metrics.RecordPreventionFailure()
	l.logger.Info("prevention failure recorded",
		zap.String("id", id),
		zap.String("reason", reason))
	return nil
}
