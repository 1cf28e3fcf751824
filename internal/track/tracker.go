// Package track grades prior warnings against actual call outcomes.
//
// When a call that carried warnings succeeds anyway, the tracker decides
// whether each warned pattern was a false positive (the flagged shape was
// still present, yet nothing went wrong) or a prevented mistake (the caller
// changed the flagged parameter after seeing the warning). The verdict feeds
// back into pattern confidence through the learner.
//
// Failed calls are not graded here; the classify and learn packages own
// learning from failures.
package track

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/check"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/classify"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/learn"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
)

// DefaultFailureMarkers returns the substrings that mark a tool result as a
// failure. Matching is case-insensitive.
func DefaultFailureMarkers() []string {
	return []string{
		"error",
		"failed",
		"failure",
		"exception",
		"traceback",
		"denied",
		"not found",
		"unable to",
	}
}

// Outcome describes a completed tool call and the check that preceded it.
type Outcome struct {
	// Tool is the tool that was invoked.
	Tool string

	// Params are the arguments the call was actually made with.
	Params map[string]any

	// ResultText is the textual result returned by the tool.
	ResultText string

	// History is the call window at invocation time, for re-running
	// history-based matchers.
	History []classify.CallRecord

	// Prior is the check result issued for this call, if any.
	Prior *check.Result

	// PriorParams are the arguments as they stood when Prior was issued.
	PriorParams map[string]any
}

// Options configures a Tracker. Zero fields fall back to defaults.
type Options struct {
	// FailureMarkers overrides the default failure substrings.
	FailureMarkers []string
}

// Tracker analyzes call outcomes and feeds warning quality back into
// pattern confidence.
type Tracker struct {
	store   *store.PatternStore
	learner *learn.Learner
	markers []string
	logger  *zap.Logger
	metrics *Metrics
}

// NewTracker creates a Tracker over the given store and learner.
func NewTracker(st *store.PatternStore, learner *learn.Learner, opts Options, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	markers := opts.FailureMarkers
	if len(markers) == 0 {
		markers = DefaultFailureMarkers()
	}
	lowered := make([]string, len(markers))
	for i, m := range markers {
		lowered[i] = strings.ToLower(m)
	}
	return &Tracker{
		store:   st,
		learner: learner,
		markers: lowered,
		logger:  logger,
		metrics: NewMetrics(),
	}
}

// AnalyzeCallResult grades the warnings attached to a completed call.
//
// Only calls that carried warnings, were not blocked, and succeeded are
// graded. Per warned pattern: if the call still matched the flagged shape,
// the warning was a false positive; if the flagged parameter changed
// relative to the pre-check arguments, the warning prevented a mistake.
// Anything else is left alone.
func (t *Tracker) AnalyzeCallResult(ctx context.Context, outcome Outcome) error {
	if outcome.Prior == nil || len(outcome.Prior.Warnings) == 0 {
		return nil
	}
	if outcome.Prior.ShouldBlock {
		// A blocked call never ran, so its outcome proves nothing.
		return nil
	}
	if t.callFailed(outcome.ResultText) {
		return nil
	}

	t.metrics.RecordOutcome()

	var errs []error
	for _, id := range outcome.Prior.MatchedPatternIDs {
		p, err := t.store.Get(id)
		if err != nil {
			// Pruned or merged away since the check ran.
			t.logger.Debug("warned pattern no longer stored",
				zap.String("pattern_id", id))
			continue
		}

		switch {
		case check.Matches(p, outcome.Params, outcome.History):
			if err := t.learner.RecordPreventionFailure(ctx, id, "call succeeded despite matching pattern"); err != nil {
				errs = append(errs, fmt.Errorf("record false positive for %s: %w", id, err))
				continue
			}
			t.metrics.RecordFalsePositive()
			t.logger.Info("warning graded as false positive",
				zap.String("check_id", outcome.Prior.ID),
				zap.String("pattern_id", id),
				zap.String("tool", outcome.Tool))

		case t.flaggedParamChanged(p, outcome.Params, outcome.PriorParams):
			if err := t.learner.RecordPreventionSuccess(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("record prevention for %s: %w", id, err))
				continue
			}
			t.metrics.RecordPrevention()
			t.logger.Info("warning graded as prevented mistake",
				zap.String("check_id", outcome.Prior.ID),
				zap.String("pattern_id", id),
				zap.String("tool", outcome.Tool))
		}
	}
	return errors.Join(errs...)
}

// callFailed reports whether the result text carries any failure marker.
func (t *Tracker) callFailed(resultText string) bool {
	text := strings.ToLower(resultText)
	for _, marker := range t.markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// flaggedParamChanged reports whether the call's value for the pattern's
// flagged parameter differs from the value present when the check ran.
// Patterns without a flagged parameter never report a change.
func (t *Tracker) flaggedParamChanged(p *pattern.Pattern, params, priorParams map[string]any) bool {
	name := flaggedParameter(p)
	if name == "" {
		return false
	}
	prior, hadPrior := priorParams[name]
	if !hadPrior {
		return false
	}
	current, hasCurrent := params[name]
	if !hasCurrent {
		// Dropping the flagged parameter entirely counts as a change.
		return true
	}
	return valueString(current) != valueString(prior)
}

func flaggedParameter(p *pattern.Pattern) string {
	switch shape := p.Shape.(type) {
	case *pattern.ParameterFormatShape:
		return shape.Parameter
	case *pattern.IncorrectParameterShape:
		return shape.Parameter
	default:
		return ""
	}
}

func valueString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
