// Package toolguard wires the learning pipeline behind the two seams an
// agent runtime calls around every tool invocation. BeforeToolCall warns
// about known mistakes; AfterToolCall learns from the outcome. Both are
// best-effort: any internal failure is recovered and logged, and the
// wrapped tool call proceeds as if the subsystem did not exist.
package toolguard

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/check"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/classify"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/config"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/extract"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/learn"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/track"
)

// CallOutcome describes one finished tool call for AfterToolCall.
type CallOutcome struct {
	// Tool is the invoked tool name.
	Tool string

	// Params maps parameter names to the values the call was made with.
	Params map[string]any

	// ResultText is the tool's output on success.
	ResultText string

	// ErrorText is the raw error on failure, empty when the call succeeded.
	ErrorText string

	// History is the recent-call window, newest last.
	History []classify.CallRecord

	// Prior is the pre-call check result for this call, if one was made.
	Prior *check.Result

	// PriorParams are the parameters the prior check saw, before any
	// adjustment the caller made in response to warnings.
	PriorParams map[string]any
}

// SummaryRequest selects and bounds the patterns Summary returns.
type SummaryRequest struct {
	// TopN caps the patterns returned per tool. Zero means no cap.
	TopN int

	// MinConfidence excludes patterns below it. Zero includes everything.
	MinConfidence float64
}

// ToolSummary is one tool's learned patterns, ranked by confidence.
type ToolSummary struct {
	Tool     string            `json:"tool"`
	Patterns []pattern.Pattern `json:"patterns"`
}

// Service is the facade over the learning pipeline. All components share
// one pattern store; the service owns none of its dependencies and closes
// nothing.
type Service struct {
	cfg        *config.Config
	store      *store.PatternStore
	classifier *classify.Classifier
	extractor  *extract.Extractor
	learner    *learn.Learner
	checker    *check.Checker
	tracker    *track.Tracker
	logger     *zap.Logger
}

// New wires the pipeline components over the shared store. A nil config
// falls back to the defaults; a nil logger logs nothing; a nil
// infrastructure delegate never diverts a failure.
func New(cfg *config.Config, st *store.PatternStore, infra classify.InfrastructureClassifier, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	learner := learn.NewLearner(st, learnOptions(cfg), logger.Named("learn"))
	return &Service{
		cfg:        cfg,
		store:      st,
		classifier: classify.NewClassifier(infra),
		extractor:  extract.NewExtractor(),
		learner:    learner,
		checker:    check.NewChecker(st, checkOptions(cfg), logger.Named("check")),
		tracker:    track.NewTracker(st, learner, trackOptions(cfg), logger.Named("track")),
		logger:     logger,
	}
}

// BeforeToolCall checks an imminent call against the learned patterns. It
// never panics and never returns an error; on any internal failure the
// result is empty and the call proceeds unwarned.
func (s *Service) BeforeToolCall(ctx context.Context, tool string, params map[string]any, history []classify.CallRecord) (result *check.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pre-call check panicked",
				zap.String("tool", tool),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result = emptyResult(tool)
		}
	}()

	res, err := s.checker.CheckBeforeCall(ctx, check.Request{
		Tool:    tool,
		Params:  params,
		History: s.trimHistory(history),
	})
	if err != nil {
		s.logger.Warn("pre-call check failed",
			zap.String("tool", tool),
			zap.Error(err))
		return emptyResult(tool)
	}
	return res
}

// AfterToolCall feeds one finished call back into the pipeline. Failed
// calls are classified and learned from; successful calls grade any prior
// warnings. Best-effort with the same recovery policy as BeforeToolCall.
func (s *Service) AfterToolCall(ctx context.Context, out CallOutcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("post-call analysis panicked",
				zap.String("tool", out.Tool),
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	if out.ErrorText != "" {
		s.learnFromFailure(ctx, out)
		return
	}
	if err := s.tracker.AnalyzeCallResult(ctx, track.Outcome{
		Tool:        out.Tool,
		Params:      out.Params,
		ResultText:  out.ResultText,
		History:     s.trimHistory(out.History),
		Prior:       out.Prior,
		PriorParams: out.PriorParams,
	}); err != nil {
		s.logger.Warn("outcome analysis failed",
			zap.String("tool", out.Tool),
			zap.Error(err))
	}
}

func (s *Service) learnFromFailure(ctx context.Context, out CallOutcome) {
	in := classify.Input{
		Tool:      out.Tool,
		Params:    out.Params,
		ErrorText: out.ErrorText,
		History:   s.trimHistory(out.History),
	}
	verdict := s.classifier.Classify(in)
	if !verdict.IsUsageError {
		s.logger.Debug("failure not attributed to tool usage",
			zap.String("tool", out.Tool))
		return
	}

	candidate, err := s.extractor.Extract(in, verdict, time.Now().UTC())
	if err != nil {
		s.logger.Warn("candidate extraction failed",
			zap.String("tool", out.Tool),
			zap.String("category", string(verdict.Category)),
			zap.Error(err))
		return
	}

	merged, err := s.learner.MergeOrAdd(ctx, candidate)
	if err != nil {
		s.logger.Warn("learning failed",
			zap.String("tool", out.Tool),
			zap.String("pattern_id", candidate.ID),
			zap.Error(err))
		return
	}
	s.logger.Info("mistake learned",
		zap.String("tool", out.Tool),
		zap.String("pattern_id", merged.PatternID),
		zap.String("rule", verdict.Rule),
		zap.Bool("merged", merged.Merged))
}

// Summary returns the learned patterns grouped by tool, each group ranked
// by confidence descending then observations descending. Tools are sorted
// so output is stable for rendering and diffing.
func (s *Service) Summary(ctx context.Context, req SummaryRequest) []ToolSummary {
	byTool := make(map[string][]pattern.Pattern)
	for _, p := range s.store.List() {
		if p.Confidence < req.MinConfidence {
			continue
		}
		byTool[p.Tool] = append(byTool[p.Tool], *p)
	}

	tools := make([]string, 0, len(byTool))
	for tool := range byTool {
		tools = append(tools, tool)
	}
	sort.Strings(tools)

	summaries := make([]ToolSummary, 0, len(tools))
	for _, tool := range tools {
		patterns := byTool[tool]
		sort.Slice(patterns, func(i, j int) bool {
			if patterns[i].Confidence != patterns[j].Confidence {
				return patterns[i].Confidence > patterns[j].Confidence
			}
			if patterns[i].Observations != patterns[j].Observations {
				return patterns[i].Observations > patterns[j].Observations
			}
			return patterns[i].ID < patterns[j].ID
		})
		if req.TopN > 0 && len(patterns) > req.TopN {
			patterns = patterns[:req.TopN]
		}
		summaries = append(summaries, ToolSummary{Tool: tool, Patterns: patterns})
	}
	return summaries
}

// Stats returns the aggregate statistics of the stored patterns.
func (s *Service) Stats(ctx context.Context) pattern.AggregateStats {
	return s.store.Stats()
}

// trimHistory bounds the history window to the configured size, keeping
// the newest entries.
func (s *Service) trimHistory(history []classify.CallRecord) []classify.CallRecord {
	window := s.cfg.History.Window
	if window > 0 && len(history) > window {
		return history[len(history)-window:]
	}
	return history
}

func emptyResult(tool string) *check.Result {
	return &check.Result{Tool: tool, CheckedAt: time.Now().UTC()}
}

func learnOptions(cfg *config.Config) learn.Options {
	steps := make([]pattern.ConfidenceStep, len(cfg.Confidence.Steps))
	for i, s := range cfg.Confidence.Steps {
		steps[i] = pattern.ConfidenceStep{Observations: s.Observations, Base: s.Base}
	}
	return learn.Options{
		MergeThreshold: cfg.Learner.MergeThreshold,
		Weights: learn.Weights{
			Tokens:    cfg.Learner.SimilarityWeights.Tokens,
			Parameter: cfg.Learner.SimilarityWeights.Parameter,
			RootCause: cfg.Learner.SimilarityWeights.RootCause,
			Steps:     cfg.Learner.SimilarityWeights.Steps,
		},
		Confidence: pattern.ConfidenceParams{
			Floor:             cfg.Confidence.Floor,
			Ceiling:           cfg.Confidence.Ceiling,
			ObservationWeight: cfg.Confidence.ObservationWeight,
			SuccessWeight:     cfg.Confidence.SuccessWeight,
			Steps:             steps,
		},
	}
}

func checkOptions(cfg *config.Config) check.Options {
	return check.Options{
		MinConfidence:  cfg.Checker.MinConfidence,
		BlockThreshold: cfg.Checker.BlockThreshold,
		CacheTTL:       cfg.Checker.CacheTTL,
		CacheSize:      cfg.Checker.CacheMaxEntries,
	}
}

func trackOptions(cfg *config.Config) track.Options {
	return track.Options{FailureMarkers: cfg.Tracker.FailureMarkers}
}
