// Package check warns about tool calls that match learned mistake patterns
// before the call is made.
//
// The checker consults the pattern store for high-confidence patterns on the
// target tool, runs each pattern's category matcher against the call's
// parameters and recent history, and renders a human-readable warning per
// match. Calls matching a pattern at or above the block threshold are flagged
// for refusal rather than a mere warning.
//
// Lookups are cached per (tool, min confidence) with a TTL and LRU bound.
// The store's invalidation hook clears the cache on every mutation, so
// learning is visible to the next check immediately.
package check

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/classify"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
)

const (
	// DefaultMinConfidence is the floor below which patterns are too
	// uncertain to warn about.
	DefaultMinConfidence = 0.75

	// DefaultBlockThreshold is the confidence at which a matched pattern
	// blocks the call instead of merely warning.
	DefaultBlockThreshold = 0.95

	// DefaultCacheTTL bounds staleness of cached pattern lookups.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheSize caps the number of cached (tool, confidence) keys.
	DefaultCacheSize = 128
)

// Request describes an imminent tool call to be checked.
type Request struct {
	// Tool is the tool about to be invoked.
	Tool string

	// Params are the arguments the caller intends to pass.
	Params map[string]any

	// History is the recent call window, oldest first.
	History []classify.CallRecord

	// MinConfidence overrides the checker's configured threshold when
	// positive.
	MinConfidence float64
}

// Warning is one rendered caution about a matched pattern.
type Warning struct {
	// PatternID identifies the matched pattern.
	PatternID string `json:"pattern_id"`

	// Category is the matched pattern's error category.
	Category pattern.ErrorCategory `json:"category"`

	// Confidence is the pattern's confidence at match time.
	Confidence float64 `json:"confidence"`

	// Message is the multi-line advisory shown to the caller.
	Message string `json:"message"`
}

// Result is the verdict for one checked call. The tracker correlates it
// with the call's outcome to grade the warnings it carried.
type Result struct {
	// ID uniquely identifies this check for post-call correlation.
	ID string `json:"id"`

	// Tool is the checked tool.
	Tool string `json:"tool"`

	// CheckedAt is when the check ran.
	CheckedAt time.Time `json:"checked_at"`

	// Warnings holds one entry per matched pattern.
	Warnings []Warning `json:"warnings,omitempty"`

	// ShouldBlock is true when any matched pattern meets the block
	// threshold.
	ShouldBlock bool `json:"should_block"`

	// MatchedPatternIDs lists the ids behind Warnings, in match order.
	MatchedPatternIDs []string `json:"matched_pattern_ids,omitempty"`
}

// Options configures a Checker. Zero fields fall back to defaults.
type Options struct {
	MinConfidence  float64
	BlockThreshold float64
	CacheTTL       time.Duration
	CacheSize      int
}

// DefaultOptions returns the standard checker configuration.
func DefaultOptions() Options {
	return Options{
		MinConfidence:  DefaultMinConfidence,
		BlockThreshold: DefaultBlockThreshold,
		CacheTTL:       DefaultCacheTTL,
		CacheSize:      DefaultCacheSize,
	}
}

// Checker matches imminent tool calls against learned patterns.
type Checker struct {
	store   *store.PatternStore
	opts    Options
	cache   *patternCache
	logger  *zap.Logger
	metrics *Metrics
}

// NewChecker creates a Checker over the given store and registers for its
// invalidation events.
func NewChecker(st *store.PatternStore, opts Options, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.BlockThreshold <= 0 {
		opts.BlockThreshold = DefaultBlockThreshold
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}

	c := &Checker{
		store:   st,
		opts:    opts,
		logger:  logger,
		metrics: NewMetrics(),
	}
	c.cache = newPatternCache(opts.CacheTTL, opts.CacheSize, c.metrics)
	st.OnInvalidate(c.cache.clear)
	return c
}

// CheckBeforeCall evaluates an imminent tool call against known patterns.
// It always returns a Result; the error is reserved for cancelled contexts.
func (c *Checker) CheckBeforeCall(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	minConfidence := c.opts.MinConfidence
	if req.MinConfidence > 0 {
		minConfidence = req.MinConfidence
	}

	res := &Result{
		ID:        uuid.NewString(),
		Tool:      req.Tool,
		CheckedAt: time.Now().UTC(),
	}

	for _, p := range c.lookup(req.Tool, minConfidence) {
		if !Matches(p, req.Params, req.History) {
			continue
		}
		res.MatchedPatternIDs = append(res.MatchedPatternIDs, p.ID)
		res.Warnings = append(res.Warnings, Warning{
			PatternID:  p.ID,
			Category:   p.Category,
			Confidence: p.Confidence,
			Message:    renderWarning(p),
		})
		if p.Confidence >= c.opts.BlockThreshold {
			res.ShouldBlock = true
		}
	}

	c.metrics.RecordCheck(len(res.Warnings), res.ShouldBlock, time.Since(start))

	if res.ShouldBlock {
		c.logger.Warn("tool call blocked by learned pattern",
			zap.String("check_id", res.ID),
			zap.String("tool", req.Tool),
			zap.Strings("pattern_ids", res.MatchedPatternIDs))
	} else if len(res.Warnings) > 0 {
		c.logger.Info("tool call matched learned patterns",
			zap.String("check_id", res.ID),
			zap.String("tool", req.Tool),
			zap.Int("warnings", len(res.Warnings)))
	}

	return res, nil
}

// lookup returns the high-confidence patterns for a tool, served from cache
// when fresh.
func (c *Checker) lookup(tool string, minConfidence float64) []*pattern.Pattern {
	key := cacheKey(tool, minConfidence)
	if patterns, ok := c.cache.get(key); ok {
		return patterns
	}
	patterns := c.store.ListHighConfidence(tool, minConfidence)
	c.cache.set(key, patterns)
	return patterns
}

// renderWarning formats one pattern as a multi-line advisory.
func renderWarning(p *pattern.Pattern) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has a known %s mistake (confidence %.0f%%, observed %d times)",
		p.Tool, p.Category, p.Confidence*100, p.Observations)
	if p.RootCause != "" {
		fmt.Fprintf(&b, "\n  root cause: %s", p.RootCause)
	}
	if len(p.PreventionSteps) > 0 {
		b.WriteString("\n  prevention:")
		for i, step := range p.PreventionSteps {
			fmt.Fprintf(&b, "\n    %d. %s %s", i+1, step.Kind, step.Target)
			if step.Rationale != "" {
				fmt.Fprintf(&b, ": %s", step.Rationale)
			}
		}
	}
	return b.String()
}
