package track

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/check"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/classify"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/learn"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
)

const fullSHA = "74ec56e74ec56e74ec56e74ec56e74ec56e74ec5"

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestTracker(t *testing.T) (*Tracker, *store.PatternStore) {
	t.Helper()
	backend, err := store.NewDocumentBackend(filepath.Join(t.TempDir(), "patterns.json"), nil)
	require.NoError(t, err)
	st, err := store.NewPatternStore(context.Background(), backend, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	learner := learn.NewLearner(st, learn.DefaultOptions(), nil)
	return NewTracker(st, learner, Options{}, nil), st
}

func addPattern(t *testing.T, st *store.PatternStore, p *pattern.Pattern) *pattern.Pattern {
	t.Helper()
	require.NoError(t, p.Validate())
	require.NoError(t, st.Add(context.Background(), p))
	return p
}

func formatPattern(confidence float64) *pattern.Pattern {
	return &pattern.Pattern{
		ID:       pattern.DeriveID("bonfire_deploy", pattern.CategoryParameterFormat, "short tag"),
		Tool:     "bonfire_deploy",
		Category: pattern.CategoryParameterFormat,
		Shape: &pattern.ParameterFormatShape{
			Parameter: "image_tag",
			Rule:      "image tags must be the full 40-character commit sha",
			Check:     "^[0-9a-f]{40}$",
			BadValues: []string{"74ec56e"},
		},
		Observations: 45,
		Confidence:   confidence,
		FirstSeen:    testTime(),
		LastSeen:     testTime(),
	}
}

func prereqPattern(confidence float64) *pattern.Pattern {
	return &pattern.Pattern{
		ID:       pattern.DeriveID("oc_get_pods", pattern.CategoryMissingPrerequisite, "must log in"),
		Tool:     "oc_get_pods",
		Category: pattern.CategoryMissingPrerequisite,
		Shape: &pattern.MissingPrerequisiteShape{
			Description:   "oc_get_pods requires an authenticated session",
			RequiredTools: []string{"oc_login"},
		},
		Observations: 12,
		Confidence:   confidence,
		FirstSeen:    testTime(),
		LastSeen:     testTime(),
	}
}

func wrongToolPattern(confidence float64) *pattern.Pattern {
	return &pattern.Pattern{
		ID:       pattern.DeriveID("oc_get_pods", pattern.CategoryWrongToolSelection, "use oc_logs"),
		Tool:     "oc_get_pods",
		Category: pattern.CategoryWrongToolSelection,
		Shape: &pattern.WrongToolSelectionShape{
			SuggestedTool: "oc_logs",
			ContextParams: []string{"namespace", "pod"},
		},
		Observations: 8,
		Confidence:   confidence,
		FirstSeen:    testTime(),
		LastSeen:     testTime(),
	}
}

func priorFor(p *pattern.Pattern) *check.Result {
	return &check.Result{
		ID:                "chk-1",
		Tool:              p.Tool,
		CheckedAt:         testTime(),
		Warnings:          []check.Warning{{PatternID: p.ID, Category: p.Category, Confidence: p.Confidence}},
		MatchedPatternIDs: []string{p.ID},
	}
}

func confidenceOf(t *testing.T, st *store.PatternStore, id string) float64 {
	t.Helper()
	p, err := st.Get(id)
	require.NoError(t, err)
	return p.Confidence
}

func TestAnalyzeFalsePositive(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, formatPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "bonfire_deploy",
		Params:      map[string]any{"image_tag": "74ec56e"},
		ResultText:  "deployment complete: all pods ready",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	// Succeeding with the flagged value still in place discredits the
	// warning.
	assert.InDelta(t, 0.75, confidenceOf(t, st, p.ID), 1e-9)
}

func TestAnalyzePreventionSuccess(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, formatPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "bonfire_deploy",
		Params:      map[string]any{"image_tag": fullSHA},
		ResultText:  "deployment complete: all pods ready",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	got, err := st.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessAfterPrevention)
	// 0.7 * base(45 obs) + 0.3 * (1/45 successes).
	assert.InDelta(t, 0.7*0.92+0.3/45.0, got.Confidence, 1e-9)
}

func TestAnalyzeDroppedFlaggedParameter(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, formatPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "bonfire_deploy",
		Params:      map[string]any{"namespace": "ephemeral-abc123"},
		ResultText:  "deployment complete: all pods ready",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	got, err := st.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.SuccessAfterPrevention, "removing the flagged parameter counts as heeding the warning")
}

func TestAnalyzeSkipsFailedCall(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, formatPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "bonfire_deploy",
		Params:      map[string]any{"image_tag": "74ec56e"},
		ResultText:  "Error: manifest unknown: manifest tagged by 74ec56e is not found",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.80, confidenceOf(t, st, p.ID), "failed calls are graded by the learner, not here")
}

func TestAnalyzeSkipsBlockedCall(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, formatPattern(0.97))

	prior := priorFor(p)
	prior.ShouldBlock = true

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "bonfire_deploy",
		Params:      map[string]any{"image_tag": "74ec56e"},
		ResultText:  "deployment complete",
		Prior:       prior,
		PriorParams: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.97, confidenceOf(t, st, p.ID))
}

func TestAnalyzeSkipsWithoutPrior(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, formatPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:       "bonfire_deploy",
		Params:     map[string]any{"image_tag": "74ec56e"},
		ResultText: "deployment complete",
	})
	require.NoError(t, err)

	assert.Equal(t, 0.80, confidenceOf(t, st, p.ID))
}

func TestAnalyzeConservativeWithoutFlaggedParameter(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, wrongToolPattern(0.80))

	// No context overlap anymore, and wrong-tool patterns have no flagged
	// parameter to compare.
	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "oc_get_pods",
		Params:      map[string]any{"selector": "app=api"},
		ResultText:  "NAME READY STATUS",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"pod": "api-0"},
	})
	require.NoError(t, err)

	got, err := st.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.80, got.Confidence)
	assert.Equal(t, 0, got.SuccessAfterPrevention)
}

func TestAnalyzeWrongToolStillUsed(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, wrongToolPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "oc_get_pods",
		Params:      map[string]any{"pod": "api-0"},
		ResultText:  "NAME READY STATUS",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"pod": "api-0"},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.75, confidenceOf(t, st, p.ID), 1e-9)
}

func TestAnalyzePrerequisiteHeeded(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, prereqPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:       "oc_get_pods",
		Params:     map[string]any{"namespace": "default"},
		ResultText: "NAME READY STATUS",
		History: []classify.CallRecord{
			{Tool: "oc_login", At: testTime(), Success: true},
		},
		Prior:       priorFor(p),
		PriorParams: map[string]any{"namespace": "default"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0.80, confidenceOf(t, st, p.ID), "running the prerequisite satisfies the warning")
}

func TestAnalyzePrerequisiteNotNeeded(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := addPattern(t, st, prereqPattern(0.80))

	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "oc_get_pods",
		Params:      map[string]any{"namespace": "default"},
		ResultText:  "NAME READY STATUS",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"namespace": "default"},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.75, confidenceOf(t, st, p.ID), 1e-9,
		"succeeding without the prerequisite discredits the warning")
}

func TestAnalyzeStalePatternID(t *testing.T) {
	tracker, st := newTestTracker(t)
	p := formatPattern(0.80)

	// Pattern was never stored (for example pruned since the check).
	err := tracker.AnalyzeCallResult(context.Background(), Outcome{
		Tool:        "bonfire_deploy",
		Params:      map[string]any{"image_tag": "74ec56e"},
		ResultText:  "deployment complete",
		Prior:       priorFor(p),
		PriorParams: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, st.Count())
}

func TestFailureMarkersAreCaseInsensitive(t *testing.T) {
	tracker, _ := newTestTracker(t)

	assert.True(t, tracker.callFailed("FAILED to connect"))
	assert.True(t, tracker.callFailed("resource Not Found"))
	assert.True(t, tracker.callFailed("Traceback (most recent call last)"))
	assert.False(t, tracker.callFailed("deployment complete"))
}

func TestCustomFailureMarkers(t *testing.T) {
	_, st := newTestTracker(t)
	learner := learn.NewLearner(st, learn.DefaultOptions(), nil)
	tracker := NewTracker(st, learner, Options{FailureMarkers: []string{"panic"}}, nil)

	assert.True(t, tracker.callFailed("runtime panic: index out of range"))
	assert.False(t, tracker.callFailed("error: still fine under custom markers"))
}
