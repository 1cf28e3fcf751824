package check

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/classify"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/store"
)

func testTime() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func newTestChecker(t *testing.T, opts Options) (*Checker, *store.PatternStore) {
	t.Helper()
	backend, err := store.NewDocumentBackend(filepath.Join(t.TempDir(), "patterns.json"), nil)
	require.NoError(t, err)
	st, err := store.NewPatternStore(context.Background(), backend, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return NewChecker(st, opts, nil), st
}

func addPattern(t *testing.T, st *store.PatternStore, p *pattern.Pattern) *pattern.Pattern {
	t.Helper()
	require.NoError(t, p.Validate())
	require.NoError(t, st.Add(context.Background(), p))
	return p
}

func formatPattern(confidence float64, errText string) *pattern.Pattern {
	return &pattern.Pattern{
		ID:       pattern.DeriveID("bonfire_deploy", pattern.CategoryParameterFormat, errText),
		Tool:     "bonfire_deploy",
		Category: pattern.CategoryParameterFormat,
		Shape: &pattern.ParameterFormatShape{
			Parameter: "image_tag",
			Rule:      "image tags must be the full 40-character commit sha",
			Check:     "^[0-9a-f]{40}$",
			BadValues: []string{"74ec56e"},
		},
		RootCause: `parameter "image_tag" was given a malformed value: image tags must be the full 40-character commit sha`,
		PreventionSteps: []pattern.PreventionStep{
			{Kind: pattern.StepValidate, Target: "image_tag", Rationale: "image tags must be the full 40-character commit sha"},
		},
		Observations: 45,
		Confidence:   confidence,
		FirstSeen:    testTime(),
		LastSeen:     testTime(),
	}
}

func prereqPattern(confidence float64) *pattern.Pattern {
	return &pattern.Pattern{
		ID:       pattern.DeriveID("oc_get_pods", pattern.CategoryMissingPrerequisite, "error: you must be logged in to the server"),
		Tool:     "oc_get_pods",
		Category: pattern.CategoryMissingPrerequisite,
		Shape: &pattern.MissingPrerequisiteShape{
			Description:   "oc_get_pods requires an authenticated session",
			RequiredTools: []string{"oc_login"},
		},
		RootCause: "oc_get_pods was called without required setup: an authenticated session",
		PreventionSteps: []pattern.PreventionStep{
			{Kind: pattern.StepRunTool, Target: "oc_login"},
		},
		Observations: 12,
		Confidence:   confidence,
		FirstSeen:    testTime(),
		LastSeen:     testTime(),
	}
}

func wrongToolPattern(confidence float64, contextParams []string) *pattern.Pattern {
	return &pattern.Pattern{
		ID:       pattern.DeriveID("oc_get_pods", pattern.CategoryWrongToolSelection, "use oc_logs instead to fetch container output"),
		Tool:     "oc_get_pods",
		Category: pattern.CategoryWrongToolSelection,
		Shape: &pattern.WrongToolSelectionShape{
			SuggestedTool: "oc_logs",
			Reason:        "fetch container output",
			ContextParams: contextParams,
		},
		RootCause: "oc_get_pods does not fit this request; oc_logs does",
		PreventionSteps: []pattern.PreventionStep{
			{Kind: pattern.StepSwitchTool, Target: "oc_logs"},
		},
		Observations: 8,
		Confidence:   confidence,
		FirstSeen:    testTime(),
		LastSeen:     testTime(),
	}
}

func TestCheckWarnsOnKnownBadValue(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	p := addPattern(t, st, formatPattern(0.80, "short tag"))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.False(t, res.ShouldBlock)
	assert.Equal(t, []string{p.ID}, res.MatchedPatternIDs)

	w := res.Warnings[0]
	assert.Equal(t, p.ID, w.PatternID)
	assert.Equal(t, pattern.CategoryParameterFormat, w.Category)
	assert.Equal(t, 0.80, w.Confidence)
	assert.Contains(t, w.Message, "confidence 80%")
	assert.Contains(t, w.Message, "observed 45 times")
	assert.Contains(t, w.Message, "root cause: parameter \"image_tag\"")
	assert.Contains(t, w.Message, "1. validate image_tag")
}

func TestCheckBlocksAtHighConfidence(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, formatPattern(0.97, "short tag"))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.True(t, res.ShouldBlock)
}

func TestCheckIgnoresLowConfidence(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, formatPattern(0.60, "short tag"))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	assert.Empty(t, res.Warnings)
	assert.False(t, res.ShouldBlock)
}

func TestCheckMinConfidenceOverride(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, formatPattern(0.80, "short tag"))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:          "bonfire_deploy",
		Params:        map[string]any{"image_tag": "74ec56e"},
		MinConfidence: 0.90,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "raised threshold should exclude the pattern")

	res, err = checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1, "zero override should fall back to the default")
}

func TestCheckRegexCatchesNewBadValue(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, formatPattern(0.80, "short tag"))

	// Not in BadValues, but fails the 40-hex check.
	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "deadbeef"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)

	res, err = checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "74ec56e74ec56e74ec56e74ec56e74ec56e74ec5"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "a full sha should pass the check")
}

func TestCheckAbsentParameterDoesNotMatch(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, formatPattern(0.97, "short tag"))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"namespace": "ephemeral-abc123"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
}

func TestCheckIncorrectParameterNeverWarns(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, &pattern.Pattern{
		ID:       pattern.DeriveID("jira_update_issue", pattern.CategoryIncorrectParameter, "you are not the assignee"),
		Tool:     "jira_update_issue",
		Category: pattern.CategoryIncorrectParameter,
		Shape: &pattern.IncorrectParameterShape{
			Parameter: "issue_key",
			Reason:    "you are not the assignee",
			BadValues: []string{"PROJ-123"},
		},
		Observations: 20,
		Confidence:   0.97,
		FirstSeen:    testTime(),
		LastSeen:     testTime(),
	})

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "jira_update_issue",
		Params: map[string]any{"issue_key": "PROJ-123"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "ownership cannot be verified locally")
}

func TestCheckPrerequisiteUsesHistory(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, prereqPattern(0.80))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "oc_get_pods",
		Params: map[string]any{"namespace": "default"},
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0].Message, "1. run_tool oc_login")

	res, err = checker.CheckBeforeCall(context.Background(), Request{
		Tool:    "oc_get_pods",
		Params:  map[string]any{"namespace": "default"},
		History: []classify.CallRecord{{Tool: "oc_login", At: testTime(), Success: true}},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "satisfied prerequisite should not warn")
}

func TestCheckWrongToolContextOverlap(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, wrongToolPattern(0.80, []string{"namespace", "pod"}))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "oc_get_pods",
		Params: map[string]any{"pod": "api-0"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1, "overlapping context parameter should match")

	res, err = checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "oc_get_pods",
		Params: map[string]any{"selector": "app=api"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "disjoint parameters should not match")
}

func TestCheckWrongToolWithoutContextAlwaysMatches(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	addPattern(t, st, wrongToolPattern(0.80, nil))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "oc_get_pods",
		Params: map[string]any{"anything": "at all"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
}

func TestCheckSeesNewPatternsImmediately(t *testing.T) {
	checker, st := newTestChecker(t, Options{CacheTTL: time.Hour})

	req := Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "74ec56e"},
	}
	res, err := checker.CheckBeforeCall(context.Background(), req)
	require.NoError(t, err)
	require.Empty(t, res.Warnings)

	// The store mutation must invalidate the cached empty lookup.
	addPattern(t, st, formatPattern(0.80, "short tag"))

	res, err = checker.CheckBeforeCall(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)
}

func TestCheckMultipleMatchesOneBlocks(t *testing.T) {
	checker, st := newTestChecker(t, DefaultOptions())
	low := addPattern(t, st, formatPattern(0.80, "short tag"))
	high := addPattern(t, st, formatPattern(0.97, "uppercase tag"))

	res, err := checker.CheckBeforeCall(context.Background(), Request{
		Tool:   "bonfire_deploy",
		Params: map[string]any{"image_tag": "74ec56e"},
	})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 2)
	assert.True(t, res.ShouldBlock)
	// Higher confidence patterns come first.
	assert.Equal(t, []string{high.ID, low.ID}, res.MatchedPatternIDs)
}

func TestCheckResultCorrelation(t *testing.T) {
	checker, _ := newTestChecker(t, DefaultOptions())

	first, err := checker.CheckBeforeCall(context.Background(), Request{Tool: "bonfire_deploy"})
	require.NoError(t, err)
	second, err := checker.CheckBeforeCall(context.Background(), Request{Tool: "bonfire_deploy"})
	require.NoError(t, err)

	_, err = uuid.Parse(first.ID)
	assert.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "bonfire_deploy", first.Tool)
	assert.False(t, first.CheckedAt.IsZero())
}

func TestCheckCancelledContext(t *testing.T) {
	checker, _ := newTestChecker(t, DefaultOptions())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := checker.CheckBeforeCall(ctx, Request{Tool: "bonfire_deploy"})
	assert.ErrorIs(t, err, context.Canceled)
}
