package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

func testPattern(t *testing.T, tool, errText string, confidence float64) *pattern.Pattern {
	t.Helper()
	seen := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)
	p := &pattern.Pattern{
		ID:       pattern.DeriveID(tool, pattern.CategoryParameterFormat, errText),
		Tool:     tool,
		Category: pattern.CategoryParameterFormat,
		Shape: &pattern.ParameterFormatShape{
			Parameter: "image_tag",
			Rule:      "image tags must be the full 40-character commit sha",
			Check:     "^[0-9a-f]{40}$",
			BadValues: []string{"74ec56e"},
		},
		RootCause: "parameter \"image_tag\" was given a malformed value",
		PreventionSteps: []pattern.PreventionStep{
			{Kind: pattern.StepValidate, Target: "image_tag", Rationale: "must be a full commit sha"},
		},
		Observations: 1,
		Confidence:   confidence,
		FirstSeen:    seen,
		LastSeen:     seen,
	}
	require.NoError(t, p.Validate())
	return p
}

func newTestStore(t *testing.T) *PatternStore {
	t.Helper()
	backend, err := NewDocumentBackend(filepath.Join(t.TempDir(), "patterns.json"), nil)
	require.NoError(t, err)
	s, err := NewPatternStore(context.Background(), backend, nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreAddGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	p := testPattern(t, "bonfire_deploy", "manifest unknown: manifest tagged by 74ec56e is not found", 0.50)

	require.NoError(t, s.Add(context.Background(), p))

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestStoreGetReturnsCopy(t *testing.T) {
	s := newTestStore(t)
	p := testPattern(t, "bonfire_deploy", "manifest unknown", 0.50)
	require.NoError(t, s.Add(context.Background(), p))

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	got.Confidence = 0.99
	got.Shape.(*pattern.ParameterFormatShape).BadValues[0] = "mutated"

	fresh, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.50, fresh.Confidence)
	assert.Equal(t, "74ec56e", fresh.Shape.(*pattern.ParameterFormatShape).BadValues[0])
}

func TestStoreAddDuplicate(t *testing.T) {
	s := newTestStore(t)
	p := testPattern(t, "bonfire_deploy", "manifest unknown", 0.50)

	require.NoError(t, s.Add(context.Background(), p))
	err := s.Add(context.Background(), p)
	assert.ErrorIs(t, err, ErrPatternExists)
}

func TestStoreUpdateAndDeleteRequirePresence(t *testing.T) {
	s := newTestStore(t)
	p := testPattern(t, "bonfire_deploy", "manifest unknown", 0.50)

	assert.ErrorIs(t, s.Update(context.Background(), p), ErrPatternNotFound)
	assert.ErrorIs(t, s.Delete(context.Background(), p.ID), ErrPatternNotFound)

	require.NoError(t, s.Add(context.Background(), p))
	p2 := p.Clone()
	p2.Confidence = 0.75
	require.NoError(t, s.Update(context.Background(), p2))

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.75, got.Confidence)

	require.NoError(t, s.Delete(context.Background(), p.ID))
	_, err = s.Get(p.ID)
	assert.ErrorIs(t, err, ErrPatternNotFound)
}

func TestStoreQueryFiltersAndSorts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	low := testPattern(t, "bonfire_deploy", "manifest unknown variant one", 0.55)
	high := testPattern(t, "bonfire_deploy", "manifest unknown variant two", 0.90)
	other := testPattern(t, "oc_logs", "manifest unknown variant three", 0.80)
	require.NoError(t, s.Add(ctx, low))
	require.NoError(t, s.Add(ctx, high))
	require.NoError(t, s.Add(ctx, other))

	got := s.Query("bonfire_deploy", pattern.CategoryParameterFormat)
	require.Len(t, got, 2)
	assert.Equal(t, high.ID, got[0].ID)
	assert.Equal(t, low.ID, got[1].ID)

	assert.Empty(t, s.Query("bonfire_deploy", pattern.CategoryWorkflowSequence))
}

func TestStoreListHighConfidence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, testPattern(t, "bonfire_deploy", "variant one", 0.55)))
	require.NoError(t, s.Add(ctx, testPattern(t, "bonfire_deploy", "variant two", 0.80)))
	require.NoError(t, s.Add(ctx, testPattern(t, "bonfire_deploy", "variant three", 0.95)))

	got := s.ListHighConfidence("bonfire_deploy", 0.75)
	require.Len(t, got, 2)
	assert.Equal(t, 0.95, got[0].Confidence)
	assert.Equal(t, 0.80, got[1].Confidence)
}

func TestStoreMutateRecomputesStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p1 := testPattern(t, "bonfire_deploy", "variant one", 0.50)
	p2 := testPattern(t, "bonfire_deploy", "variant two", 0.92)
	p2.Observations = 10
	p2.SuccessAfterPrevention = 5

	require.NoError(t, s.Mutate(ctx, func(doc *Document) error {
		doc.Put(p1)
		doc.Put(p2)
		return nil
	}))

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalPatterns)
	assert.Equal(t, 11, stats.TotalObservations)
	assert.Equal(t, 5, stats.PreventionSuccesses)
	assert.InDelta(t, 5.0/11.0, stats.PreventionSuccessRate, 1e-9)
	assert.Equal(t, 1, stats.ByBand[pattern.BandLow])
	assert.Equal(t, 1, stats.ByBand[pattern.BandVeryHigh])
}

// flakyBackend wraps a real backend and fails saves on demand.
type flakyBackend struct {
	inner     Backend
	failSaves bool
}

func (f *flakyBackend) Load(ctx context.Context) (*Document, error) { return f.inner.Load(ctx) }

func (f *flakyBackend) Save(ctx context.Context, doc *Document) error {
	if f.failSaves {
		return errors.New("disk full")
	}
	return f.inner.Save(ctx, doc)
}

func (f *flakyBackend) Close() error { return f.inner.Close() }

func TestStoreFailedSaveLeavesSnapshotUntouched(t *testing.T) {
	ctx := context.Background()
	inner, err := NewDocumentBackend(filepath.Join(t.TempDir(), "patterns.json"), nil)
	require.NoError(t, err)
	flaky := &flakyBackend{inner: inner}
	s, err := NewPatternStore(ctx, flaky, nil)
	require.NoError(t, err)
	defer s.Close()

	p := testPattern(t, "bonfire_deploy", "variant one", 0.50)
	require.NoError(t, s.Add(ctx, p))

	flaky.failSaves = true
	p2 := testPattern(t, "bonfire_deploy", "variant two", 0.60)
	err = s.Add(ctx, p2)
	require.Error(t, err)

	assert.Equal(t, 1, s.Count())
	_, err = s.Get(p2.ID)
	assert.ErrorIs(t, err, ErrPatternNotFound)

	// Memory and disk still agree once saves recover.
	flaky.failSaves = false
	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 1, s.Count())
}

func TestStoreMutateErrorDiscardsEdits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := testPattern(t, "bonfire_deploy", "variant one", 0.50)
	require.NoError(t, s.Add(ctx, p))

	boom := errors.New("merge failed")
	err := s.Mutate(ctx, func(doc *Document) error {
		doc.Delete(p.ID)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Get(p.ID)
	assert.NoError(t, err)
}

func TestStoreInvalidateHooks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fired := 0
	s.OnInvalidate(func() { fired++ })

	require.NoError(t, s.Add(ctx, testPattern(t, "bonfire_deploy", "variant one", 0.50)))
	assert.Equal(t, 1, fired)

	require.NoError(t, s.Reload(ctx))
	assert.Equal(t, 2, fired)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "patterns.json")

	backend, err := NewDocumentBackend(path, nil)
	require.NoError(t, err)
	s, err := NewPatternStore(ctx, backend, nil)
	require.NoError(t, err)

	p1 := testPattern(t, "bonfire_deploy", "variant one", 0.50)
	p2 := testPattern(t, "oc_logs", "variant two", 0.85)
	require.NoError(t, s.Add(ctx, p1))
	require.NoError(t, s.Add(ctx, p2))
	require.NoError(t, s.Close())

	backend2, err := NewDocumentBackend(path, nil)
	require.NoError(t, err)
	s2, err := NewPatternStore(ctx, backend2, nil)
	require.NoError(t, err)
	defer s2.Close()

	assert.Equal(t, 2, s2.Count())
	got1, err := s2.Get(p1.ID)
	require.NoError(t, err)
	assert.Equal(t, p1, got1)
	got2, err := s2.Get(p2.ID)
	require.NoError(t, err)
	assert.Equal(t, p2, got2)
}

func TestStoreClosedRejectsWrites(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.Add(context.Background(), testPattern(t, "bonfire_deploy", "variant one", 0.50))
	assert.ErrorIs(t, err, ErrStoreClosed)
}
