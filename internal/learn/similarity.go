package learn

import (
	"github.com/agnivade/levenshtein"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

// Weights blends the four similarity components. They should sum to 1.
type Weights struct {
	// Tokens weighs Jaccard overlap of the shapes' signature tokens.
	Tokens float64

	// Parameter weighs the key-parameter name match.
	Parameter float64

	// RootCause weighs edit-distance similarity of the root causes.
	RootCause float64

	// Steps weighs the prevention-step count ratio.
	Steps float64
}

// DefaultWeights returns the standard component weights.
func DefaultWeights() Weights {
	return Weights{
		Tokens:    0.4,
		Parameter: 0.3,
		RootCause: 0.2,
		Steps:     0.1,
	}
}

// Similarity scores how alike two patterns of the same tool and category
// are, in [0, 1]. Callers compare the result against the merge threshold.
func Similarity(a, b *pattern.Pattern, w Weights) float64 {
	tokens := jaccard(a.Shape.SignatureTokens(), b.Shape.SignatureTokens())
	param := nameScore(a.Shape.KeyParameter(), b.Shape.KeyParameter())
	root := textScore(a.RootCause, b.RootCause)
	steps := countRatio(len(a.PreventionSteps), len(b.PreventionSteps))

	return w.Tokens*tokens + w.Parameter*param + w.RootCause*root + w.Steps*steps
}

// jaccard is |A∩B| / |A∪B|. Two empty sets count as identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	set := make(map[string]struct{}, len(a))
	for _, tok := range a {
		set[tok] = struct{}{}
	}
	union := len(set)
	inter := 0
	for _, tok := range b {
		if _, ok := set[tok]; ok {
			inter++
			delete(set, tok) // count duplicates in b once
			continue
		}
		union++
	}
	return float64(inter) / float64(union)
}

// nameScore compares parameter names: exact matches score 1, otherwise a
// normalized edit-distance similarity so near-misses like image_tag/tag
// still contribute.
func nameScore(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return textScore(a, b)
}

// textScore is 1 - editDistance/maxLen, with empty-string conventions
// matching jaccard's.
func textScore(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	return 1.0 - float64(dist)/float64(maxLen)
}

// countRatio is min/max of two counts. Two zeros count as identical.
func countRatio(a, b int) float64 {
	if a == 0 && b == 0 {
		return 1.0
	}
	if a == 0 || b == 0 {
		return 0.0
	}
	if a > b {
		a, b = b, a
	}
	return float64(a) / float64(b)
}
