package pattern

// ErrorCategory classifies the kind of usage mistake behind a failed tool
// call. Categories drive which mistake shape is recorded, which prevention
// steps are generated, and which pre-call matcher applies.
type ErrorCategory string

const (
	// CategoryIncorrectParameter covers parameters that reference resources
	// the caller does not own or control (wrong issue key, foreign namespace).
	CategoryIncorrectParameter ErrorCategory = "incorrect_parameter"

	// CategoryParameterFormat covers malformed parameter values: wrong
	// format, failed validation rule, or length violations.
	CategoryParameterFormat ErrorCategory = "parameter_format"

	// CategoryMissingPrerequisite covers calls that require a setup step
	// (login, reservation) which was never performed.
	CategoryMissingPrerequisite ErrorCategory = "missing_prerequisite"

	// CategoryWorkflowSequence covers calls made out of order relative to a
	// producer tool that must run first in the same session.
	CategoryWorkflowSequence ErrorCategory = "workflow_sequence"

	// CategoryWrongToolSelection covers calls where a different tool would
	// have served the task.
	CategoryWrongToolSelection ErrorCategory = "wrong_tool_selection"

	// CategoryMissingParameter is recognized by classification but is never
	// learnable: a missing required argument carries no reusable shape, the
	// tool's own error already names the fix.
	CategoryMissingParameter ErrorCategory = "missing_parameter"
)

// ValidCategories maps valid category strings to their typed values.
var ValidCategories = map[string]ErrorCategory{
	"incorrect_parameter":  CategoryIncorrectParameter,
	"parameter_format":     CategoryParameterFormat,
	"missing_prerequisite": CategoryMissingPrerequisite,
	"workflow_sequence":    CategoryWorkflowSequence,
	"wrong_tool_selection": CategoryWrongToolSelection,
	"missing_parameter":    CategoryMissingParameter,
}

// LearnableCategories holds the categories that may produce a stored Pattern.
var LearnableCategories = map[ErrorCategory]bool{
	CategoryIncorrectParameter:  true,
	CategoryParameterFormat:     true,
	CategoryMissingPrerequisite: true,
	CategoryWorkflowSequence:    true,
	CategoryWrongToolSelection:  true,
}

// IsValidCategory returns true if the string is a recognized category.
func IsValidCategory(s string) bool {
	_, ok := ValidCategories[s]
	return ok
}

// IsLearnable returns true if the category may produce a stored Pattern.
func IsLearnable(c ErrorCategory) bool {
	return LearnableCategories[c]
}

// ConfidenceBand buckets a confidence value for reporting.
type ConfidenceBand string

const (
	// BandLow covers [0.30, 0.60).
	BandLow ConfidenceBand = "low"

	// BandMedium covers [0.60, 0.75).
	BandMedium ConfidenceBand = "medium"

	// BandHigh covers [0.75, 0.90).
	BandHigh ConfidenceBand = "high"

	// BandVeryHigh covers [0.90, 0.99].
	BandVeryHigh ConfidenceBand = "very_high"
)

// BandFor returns the reporting band for a confidence value.
func BandFor(confidence float64) ConfidenceBand {
	switch {
	case confidence < 0.60:
		return BandLow
	case confidence < 0.75:
		return BandMedium
	case confidence < 0.90:
		return BandHigh
	default:
		return BandVeryHigh
	}
}
