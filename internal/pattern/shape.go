package pattern

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Shape is the category-specific payload of a Pattern. Exactly one concrete
// shape type exists per learnable category, so adding a category means adding
// one type here plus its builder and matcher.
type Shape interface {
	// Category returns the error category this shape describes.
	Category() ErrorCategory

	// KeyParameter returns the parameter (or tool) name the shape pivots on,
	// used for fuzzy matching during merge scoring. Empty when the shape has
	// no single pivot.
	KeyParameter() string

	// SignatureTokens returns the lowercase token set characterizing the
	// shape, used for Jaccard overlap during merge scoring.
	SignatureTokens() []string

	// Merge folds another shape of the same concrete type into a new shape,
	// unioning and deduplicating observed-value lists. A mismatched type
	// yields an unchanged clone.
	Merge(other Shape) Shape

	// Clone returns a deep copy.
	Clone() Shape
}

// ParameterFormatShape records a malformed-value mistake: the parameter, the
// violated rule, and the bad values seen so far.
type ParameterFormatShape struct {
	// Parameter is the name of the offending call parameter.
	Parameter string `json:"parameter"`

	// Rule is the human-readable validation rule the value violated.
	Rule string `json:"rule"`

	// Check is an optional regular expression a valid value must match,
	// verifiable before the next call.
	Check string `json:"check,omitempty"`

	// MaxLength is an optional upper bound on value length (0 = unset).
	MaxLength int `json:"max_length,omitempty"`

	// BadValues lists observed values that triggered the mistake.
	BadValues []string `json:"bad_values,omitempty"`
}

func (s *ParameterFormatShape) Category() ErrorCategory { return CategoryParameterFormat }
func (s *ParameterFormatShape) KeyParameter() string    { return s.Parameter }

func (s *ParameterFormatShape) SignatureTokens() []string {
	return tokenize(s.Rule, s.Check, strings.Join(s.BadValues, " "))
}

func (s *ParameterFormatShape) Merge(other Shape) Shape {
	merged := *s
	merged.BadValues = append([]string(nil), s.BadValues...)
	if o, ok := other.(*ParameterFormatShape); ok {
		merged.BadValues = unionStrings(merged.BadValues, o.BadValues)
	}
	return &merged
}

func (s *ParameterFormatShape) Clone() Shape {
	c := *s
	c.BadValues = append([]string(nil), s.BadValues...)
	return &c
}

// IncorrectParameterShape records a parameter referencing a resource the
// caller does not own or control.
type IncorrectParameterShape struct {
	// Parameter is the name of the offending call parameter.
	Parameter string `json:"parameter"`

	// Reason is the ownership or permission condition that was violated.
	Reason string `json:"reason"`

	// BadValues lists observed values that triggered the mistake.
	BadValues []string `json:"bad_values,omitempty"`
}

func (s *IncorrectParameterShape) Category() ErrorCategory { return CategoryIncorrectParameter }
func (s *IncorrectParameterShape) KeyParameter() string    { return s.Parameter }

func (s *IncorrectParameterShape) SignatureTokens() []string {
	return tokenize(s.Reason, strings.Join(s.BadValues, " "))
}

func (s *IncorrectParameterShape) Merge(other Shape) Shape {
	merged := *s
	merged.BadValues = append([]string(nil), s.BadValues...)
	if o, ok := other.(*IncorrectParameterShape); ok {
		merged.BadValues = unionStrings(merged.BadValues, o.BadValues)
	}
	return &merged
}

func (s *IncorrectParameterShape) Clone() Shape {
	c := *s
	c.BadValues = append([]string(nil), s.BadValues...)
	return &c
}

// MissingPrerequisiteShape records a call that requires a setup step which
// had not been performed.
type MissingPrerequisiteShape struct {
	// Description states the missing prerequisite in plain words.
	Description string `json:"description"`

	// RequiredTools names the tools that satisfy the prerequisite when run
	// before this call.
	RequiredTools []string `json:"required_tools,omitempty"`
}

func (s *MissingPrerequisiteShape) Category() ErrorCategory { return CategoryMissingPrerequisite }

func (s *MissingPrerequisiteShape) KeyParameter() string {
	if len(s.RequiredTools) > 0 {
		return s.RequiredTools[0]
	}
	return ""
}

func (s *MissingPrerequisiteShape) SignatureTokens() []string {
	return tokenize(s.Description, strings.Join(s.RequiredTools, " "))
}

func (s *MissingPrerequisiteShape) Merge(other Shape) Shape {
	merged := *s
	merged.RequiredTools = append([]string(nil), s.RequiredTools...)
	if o, ok := other.(*MissingPrerequisiteShape); ok {
		merged.RequiredTools = unionStrings(merged.RequiredTools, o.RequiredTools)
	}
	return &merged
}

func (s *MissingPrerequisiteShape) Clone() Shape {
	c := *s
	c.RequiredTools = append([]string(nil), s.RequiredTools...)
	return &c
}

// WorkflowSequenceShape records a call made before its producer tool ran.
type WorkflowSequenceShape struct {
	// RequiredTools names the tools that must appear earlier in the session.
	RequiredTools []string `json:"required_tools"`
}

func (s *WorkflowSequenceShape) Category() ErrorCategory { return CategoryWorkflowSequence }

func (s *WorkflowSequenceShape) KeyParameter() string {
	if len(s.RequiredTools) > 0 {
		return s.RequiredTools[0]
	}
	return ""
}

func (s *WorkflowSequenceShape) SignatureTokens() []string {
	return tokenize(strings.Join(s.RequiredTools, " "))
}

func (s *WorkflowSequenceShape) Merge(other Shape) Shape {
	merged := *s
	merged.RequiredTools = append([]string(nil), s.RequiredTools...)
	if o, ok := other.(*WorkflowSequenceShape); ok {
		merged.RequiredTools = unionStrings(merged.RequiredTools, o.RequiredTools)
	}
	return &merged
}

func (s *WorkflowSequenceShape) Clone() Shape {
	c := *s
	c.RequiredTools = append([]string(nil), s.RequiredTools...)
	return &c
}

// WrongToolSelectionShape records a call better served by a different tool.
type WrongToolSelectionShape struct {
	// SuggestedTool is the tool the error text (or precedence knowledge)
	// pointed to instead.
	SuggestedTool string `json:"suggested_tool"`

	// Reason states why the called tool was the wrong choice.
	Reason string `json:"reason,omitempty"`

	// ContextParams names the call parameters that were present when the
	// mistake occurred, used to scope pre-call matching.
	ContextParams []string `json:"context_params,omitempty"`
}

func (s *WrongToolSelectionShape) Category() ErrorCategory { return CategoryWrongToolSelection }
func (s *WrongToolSelectionShape) KeyParameter() string    { return s.SuggestedTool }

func (s *WrongToolSelectionShape) SignatureTokens() []string {
	return tokenize(s.SuggestedTool, s.Reason, strings.Join(s.ContextParams, " "))
}

func (s *WrongToolSelectionShape) Merge(other Shape) Shape {
	merged := *s
	merged.ContextParams = append([]string(nil), s.ContextParams...)
	if o, ok := other.(*WrongToolSelectionShape); ok {
		merged.ContextParams = unionStrings(merged.ContextParams, o.ContextParams)
	}
	return &merged
}

func (s *WrongToolSelectionShape) Clone() Shape {
	c := *s
	c.ContextParams = append([]string(nil), s.ContextParams...)
	return &c
}

// shapeEnvelope is the persisted form of a Shape: a kind discriminator (the
// category string) plus the concrete payload.
type shapeEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalShape encodes a shape into its persisted envelope form.
func MarshalShape(s Shape) (json.RawMessage, error) {
	if s == nil {
		return nil, ErrMissingShape
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling shape data: %w", err)
	}
	raw, err := json.Marshal(shapeEnvelope{Kind: string(s.Category()), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshaling shape envelope: %w", err)
	}
	return raw, nil
}

// UnmarshalShape decodes a persisted envelope into its concrete shape type.
// An unknown kind is a corrupt-document condition, not a silent default.
func UnmarshalShape(raw json.RawMessage) (Shape, error) {
	var env shapeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling shape envelope: %w", err)
	}

	var s Shape
	switch ErrorCategory(env.Kind) {
	case CategoryParameterFormat:
		s = &ParameterFormatShape{}
	case CategoryIncorrectParameter:
		s = &IncorrectParameterShape{}
	case CategoryMissingPrerequisite:
		s = &MissingPrerequisiteShape{}
	case CategoryWorkflowSequence:
		s = &WorkflowSequenceShape{}
	case CategoryWrongToolSelection:
		s = &WrongToolSelectionShape{}
	default:
		return nil, fmt.Errorf("%w: unknown shape kind %q", ErrInvalidShape, env.Kind)
	}
	if err := json.Unmarshal(env.Data, s); err != nil {
		return nil, fmt.Errorf("unmarshaling %s shape: %w", env.Kind, err)
	}
	return s, nil
}

var tokenSplitRe = regexp.MustCompile(`[^a-z0-9]+`)

// tokenize lowercases the inputs, splits on non-alphanumeric runs, and
// returns the deduplicated tokens in first-seen order.
func tokenize(parts ...string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, part := range parts {
		for _, tok := range tokenSplitRe.Split(strings.ToLower(part), -1) {
			if tok == "" || seen[tok] {
				continue
			}
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// unionStrings appends the members of b not already present in a, preserving
// order of first appearance.
func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	out := a
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
