package pattern

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Common errors for Pattern validation and decoding.
var (
	ErrEmptyID             = errors.New("pattern id cannot be empty")
	ErrEmptyTool           = errors.New("pattern tool cannot be empty")
	ErrNotLearnable        = errors.New("category is not learnable")
	ErrMissingShape        = errors.New("pattern has no mistake shape")
	ErrInvalidShape        = errors.New("invalid mistake shape")
	ErrShapeMismatch       = errors.New("mistake shape does not match category")
	ErrInvalidConfidence   = errors.New("confidence out of bounds")
	ErrInvalidObservations = errors.New("observations must be at least 1")
)

// StepKind identifies the kind of action a prevention step asks for.
type StepKind string

const (
	// StepValidate asks the caller to check a parameter against a rule
	// before making the call.
	StepValidate StepKind = "validate"

	// StepRunTool asks the caller to run a prerequisite tool first.
	StepRunTool StepKind = "run_tool"

	// StepVerify asks the caller to confirm a target exists or is owned
	// before making the call.
	StepVerify StepKind = "verify"

	// StepSwitchTool asks the caller to use a different tool for the task.
	StepSwitchTool StepKind = "switch_tool"
)

// PreventionStep is one structured action that avoids a recorded mistake.
// Steps are ordered and machine-readable; they are never free text.
type PreventionStep struct {
	// Kind is the action type.
	Kind StepKind `json:"kind"`

	// Target is what the action applies to: a parameter name, a tool name,
	// or a resource.
	Target string `json:"target"`

	// Rationale states why the step prevents the mistake.
	Rationale string `json:"rationale,omitempty"`
}

// Pattern is the persisted record of one recurring usage mistake: what went
// wrong (shape), why (root cause), how to avoid it (prevention steps), and
// how much weight it carries (confidence evolved from observations and
// prevention outcomes).
type Pattern struct {
	// ID is the deterministic identifier derived from the tool, the
	// category, and a normalized hash of the triggering error text. It is
	// never centrally allocated; the same mistake re-derives the same id.
	ID string `json:"id"`

	// Tool is the external operation this pattern applies to.
	Tool string `json:"tool"`

	// Category is the kind of usage mistake.
	Category ErrorCategory `json:"error_category"`

	// Shape is the category-specific structured payload.
	Shape Shape `json:"-"`

	// RootCause is a short explanation generated deterministically from the
	// shape.
	RootCause string `json:"root_cause"`

	// PreventionSteps are the ordered actions that avoid the mistake.
	PreventionSteps []PreventionStep `json:"prevention_steps"`

	// Observations counts merged occurrences. It only grows via merge and
	// never changes on decay or prune.
	Observations int `json:"observations"`

	// SuccessAfterPrevention counts warned calls that subsequently
	// succeeded through correction.
	SuccessAfterPrevention int `json:"success_after_prevention"`

	// Confidence is the derived score in [0.30, 0.99]. It is recomputed on
	// mutation; the prevention-failure penalty is the one direct adjustment.
	Confidence float64 `json:"confidence"`

	// FirstSeen is when the mistake was first observed.
	FirstSeen time.Time `json:"first_seen"`

	// LastSeen is when the mistake was most recently observed.
	LastSeen time.Time `json:"last_seen"`

	// DecayAppliedAt is when the last decay pass touched this pattern, used
	// to avoid double-decaying within one inactive period. Zero until the
	// first decay.
	DecayAppliedAt time.Time `json:"-"`
}

// Validate checks structural integrity of the pattern.
func (p *Pattern) Validate() error {
	if p.ID == "" {
		return ErrEmptyID
	}
	if p.Tool == "" {
		return ErrEmptyTool
	}
	if !IsLearnable(p.Category) {
		return fmt.Errorf("%w: %s", ErrNotLearnable, p.Category)
	}
	if p.Shape == nil {
		return ErrMissingShape
	}
	if p.Shape.Category() != p.Category {
		return fmt.Errorf("%w: shape %s, category %s", ErrShapeMismatch, p.Shape.Category(), p.Category)
	}
	if p.Confidence < ConfidenceFloor || p.Confidence > ConfidenceCeiling {
		return fmt.Errorf("%w: %.3f", ErrInvalidConfidence, p.Confidence)
	}
	if p.Observations < 1 {
		return ErrInvalidObservations
	}
	if p.SuccessAfterPrevention < 0 {
		return errors.New("success count cannot be negative")
	}
	return nil
}

// Clone returns a deep copy, including the shape and step slice.
func (p *Pattern) Clone() *Pattern {
	c := *p
	if p.Shape != nil {
		c.Shape = p.Shape.Clone()
	}
	c.PreventionSteps = append([]PreventionStep(nil), p.PreventionSteps...)
	return &c
}

// patternJSON is the persisted wire form of a Pattern. The shape travels as
// a kind-tagged envelope and the decay timestamp is omitted until set.
type patternJSON struct {
	ID                     string           `json:"id"`
	Tool                   string           `json:"tool"`
	Category               ErrorCategory    `json:"error_category"`
	Shape                  json.RawMessage  `json:"mistake_shape"`
	RootCause              string           `json:"root_cause"`
	PreventionSteps        []PreventionStep `json:"prevention_steps"`
	Observations           int              `json:"observations"`
	SuccessAfterPrevention int              `json:"success_after_prevention"`
	Confidence             float64          `json:"confidence"`
	FirstSeen              time.Time        `json:"first_seen"`
	LastSeen               time.Time        `json:"last_seen"`
	DecayAppliedAt         *time.Time       `json:"decay_applied_at,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Pattern) MarshalJSON() ([]byte, error) {
	shape, err := MarshalShape(p.Shape)
	if err != nil {
		return nil, fmt.Errorf("pattern %s: %w", p.ID, err)
	}
	out := patternJSON{
		ID:                     p.ID,
		Tool:                   p.Tool,
		Category:               p.Category,
		Shape:                  shape,
		RootCause:              p.RootCause,
		PreventionSteps:        p.PreventionSteps,
		Observations:           p.Observations,
		SuccessAfterPrevention: p.SuccessAfterPrevention,
		Confidence:             p.Confidence,
		FirstSeen:              p.FirstSeen,
		LastSeen:               p.LastSeen,
	}
	if !p.DecayAppliedAt.IsZero() {
		t := p.DecayAppliedAt
		out.DecayAppliedAt = &t
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pattern) UnmarshalJSON(data []byte) error {
	var in patternJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	shape, err := UnmarshalShape(in.Shape)
	if err != nil {
		return fmt.Errorf("pattern %s: %w", in.ID, err)
	}
	p.ID = in.ID
	p.Tool = in.Tool
	p.Category = in.Category
	p.Shape = shape
	p.RootCause = in.RootCause
	p.PreventionSteps = in.PreventionSteps
	p.Observations = in.Observations
	p.SuccessAfterPrevention = in.SuccessAfterPrevention
	p.Confidence = in.Confidence
	p.FirstSeen = in.FirstSeen
	p.LastSeen = in.LastSeen
	if in.DecayAppliedAt != nil {
		p.DecayAppliedAt = *in.DecayAppliedAt
	} else {
		p.DecayAppliedAt = time.Time{}
	}
	return nil
}
