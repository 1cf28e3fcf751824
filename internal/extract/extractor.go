// Package extract turns classifier verdicts into candidate patterns.
//
// A candidate starts at one observation with the initial confidence and
// carries a mistake shape rebuilt from the verdict's evidence. Candidates for
// recognized-but-unlearnable categories are refused with
// pattern.ErrNotLearnable so callers can log and move on.
package extract

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/classify"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

var (
	// ErrNoVerdict is returned when the classifier did not flag the call as
	// a usage error.
	ErrNoVerdict = errors.New("verdict is not a usage error")

	// ErrIncompleteEvidence is returned when a verdict's evidence lacks the
	// fields its category needs to build a shape.
	ErrIncompleteEvidence = errors.New("verdict evidence is incomplete")
)

// builderFunc assembles the shape, root cause, and prevention steps for one
// category from the classifier's evidence.
type builderFunc func(in classify.Input, verdict classify.Result) (pattern.Shape, string, []pattern.PreventionStep, error)

// Extractor builds candidate patterns from classified failures.
type Extractor struct {
	builders map[pattern.ErrorCategory]builderFunc
}

// NewExtractor creates an extractor with a builder per learnable category.
func NewExtractor() *Extractor {
	return &Extractor{
		builders: map[pattern.ErrorCategory]builderFunc{
			pattern.CategoryParameterFormat:     buildFormatPattern,
			pattern.CategoryIncorrectParameter:  buildIncorrectParameterPattern,
			pattern.CategoryMissingPrerequisite: buildPrerequisitePattern,
			pattern.CategoryWorkflowSequence:    buildSequencePattern,
			pattern.CategoryWrongToolSelection:  buildWrongToolPattern,
		},
	}
}

// Extract converts a usage-error verdict into a candidate pattern observed
// once at now. The candidate's id is derived from the tool, category, and
// normalized error text, so repeats of the same mistake land on the same id.
func (e *Extractor) Extract(in classify.Input, verdict classify.Result, now time.Time) (*pattern.Pattern, error) {
	if !verdict.IsUsageError {
		return nil, ErrNoVerdict
	}
	if !pattern.IsLearnable(verdict.Category) {
		return nil, fmt.Errorf("%w: %s", pattern.ErrNotLearnable, verdict.Category)
	}
	builder, ok := e.builders[verdict.Category]
	if !ok {
		return nil, fmt.Errorf("%w: %s", pattern.ErrNotLearnable, verdict.Category)
	}

	shape, rootCause, steps, err := builder(in, verdict)
	if err != nil {
		return nil, fmt.Errorf("build %s candidate: %w", verdict.Category, err)
	}

	now = now.UTC()
	p := &pattern.Pattern{
		ID:              pattern.DeriveID(in.Tool, verdict.Category, in.ErrorText),
		Tool:            in.Tool,
		Category:        verdict.Category,
		Shape:           shape,
		RootCause:       rootCause,
		PreventionSteps: steps,
		Observations:    1,
		Confidence:      pattern.InitialConfidence,
		FirstSeen:       now,
		LastSeen:        now,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("candidate for %s: %w", in.Tool, err)
	}
	return p, nil
}

func buildFormatPattern(in classify.Input, verdict classify.Result) (pattern.Shape, string, []pattern.PreventionStep, error) {
	ev := verdict.Evidence
	param := ev[classify.EvidenceParameter]
	if param == "" {
		return nil, "", nil, fmt.Errorf("%w: format verdict names no parameter", ErrIncompleteEvidence)
	}

	shape := &pattern.ParameterFormatShape{
		Parameter: param,
		Rule:      ev[classify.EvidenceRule],
		Check:     ev[classify.EvidenceCheck],
	}
	if s := ev[classify.EvidenceMaxLength]; s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			shape.MaxLength = n
		}
	}
	if v := ev[classify.EvidenceValue]; v != "" {
		shape.BadValues = []string{v}
	}

	rule := shape.Rule
	if rule == "" {
		rule = "value does not match the required format"
	}
	rootCause := fmt.Sprintf("parameter %q was given a malformed value: %s", param, rule)
	steps := []pattern.PreventionStep{
		{Kind: pattern.StepValidate, Target: param, Rationale: rule},
	}
	return shape, rootCause, steps, nil
}

func buildIncorrectParameterPattern(in classify.Input, verdict classify.Result) (pattern.Shape, string, []pattern.PreventionStep, error) {
	ev := verdict.Evidence
	param := ev[classify.EvidenceParameter]
	if param == "" {
		return nil, "", nil, fmt.Errorf("%w: ownership verdict names no parameter", ErrIncompleteEvidence)
	}

	reason := ev[classify.EvidenceReason]
	if reason == "" {
		reason = "resource is not controlled by the caller"
	}
	shape := &pattern.IncorrectParameterShape{
		Parameter: param,
		Reason:    reason,
	}
	if v := ev[classify.EvidenceValue]; v != "" {
		shape.BadValues = []string{v}
	}

	rootCause := fmt.Sprintf("parameter %q pointed at a resource the caller cannot act on: %s", param, reason)
	steps := []pattern.PreventionStep{
		{Kind: pattern.StepValidate, Target: param, Rationale: "confirm the " + param + " value refers to a resource the caller controls"},
	}
	return shape, rootCause, steps, nil
}

func buildPrerequisitePattern(in classify.Input, verdict classify.Result) (pattern.Shape, string, []pattern.PreventionStep, error) {
	ev := verdict.Evidence
	tools := splitList(ev[classify.EvidenceRequiredTools])
	if len(tools) == 0 {
		return nil, "", nil, fmt.Errorf("%w: prerequisite verdict names no tools", ErrIncompleteEvidence)
	}

	desc := ev[classify.EvidenceDescription]
	if desc == "" {
		desc = "required setup was missing"
	}
	shape := &pattern.MissingPrerequisiteShape{
		Description:   desc,
		RequiredTools: tools,
	}

	rootCause := fmt.Sprintf("%s was called without required setup: %s", in.Tool, desc)
	steps := make([]pattern.PreventionStep, 0, len(tools))
	for _, tool := range tools {
		steps = append(steps, pattern.PreventionStep{
			Kind:      pattern.StepRunTool,
			Target:    tool,
			Rationale: desc,
		})
	}
	return shape, rootCause, steps, nil
}

func buildSequencePattern(in classify.Input, verdict classify.Result) (pattern.Shape, string, []pattern.PreventionStep, error) {
	ev := verdict.Evidence
	tools := splitList(ev[classify.EvidenceRequiredTools])
	if len(tools) == 0 {
		return nil, "", nil, fmt.Errorf("%w: sequence verdict names no tools", ErrIncompleteEvidence)
	}

	shape := &pattern.WorkflowSequenceShape{RequiredTools: tools}
	rootCause := fmt.Sprintf("%s ran before its producer tools: %s", in.Tool, strings.Join(tools, ", "))
	steps := make([]pattern.PreventionStep, 0, len(tools))
	for _, tool := range tools {
		steps = append(steps, pattern.PreventionStep{
			Kind:      pattern.StepRunTool,
			Target:    tool,
			Rationale: "produces state consumed by " + in.Tool,
		})
	}
	return shape, rootCause, steps, nil
}

func buildWrongToolPattern(in classify.Input, verdict classify.Result) (pattern.Shape, string, []pattern.PreventionStep, error) {
	ev := verdict.Evidence
	suggested := ev[classify.EvidenceSuggestedTool]
	reason := ev[classify.EvidenceReason]
	if suggested == "" && reason == "" {
		return nil, "", nil, fmt.Errorf("%w: wrong-tool verdict carries no suggestion or reason", ErrIncompleteEvidence)
	}

	shape := &pattern.WrongToolSelectionShape{
		SuggestedTool: suggested,
		Reason:        reason,
		ContextParams: splitList(ev[classify.EvidenceContextParams]),
	}

	var rootCause string
	var steps []pattern.PreventionStep
	if suggested != "" {
		rootCause = fmt.Sprintf("%s does not fit this request; %s does", in.Tool, suggested)
		rationale := reason
		if rationale == "" {
			rationale = "the error named " + suggested + " as the right tool"
		}
		steps = []pattern.PreventionStep{
			{Kind: pattern.StepSwitchTool, Target: suggested, Rationale: rationale},
		}
	} else {
		rootCause = fmt.Sprintf("%s does not fit this request: %s", in.Tool, reason)
		steps = []pattern.PreventionStep{
			{Kind: pattern.StepVerify, Target: in.Tool, Rationale: "confirm this tool covers the request before calling it"},
		}
	}
	return shape, rootCause, steps, nil
}

// splitList splits evidence list values and drops empty entries.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, classify.ListSeparator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
