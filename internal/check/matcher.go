package check

import (
	"fmt"
	"regexp"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/classify"
	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

// Matches reports whether a stored pattern applies to an imminent call with
// the given parameters and recent call history. The tracker reuses it after
// the call to decide whether a warning was a false positive.
func Matches(p *pattern.Pattern, params map[string]any, history []classify.CallRecord) bool {
	switch shape := p.Shape.(type) {
	case *pattern.ParameterFormatShape:
		return matchParameterFormat(shape, params)
	case *pattern.IncorrectParameterShape:
		// Ownership cannot be verified without calling the remote system,
		// so these patterns never warn pre-call.
		return false
	case *pattern.MissingPrerequisiteShape:
		return missingAnyTool(shape.RequiredTools, history)
	case *pattern.WorkflowSequenceShape:
		return missingAnyTool(shape.RequiredTools, history)
	case *pattern.WrongToolSelectionShape:
		return matchWrongTool(shape, params)
	default:
		return false
	}
}

func matchParameterFormat(s *pattern.ParameterFormatShape, params map[string]any) bool {
	raw, ok := params[s.Parameter]
	if !ok {
		return false
	}
	value := valueString(raw)

	for _, bad := range s.BadValues {
		if value == bad {
			return true
		}
	}
	if s.Check != "" {
		re, err := regexp.Compile(s.Check)
		if err == nil && !re.MatchString(value) {
			return true
		}
	}
	if s.MaxLength > 0 && len(value) > s.MaxLength {
		return true
	}
	return false
}

// missingAnyTool reports whether any required tool is absent from the
// history window.
func missingAnyTool(required []string, history []classify.CallRecord) bool {
	if len(required) == 0 {
		return false
	}
	for _, tool := range required {
		if !historyHas(history, tool) {
			return true
		}
	}
	return false
}

func historyHas(history []classify.CallRecord, tool string) bool {
	for _, rec := range history {
		if rec.Tool == tool {
			return true
		}
	}
	return false
}

func matchWrongTool(s *pattern.WrongToolSelectionShape, params map[string]any) bool {
	// Without recorded context the mistake was about the tool itself, so
	// every call to it is suspect.
	if len(s.ContextParams) == 0 {
		return true
	}
	for _, name := range s.ContextParams {
		if _, ok := params[name]; ok {
			return true
		}
	}
	return false
}

func valueString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
