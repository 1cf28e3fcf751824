// Package classify turns a failed tool invocation into a usage-error verdict:
// whether the failure was caused by the caller, which mistake category it
// falls into, and the evidence the extractor needs to describe it.
package classify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

// maxErrorTextLength bounds the text handed to the rule regexes.
const maxErrorTextLength = 4096

// Evidence keys produced by classification rules and consumed verbatim by
// the extractor's shape builders.
const (
	EvidenceParameter     = "parameter"
	EvidenceValue         = "value"
	EvidenceRule          = "rule"
	EvidenceCheck         = "check"
	EvidenceMaxLength     = "max_length"
	EvidenceReason        = "reason"
	EvidenceDescription   = "description"
	EvidenceRequiredTools = "required_tools"
	EvidenceSuggestedTool = "suggested_tool"
	EvidenceContextParams = "context_params"
	EvidenceMatchedText   = "matched_text"
)

// ListSeparator joins multi-valued evidence entries (tool lists, parameter
// name lists) into a single evidence string.
const ListSeparator = ","

// Evidence carries rule findings to the extractor as flat key/value pairs.
type Evidence map[string]string

// CallRecord is one entry of the recent-call history window.
type CallRecord struct {
	// Tool is the invoked tool name.
	Tool string `json:"tool"`

	// At is when the call happened.
	At time.Time `json:"at"`

	// Success records whether the call succeeded.
	Success bool `json:"success"`
}

// Input is one failed tool invocation to classify.
type Input struct {
	// Tool is the invoked tool name.
	Tool string

	// Params maps parameter names to the values the call was made with.
	Params map[string]any

	// ErrorText is the raw error returned by the tool.
	ErrorText string

	// History is the bounded recent-call window, newest last. Optional;
	// rules that need call context stay silent without it.
	History []CallRecord
}

// Result is the classification verdict.
type Result struct {
	// IsUsageError is true when a rule attributed the failure to the caller.
	IsUsageError bool

	// Category is the mistake category of the matched rule.
	Category pattern.ErrorCategory

	// Confidence is the matched rule's fixed confidence (0.70-0.95).
	Confidence float64

	// Evidence holds the rule findings for the extractor.
	Evidence Evidence

	// Rule names the rule that fired, for logging.
	Rule string
}

// InfrastructureClassifier is the external delegate consulted before any
// usage rule runs. Infrastructure failures (VPN, auth outage, network) are
// handled elsewhere and never classified here.
type InfrastructureClassifier interface {
	IsInfrastructureError(tool, errorText string) bool
}

// Classifier is a stateless, ordered rule engine. Rules are evaluated in
// fixed priority; the first match wins with its fixed confidence. No rule
// matching means no verdict: classification is precision-biased and never
// guesses a category.
//
// Thread-safe: all rules are compiled at construction time and immutable.
type Classifier struct {
	infra InfrastructureClassifier
	rules []*usageRule
}

// NewClassifier creates a classifier with the built-in rule set. A nil
// delegate never reports an infrastructure error.
func NewClassifier(infra InfrastructureClassifier) *Classifier {
	return &Classifier{
		infra: infra,
		rules: buildUsageRules(),
	}
}

// Classify evaluates the ordered rules against one failed call. Pure
// function: no side effects, no I/O.
func (c *Classifier) Classify(in Input) Result {
	if len(in.ErrorText) > maxErrorTextLength {
		in.ErrorText = in.ErrorText[:maxErrorTextLength]
	}

	if c.infra != nil && c.infra.IsInfrastructureError(in.Tool, in.ErrorText) {
		return Result{}
	}

	for _, rule := range c.rules {
		if evidence, ok := rule.match(in); ok {
			return Result{
				IsUsageError: true,
				Category:     rule.category,
				Confidence:   rule.confidence,
				Evidence:     evidence,
				Rule:         rule.name,
			}
		}
	}

	return Result{}
}

// sortedParamKeys returns the call's parameter names in sorted order so
// evidence extraction is deterministic regardless of map iteration.
func sortedParamKeys(params map[string]any) []string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// paramString renders a parameter value for evidence and matching.
func paramString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// findParam returns the first of the candidate names present in params,
// with its rendered value.
func findParam(params map[string]any, candidates ...string) (string, string, bool) {
	for _, name := range candidates {
		if v, ok := params[name]; ok {
			return name, paramString(v), true
		}
	}
	return "", "", false
}

// identifierHints marks parameter names that look like resource identifiers,
// checked in order against each sorted key.
var identifierHints = []string{"issue", "key", "namespace", "project", "owner", "user", "id", "name"}

// guessIdentifierParam picks the parameter most likely to carry the
// offending resource identifier: the first sorted key containing an
// identifier hint, else the first sorted key.
func guessIdentifierParam(params map[string]any) (string, string, bool) {
	keys := sortedParamKeys(params)
	if len(keys) == 0 {
		return "", "", false
	}
	for _, hint := range identifierHints {
		for _, k := range keys {
			if strings.Contains(strings.ToLower(k), hint) {
				return k, paramString(params[k]), true
			}
		}
	}
	return keys[0], paramString(params[keys[0]]), true
}

// historyContains reports whether a tool appears in the history window.
func historyContains(history []CallRecord, tool string) bool {
	for _, rec := range history {
		if rec.Tool == tool {
			return true
		}
	}
	return false
}
