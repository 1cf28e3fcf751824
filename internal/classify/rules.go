package classify

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/B-Whitt/redhat-ai-workflow-sub008/internal/pattern"
)

// usageRule pairs a match function with the category it detects and a fixed
// confidence. Rules are evaluated in order; the first match wins. Match
// functions may inspect parameters and call history, not just error text.
type usageRule struct {
	name       string
	category   pattern.ErrorCategory
	confidence float64
	match      func(in Input) (Evidence, bool)
}

// shaTagRule is the validation rule recorded for short image-tag mistakes.
const (
	shaTagRule  = "image tags must be the full 40-character commit sha"
	shaTagCheck = "^[0-9a-f]{40}$"
)

// tagParamNames are the parameter names that carry an image tag, checked in
// order.
var tagParamNames = []string{"image_tag", "tag", "image", "ref"}

// toolPrerequisites maps a tool to the producer tools that must run earlier
// in the same session. Used by the workflow-sequence rule against the
// recent-call window.
var toolPrerequisites = map[string][]string{
	"bonfire_deploy":   {"namespace_reserve"},
	"bonfire_process":  {"namespace_reserve"},
	"namespace_extend": {"namespace_reserve"},
	"oc_get_pods":      {"oc_login"},
	"oc_logs":          {"oc_login"},
	"oc_exec":          {"oc_login"},
	"jira_add_comment": {"jira_get_issue"},
	"pr_merge":         {"pr_checks"},
}

// buildUsageRules returns the ordered rule list. Priority is fixed:
// ownership/permission, missing required parameter, parameter format and
// length, missing prerequisite, sequence against call history, wrong tool.
func buildUsageRules() []*usageRule {
	ownershipRe := regexp.MustCompile(
		`(?i)\bnot\s+(?:the\s+)?owner\b|\bowned\s+by\s+(?:another|someone)\b|\bpermission\s+denied\b|` +
			`\bforbidden\b|\bnot\s+authorized\s+to\b|\baccess\s+denied\b|` +
			`\bcannot\s+(?:edit|modify|delete)\b|\bonly\s+the\s+(?:reporter|assignee|owner)\b`)

	missingParamRes := []*regexp.Regexp{
		regexp.MustCompile(`(?i)missing\s+required\s+(?:parameter|argument|field)s?(?:\s*:?\s*['"]?([A-Za-z0-9_.-]+)['"]?)?`),
		regexp.MustCompile(`(?i)(?:parameter|argument|field)\s+['"]?([A-Za-z0-9_.-]+)['"]?\s+is\s+required`),
		regexp.MustCompile(`(?i)required\s+(?:parameter|argument)\s+['"]?([A-Za-z0-9_.-]+)['"]?\s+(?:is\s+)?(?:missing|not\s+provided)`),
	}

	manifestRe := regexp.MustCompile(
		`(?i)manifest\s+unknown|manifest\s+(?:for|tagged\s+by)\s+\S+\s+(?:is\s+)?not\s+found|` +
			`invalid\s+(?:image\s+)?tag\b|tag\s+\S+\s+not\s+found`)
	invalidForRe := regexp.MustCompile(`(?i)invalid\s+(?:format|value)\s+(?:for|of)\s+['"]?([A-Za-z0-9_.-]+)['"]?`)
	malformedRe := regexp.MustCompile(`(?i)malformed\s+['"]?([A-Za-z0-9_.-]+)['"]?`)
	mustMatchRe := regexp.MustCompile(`(?i)['"]?([A-Za-z0-9_.-]+)['"]?\s+must\s+match\s+(\S+)`)
	lengthRe := regexp.MustCompile(
		`(?i)too\s+long|exceeds\s+(\d+)\s+characters?|must\s+be\s+at\s+most\s+(\d+)\s+characters?|` +
			`length\s+(?:must|may)\s+not\s+exceed\s+(\d+)`)

	type prereqPattern struct {
		re          *regexp.Regexp
		tools       []string
		description string
	}
	prereqPatterns := []prereqPattern{
		{
			re: regexp.MustCompile(
				`(?i)\bno\s+namespace\s+(?:is\s+)?reserved\b|\bnamespace\s+not\s+reserved\b|\breserve\s+a\s+namespace\s+first\b`),
			tools:       []string{"namespace_reserve"},
			description: "no namespace reserved for this session",
		},
		{
			re: regexp.MustCompile(
				`(?i)\bnot\s+logged\s+in\b|\blogin\s+required\b|\bmust\s+log\s*in\b|\bno\s+active\s+session\b|\bsession\s+expired\b`),
			tools:       []string{"oc_login"},
			description: "no authenticated session",
		},
	}
	mustRunRe := regexp.MustCompile(`(?i)\bmust\s+(?:first\s+)?(?:run|execute|call)\s+['"]?([A-Za-z0-9_.-]+)`)
	requiresRe := regexp.MustCompile(`(?i)\brequires?\s+['"]?([A-Za-z0-9_.-]+)['"]?\s+to\s+(?:be\s+)?(?:run|executed|reserved|completed)(?:\s+first)?\b`)

	sequenceRe := regexp.MustCompile(`(?i)\bnot\s+found\b|\bdoes\s+not\s+exist\b|\bno\s+such\s+\w+|\bunknown\s+(?:namespace|project|resource)\b`)

	useInsteadRe := regexp.MustCompile(`(?i)\buse\s+['"]?([A-Za-z0-9_.-]+)['"]?\s+instead\b`)
	didYouMeanRe := regexp.MustCompile(`(?i)\bdid\s+you\s+mean\s+['"]?([A-Za-z0-9_.-]+)`)
	wrongToolRe := regexp.MustCompile(`(?i)\bwrong\s+tool\b|\bnot\s+supported\s+by\s+this\s+(?:tool|command)\b`)

	return []*usageRule{
		// --- Ownership / permission (highest priority) ---
		{
			name:       "ownership",
			category:   pattern.CategoryIncorrectParameter,
			confidence: 0.85,
			match: func(in Input) (Evidence, bool) {
				m := ownershipRe.FindString(in.ErrorText)
				if m == "" {
					return nil, false
				}
				ev := Evidence{
					EvidenceReason:      strings.ToLower(m),
					EvidenceMatchedText: m,
				}
				if name, value, ok := guessIdentifierParam(in.Params); ok {
					ev[EvidenceParameter] = name
					ev[EvidenceValue] = value
				}
				return ev, true
			},
		},

		// --- Missing required parameter (recognized, never learnable) ---
		{
			name:       "missing-parameter",
			category:   pattern.CategoryMissingParameter,
			confidence: 0.90,
			match: func(in Input) (Evidence, bool) {
				for _, re := range missingParamRes {
					m := re.FindStringSubmatch(in.ErrorText)
					if m == nil {
						continue
					}
					ev := Evidence{EvidenceMatchedText: m[0]}
					if len(m) > 1 && m[1] != "" {
						ev[EvidenceParameter] = m[1]
					}
					return ev, true
				}
				return nil, false
			},
		},

		// --- Parameter format / length ---
		{
			name:       "image-tag-format",
			category:   pattern.CategoryParameterFormat,
			confidence: 0.95,
			match: func(in Input) (Evidence, bool) {
				m := manifestRe.FindString(in.ErrorText)
				if m == "" {
					return nil, false
				}
				name, value, ok := findParam(in.Params, tagParamNames...)
				if !ok {
					return nil, false
				}
				return Evidence{
					EvidenceParameter:   name,
					EvidenceValue:       value,
					EvidenceRule:        shaTagRule,
					EvidenceCheck:       shaTagCheck,
					EvidenceMatchedText: m,
				}, true
			},
		},
		{
			name:       "named-parameter-format",
			category:   pattern.CategoryParameterFormat,
			confidence: 0.95,
			match: func(in Input) (Evidence, bool) {
				for _, re := range []*regexp.Regexp{invalidForRe, malformedRe} {
					m := re.FindStringSubmatch(in.ErrorText)
					if m == nil {
						continue
					}
					ev := Evidence{
						EvidenceParameter:   m[1],
						EvidenceRule:        strings.ToLower(m[0]),
						EvidenceMatchedText: m[0],
					}
					if v, ok := in.Params[m[1]]; ok {
						ev[EvidenceValue] = paramString(v)
					}
					return ev, true
				}
				if m := mustMatchRe.FindStringSubmatch(in.ErrorText); m != nil {
					ev := Evidence{
						EvidenceParameter:   m[1],
						EvidenceRule:        strings.ToLower(m[0]),
						EvidenceMatchedText: m[0],
					}
					check := strings.Trim(m[2], `'"` + "`")
					if _, err := regexp.Compile(check); err == nil {
						ev[EvidenceCheck] = check
					}
					if v, ok := in.Params[m[1]]; ok {
						ev[EvidenceValue] = paramString(v)
					}
					return ev, true
				}
				return nil, false
			},
		},
		{
			name:       "value-length",
			category:   pattern.CategoryParameterFormat,
			confidence: 0.95,
			match: func(in Input) (Evidence, bool) {
				m := lengthRe.FindStringSubmatch(in.ErrorText)
				if m == nil {
					return nil, false
				}
				maxLen := 0
				for _, g := range m[1:] {
					if g != "" {
						maxLen, _ = strconv.Atoi(g)
						break
					}
				}
				name, value, ok := longestParam(in.Params, maxLen)
				if !ok {
					return nil, false
				}
				ev := Evidence{
					EvidenceParameter:   name,
					EvidenceValue:       value,
					EvidenceRule:        strings.ToLower(m[0]),
					EvidenceMatchedText: m[0],
				}
				if maxLen > 0 {
					ev[EvidenceMaxLength] = strconv.Itoa(maxLen)
				}
				return ev, true
			},
		},

		// --- Missing prerequisite ---
		{
			name:       "missing-prerequisite",
			category:   pattern.CategoryMissingPrerequisite,
			confidence: 0.80,
			match: func(in Input) (Evidence, bool) {
				for _, p := range prereqPatterns {
					m := p.re.FindString(in.ErrorText)
					if m == "" {
						continue
					}
					return Evidence{
						EvidenceRequiredTools: strings.Join(p.tools, ListSeparator),
						EvidenceDescription:   p.description,
						EvidenceMatchedText:   m,
					}, true
				}
				for _, re := range []*regexp.Regexp{mustRunRe, requiresRe} {
					m := re.FindStringSubmatch(in.ErrorText)
					if m == nil {
						continue
					}
					return Evidence{
						EvidenceRequiredTools: m[1],
						EvidenceDescription:   strings.ToLower(m[0]),
						EvidenceMatchedText:   m[0],
					}, true
				}
				return nil, false
			},
		},

		// --- Workflow sequence against the call window ---
		{
			name:       "workflow-sequence",
			category:   pattern.CategoryWorkflowSequence,
			confidence: 0.75,
			match: func(in Input) (Evidence, bool) {
				// Sequence evidence needs call context; without a window the
				// rule stays silent.
				if len(in.History) == 0 {
					return nil, false
				}
				prereqs := toolPrerequisites[in.Tool]
				if len(prereqs) == 0 {
					return nil, false
				}
				var missing []string
				for _, tool := range prereqs {
					if !historyContains(in.History, tool) {
						missing = append(missing, tool)
					}
				}
				if len(missing) == 0 {
					return nil, false
				}
				m := sequenceRe.FindString(in.ErrorText)
				if m == "" {
					return nil, false
				}
				return Evidence{
					EvidenceRequiredTools: strings.Join(missing, ListSeparator),
					EvidenceMatchedText:   m,
				}, true
			},
		},

		// --- Wrong tool selection ---
		{
			name:       "wrong-tool",
			category:   pattern.CategoryWrongToolSelection,
			confidence: 0.70,
			match: func(in Input) (Evidence, bool) {
				ev := Evidence{
					EvidenceContextParams: strings.Join(sortedParamKeys(in.Params), ListSeparator),
				}
				if m := useInsteadRe.FindStringSubmatch(in.ErrorText); m != nil {
					ev[EvidenceSuggestedTool] = m[1]
					ev[EvidenceReason] = strings.ToLower(m[0])
					ev[EvidenceMatchedText] = m[0]
					return ev, true
				}
				if m := didYouMeanRe.FindStringSubmatch(in.ErrorText); m != nil {
					ev[EvidenceSuggestedTool] = m[1]
					ev[EvidenceReason] = strings.ToLower(m[0])
					ev[EvidenceMatchedText] = m[0]
					return ev, true
				}
				if m := wrongToolRe.FindString(in.ErrorText); m != "" {
					ev[EvidenceReason] = strings.ToLower(m)
					ev[EvidenceMatchedText] = m
					return ev, true
				}
				return nil, false
			},
		},
	}
}

// longestParam locates the parameter whose value exceeds maxLen, or the one
// with the longest string value when no bound was reported.
func longestParam(params map[string]any, maxLen int) (string, string, bool) {
	var bestName, bestValue string
	for _, k := range sortedParamKeys(params) {
		v := paramString(params[k])
		if maxLen > 0 && len(v) > maxLen {
			return k, v, true
		}
		if len(v) > len(bestValue) {
			bestName, bestValue = k, v
		}
	}
	if maxLen > 0 {
		// A bound was reported but nothing exceeds it; the offending value
		// cannot be located.
		return "", "", false
	}
	if bestName == "" {
		return "", "", false
	}
	return bestName, bestValue, true
}
