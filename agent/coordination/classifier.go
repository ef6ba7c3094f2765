package coordination

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultCapabilities is returned when no classifier rule matches a task.
var DefaultCapabilities = []string{"general_assistance", "task_coordination"}

// TaskClassifier derives required capability tags from a task description.
type TaskClassifier interface {
	Classify(task string) []string
}

// ClassifierKind selects a TaskClassifier implementation.
type ClassifierKind string

const (
	ClassifierKeyword ClassifierKind = "keyword"
	ClassifierRules   ClassifierKind = "rules"
)

// NewClassifier returns the default classifier of the given kind.
func NewClassifier(kind ClassifierKind) (TaskClassifier, error) {
	switch kind {
	case ClassifierKeyword, "":
		return NewKeywordClassifier(DefaultKeywordGroups()...), nil
	case ClassifierRules:
		return NewRuleClassifier(DefaultRules()...), nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", kind)
	}
}

// =============================================================================
// Keyword classifier
// =============================================================================

// KeywordGroup maps a keyword set to the capability tags it implies.
type KeywordGroup struct {
	Name     string   `json:"name" yaml:"name"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Tags     []string `json:"tags" yaml:"tags"`
}

// DefaultKeywordGroups returns the development, office/document and analysis groups.
func DefaultKeywordGroups() []KeywordGroup {
	return []KeywordGroup{
		{
			Name: "development",
			Keywords: []string{
				"code", "coding", "program", "debug", "develop", "software", "refactor",
				"bug", "compile", "function", "repository", "implement", "deploy",
			},
			Tags: []string{"code_analysis"},
		},
		{
			Name: "office",
			Keywords: []string{
				"document", "report", "spreadsheet", "presentation", "slide",
				"email", "memo", "letter", "docx", "pdf", "excel", "word",
			},
			Tags: []string{"document_processing"},
		},
		{
			Name: "analysis",
			Keywords: []string{
				"data", "dataset", "statistic", "metric", "trend", "chart",
				"insight", "research", "forecast",
			},
			Tags: []string{"data_analysis"},
		},
	}
}

// KeywordClassifier unions the tags of every group with a keyword present in
// the task. A keyword matches a word it prefixes, so "document" matches "documents".
type KeywordClassifier struct {
	groups []KeywordGroup
}

var _ TaskClassifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier creates a classifier over groups, evaluated in order.
func NewKeywordClassifier(groups ...KeywordGroup) *KeywordClassifier {
	return &KeywordClassifier{groups: groups}
}

// Classify implements TaskClassifier.
func (c *KeywordClassifier) Classify(task string) []string {
	words := tokenize(task)

	var tags tagSet
	for _, group := range c.groups {
		if matchesAny(words, group.Keywords) {
			tags.add(group.Tags...)
		}
	}
	return tags.orDefault()
}

func matchesAny(words, keywords []string) bool {
	for _, w := range words {
		for _, kw := range keywords {
			if strings.HasPrefix(w, kw) {
				return true
			}
		}
	}
	return false
}

// tokenize splits text into lowercase words, dropping stop words.
func tokenize(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})

	out := words[:0]
	for _, w := range words {
		if !stopWords[w] {
			out = append(out, w)
		}
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "were": true, "be": true,
	"to": true, "of": true, "in": true, "for": true, "on": true,
	"with": true, "as": true, "at": true, "by": true, "from": true,
	"this": true, "that": true, "it": true, "its": true,
}

// =============================================================================
// Rule classifier
// =============================================================================

// Rule tags a task when Pattern matches its lowercased description.
type Rule struct {
	Pattern *regexp.Regexp
	Tags    []string
}

// DefaultRules mirrors DefaultKeywordGroups with word-boundary patterns, so
// "codec" does not count as code.
func DefaultRules() []Rule {
	return []Rule{
		{
			Pattern: regexp.MustCompile(`\b(code|coding|programs?|programming|debug\w*|software|refactor\w*|bugs?|compiler?|functions?|repositor(y|ies))\b`),
			Tags:    []string{"code_analysis"},
		},
		{
			Pattern: regexp.MustCompile(`\b(documents?|reports?|spreadsheets?|presentations?|slides?|emails?|memos?|letters?|docx|pdf)\b`),
			Tags:    []string{"document_processing"},
		},
		{
			Pattern: regexp.MustCompile(`\b(data|datasets?|statistics?|metrics?|trends?|charts?|insights?|forecasts?)\b`),
			Tags:    []string{"data_analysis"},
		},
	}
}

// RuleClassifier unions the tags of every matching rule.
type RuleClassifier struct {
	rules []Rule
}

var _ TaskClassifier = (*RuleClassifier)(nil)

// NewRuleClassifier creates a classifier over rules, evaluated in order.
func NewRuleClassifier(rules ...Rule) *RuleClassifier {
	return &RuleClassifier{rules: rules}
}

// Classify implements TaskClassifier.
func (c *RuleClassifier) Classify(task string) []string {
	text := strings.ToLower(task)

	var tags tagSet
	for _, rule := range c.rules {
		if rule.Pattern.MatchString(text) {
			tags.add(rule.Tags...)
		}
	}
	return tags.orDefault()
}

// tagSet is an insertion-ordered set of tags.
type tagSet struct {
	order []string
	seen  map[string]bool
}

func (s *tagSet) add(tags ...string) {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || s.seen[tag] {
			continue
		}
		s.seen[tag] = true
		s.order = append(s.order, tag)
	}
}

func (s *tagSet) orDefault() []string {
	if len(s.order) == 0 {
		return append([]string(nil), DefaultCapabilities...)
	}
	return s.order
}
