// Package filter decides which feed items are seeded into the detector.
package filter

import (
	"fmt"
	"regexp"
	"strings"
)

// RegexPrefix marks a rule value as a regular expression.
const RegexPrefix = "re:"

// FeedItem is the text of a feed item that rules match against.
type FeedItem struct {
	Title       string
	Description string
}

type rule struct {
	word string
	re   *regexp.Regexp
}

func (r rule) matches(text string) bool {
	if r.re != nil {
		return r.re.MatchString(text)
	}
	return strings.Contains(text, r.word)
}

// Set is a compiled group of include and exclude rules. The zero value and
// a nil *Set match everything.
type Set struct {
	include []rule
	exclude []rule
}

// Compile builds a Set. Each value is a case-insensitive word or phrase, or
// a regular expression when prefixed with "re:".
func Compile(include, exclude []string) (*Set, error) {
	inc, err := compileRules(include)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exc, err := compileRules(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &Set{include: inc, exclude: exc}, nil
}

func compileRules(values []string) ([]rule, error) {
	var rules []rule
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if pattern, ok := strings.CutPrefix(v, RegexPrefix); ok {
			re, err := regexp.Compile("(?i)" + pattern)
			if err != nil {
				return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
			}
			rules = append(rules, rule{re: re})
			continue
		}
		rules = append(rules, rule{word: strings.ToLower(v)})
	}
	return rules, nil
}

// Match checks whether an item passes the set.
// Include rules use OR logic (at least one must match).
// Exclude rules use AND logic (none must match).
func (s *Set) Match(item FeedItem) bool {
	if s == nil {
		return true
	}
	text := strings.ToLower(item.Title + " " + item.Description)

	for _, r := range s.exclude {
		if r.matches(text) {
			return false
		}
	}
	if len(s.include) == 0 {
		return true
	}
	for _, r := range s.include {
		if r.matches(text) {
			return true
		}
	}
	return false
}

// Empty reports whether the set has no rules.
func (s *Set) Empty() bool {
	return s == nil || len(s.include)+len(s.exclude) == 0
}
