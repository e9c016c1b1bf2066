package rules

import (
	"fmt"
	"strings"
)

// Rule is a single literal replacement: every occurrence of Search becomes
// Replace. No pattern syntax; the strings are matched byte-for-byte.
type Rule struct {
	Search  string `yaml:"old" json:"search"`
	Replace string `yaml:"new" json:"replace"`
}

// Set is an ordered sequence of rules. Order matters when rules overlap:
// rules are applied sequentially, each over the output of the previous one,
// so a replacement that introduces a later rule's search text will itself be
// rewritten by that later rule.
type Set []Rule

func (s Set) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("at least one replacement rule is required")
	}
	for i, r := range s {
		if r.Search == "" {
			return fmt.Errorf("rule %d: search string must not be empty", i)
		}
	}
	return nil
}

// Apply runs every rule over content, left to right, and returns the final
// content plus a match count.
//
// The count is the summed occurrences of each rule's search string in the
// original content, not in the intermediate text a later rule sees, so it is
// stable under chained rules that feed each other. A rule whose Replace
// equals its Search contributes nothing (the content is unchanged, so it
// must not surface as a change downstream).
func (s Set) Apply(content string) (string, int) {
	original := content
	matches := 0
	for _, r := range s {
		if r.Search == "" || r.Search == r.Replace {
			continue
		}
		matches += strings.Count(original, r.Search)
		if !strings.Contains(content, r.Search) {
			continue
		}
		content = strings.ReplaceAll(content, r.Search, r.Replace)
	}
	return content, matches
}

// Matches reports whether any rule's search string occurs in content.
// Cheaper than Apply for the scanner's initial drop-or-keep decision.
func (s Set) Matches(content string) bool {
	for _, r := range s {
		if r.Search != "" && strings.Contains(content, r.Search) {
			return true
		}
	}
	return false
}
