package analyze

import (
	"fmt"
	"regexp"
)

// DefaultExcludePattern matches the directive recognized in Go comments.
// A comment containing "nocover" excludes the line it sits on; on a line
// that opens a function or control-flow block it excludes the whole block.
const DefaultExcludePattern = `(?i)\bnocover\b`

// ExcludeMatcher holds the precompiled directive patterns applied to comment
// text during analysis. The zero value matches nothing.
type ExcludeMatcher struct {
	patterns []*regexp.Regexp
}

// NewExcludeMatcher compiles the given patterns. With no patterns it falls
// back to DefaultExcludePattern.
func NewExcludeMatcher(patterns ...string) (*ExcludeMatcher, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultExcludePattern}
	}
	m := &ExcludeMatcher{}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// Matches reports whether comment text carries an exclusion directive.
func (m *ExcludeMatcher) Matches(comment string) bool {
	if m == nil {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(comment) {
			return true
		}
	}
	return false
}
