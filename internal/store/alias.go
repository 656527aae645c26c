package store

import "strings"

// AliasRule rewrites a recorded path prefix to a canonical one, supporting
// measurement taken on one filesystem layout and combined on another.
type AliasRule struct {
	Pattern string `json:"pattern"`
	Replace string `json:"replace"`
}

func (r AliasRule) apply(path string) (string, bool) {
	if r.Pattern == "" || !strings.HasPrefix(path, r.Pattern) {
		return path, false
	}
	return r.Replace + path[len(r.Pattern):], true
}

// Canonical applies the store's alias rules to a recorded path. Rule
// application is deterministic: the first matching rule wins, and a path no
// rule matches passes through unchanged.
func (s *Store) Canonical(path string) string {
	if s == nil {
		return path
	}
	for _, rule := range s.Aliases {
		if rewritten, ok := rule.apply(path); ok {
			return rewritten
		}
	}
	return path
}
