package analyze

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]Analyzer)
	mu       sync.RWMutex
)

// Register adds an analyzer for a source kind. Registering the same kind
// twice is a programming error.
func Register(a Analyzer) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[a.Kind()]; exists {
		panic(fmt.Sprintf("analyzer kind %s already registered", a.Kind()))
	}
	registry[a.Kind()] = a
}

// List returns all registered analyzers sorted by kind.
func List() []Analyzer {
	mu.RLock()
	defer mu.RUnlock()
	var out []Analyzer
	for _, a := range registry {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind() < out[j].Kind() })
	return out
}

// For resolves the analyzer handling the given path. When several kinds
// claim a path the lexically first kind wins, keeping dispatch deterministic.
func For(path string) (Analyzer, bool) {
	for _, a := range List() {
		if a.Handles(path) {
			return a, true
		}
	}
	return nil, false
}

func init() {
	Register(NewGoAnalyzer(nil))
}
