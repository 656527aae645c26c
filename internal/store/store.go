// Package store holds the persisted, mergeable representation of measured
// execution: per canonical path and context, the executed line and arc sets,
// plus path-alias rules and an optional store label. Executable lines are
// never persisted here; they are recomputed from source by the analyzer, so
// stores stay small and analyzer-version-independent.
package store

import (
	"fmt"
	"sort"

	"covmeter/internal/analyze"
	"covmeter/internal/numbits"
)

// Record is the finalized execution measurement for one (path, context)
// pair: which lines ran and, in arc mode, which transitions were taken.
type Record struct {
	Signature string
	Lines     numbits.NumBits
	Arcs      []analyze.Arc
}

// Merge unions other into r. Coverage is monotonic: merging never removes a
// line or arc.
func (r *Record) Merge(other *Record) {
	if other == nil {
		return
	}
	if r.Signature == "" {
		r.Signature = other.Signature
	}
	r.Lines = numbits.Union(r.Lines, other.Lines)
	seen := make(map[analyze.Arc]bool, len(r.Arcs))
	for _, a := range r.Arcs {
		seen[a] = true
	}
	for _, a := range other.Arcs {
		if !seen[a] {
			r.Arcs = append(r.Arcs, a)
		}
	}
	sortArcs(r.Arcs)
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{Signature: r.Signature}
	out.Lines = append(numbits.NumBits{}, r.Lines...)
	out.Arcs = append([]analyze.Arc{}, r.Arcs...)
	return out
}

// Equal reports whether two records measure the same execution.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	if r.Signature != other.Signature || len(r.Arcs) != len(other.Arcs) {
		return false
	}
	if !numbits.Equal(r.Lines, other.Lines) {
		return false
	}
	for i := range r.Arcs {
		if r.Arcs[i] != other.Arcs[i] {
			return false
		}
	}
	return true
}

func sortArcs(arcs []analyze.Arc) {
	sort.Slice(arcs, func(i, j int) bool {
		if arcs[i].From != arcs[j].From {
			return arcs[i].From < arcs[j].From
		}
		return arcs[i].To < arcs[j].To
	})
}

// Store maps canonical paths to per-context Records. Within one store each
// (path, context) pair has exactly one record.
type Store struct {
	Label   string
	Aliases []AliasRule

	records map[string]map[string]*Record
}

func New(label string) *Store {
	return &Store{
		Label:   label,
		records: make(map[string]map[string]*Record),
	}
}

// Add union-merges rec into the (path, context) record, creating it if
// absent. Disagreeing non-empty content signatures mean the measurements
// were taken against different content and cannot be soundly merged.
func (s *Store) Add(path, context string, rec *Record) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if path == "" {
		return fmt.Errorf("record path is empty")
	}
	if rec == nil {
		return nil
	}
	byContext, ok := s.records[path]
	if !ok {
		byContext = make(map[string]*Record)
		s.records[path] = byContext
	}
	existing, ok := byContext[context]
	if !ok {
		byContext[context] = rec.Clone()
		return nil
	}
	if existing.Signature != "" && rec.Signature != "" && existing.Signature != rec.Signature {
		return fmt.Errorf("signature mismatch for %s: %s vs %s", path, existing.Signature, rec.Signature)
	}
	existing.Merge(rec)
	return nil
}

// Record returns the record for one (path, context) pair.
func (s *Store) Record(path, context string) (*Record, bool) {
	if s == nil {
		return nil, false
	}
	rec, ok := s.records[path][context]
	return rec, ok
}

// Merged returns the union of every context's record for path: the implicit
// "all contexts" view.
func (s *Store) Merged(path string) (*Record, bool) {
	if s == nil {
		return nil, false
	}
	byContext, ok := s.records[path]
	if !ok || len(byContext) == 0 {
		return nil, false
	}
	out := &Record{}
	for _, context := range sortedKeys(byContext) {
		out.Merge(byContext[context])
	}
	return out, true
}

// Paths returns every measured path, sorted.
func (s *Store) Paths() []string {
	if s == nil {
		return nil
	}
	paths := make([]string, 0, len(s.records))
	for p := range s.records {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Contexts returns the context labels recorded for path, sorted.
func (s *Store) Contexts(path string) []string {
	if s == nil {
		return nil
	}
	return sortedKeys(s.records[path])
}

// Equal reports whether two stores hold the same measurements, aliases and
// label.
func (s *Store) Equal(other *Store) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.Label != other.Label || len(s.Aliases) != len(other.Aliases) {
		return false
	}
	for i := range s.Aliases {
		if s.Aliases[i] != other.Aliases[i] {
			return false
		}
	}
	paths := s.Paths()
	otherPaths := other.Paths()
	if len(paths) != len(otherPaths) {
		return false
	}
	for i, p := range paths {
		if otherPaths[i] != p {
			return false
		}
		contexts := s.Contexts(p)
		otherContexts := other.Contexts(p)
		if len(contexts) != len(otherContexts) {
			return false
		}
		for j, c := range contexts {
			if otherContexts[j] != c {
				return false
			}
			mine, _ := s.Record(p, c)
			theirs, _ := other.Record(p, c)
			if !mine.Equal(theirs) {
				return false
			}
		}
	}
	return true
}

func sortedKeys(m map[string]*Record) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
