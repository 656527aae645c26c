// Package report joins the analyzer's static view of a unit with the
// measured execution from a store and answers the query contract: given a
// path, what was executable, excluded, possible, executed and missed.
// Rendering and coverage-percentage policy live outside the core; this
// package only exposes the raw sets and their derived differences.
package report

import (
	"fmt"
	"sort"

	"covmeter/internal/analyze"
	"covmeter/internal/store"
)

// DriftError reports execution data that cannot belong to the analyzed
// content: a stale signature, or a recorded position the analyzer says
// cannot execute. Drift is surfaced, never silently ignored.
type DriftError struct {
	Path   string
	Reason string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("content drift for %s: %s", e.Path, e.Reason)
}

// BranchSummary describes one branching line: how many of its possible
// outgoing transitions were taken and which targets were never jumped to.
type BranchSummary struct {
	Line     int
	Taken    int
	Possible int
	Missing  []int
}

// Full reports that every possible outgoing arc was taken.
func (b BranchSummary) Full() bool { return b.Taken == b.Possible }

// Partial reports that some but not all outgoing arcs were taken. A line
// with no executed arcs is missing, not partial.
func (b BranchSummary) Partial() bool { return b.Taken > 0 && b.Taken < b.Possible }

// Summary answers the query contract for one path.
type Summary struct {
	Path            string
	ExecutableLines []int
	ExcludedLines   []int
	PossibleArcs    []analyze.Arc
	ExecutedLines   []int
	ExecutedArcs    []analyze.Arc
	MissingLines    []int
	MissingArcs     []analyze.Arc
	Branches        []BranchSummary
}

// Query reconciles one unit's execution record against its static
// structure. A nil record means the unit never executed: everything
// executable is missing. Raw recorded positions are collapsed to canonical
// lines here, never on the collection hot path.
func Query(unit *analyze.SourceUnit, rec *store.Record) (*Summary, error) {
	if unit == nil {
		return nil, fmt.Errorf("source unit is nil")
	}
	if rec != nil && rec.Signature != "" && rec.Signature != unit.Signature {
		return nil, &DriftError{Path: unit.Path, Reason: "record signature does not match analyzed content"}
	}

	s := &Summary{
		Path:            unit.Path,
		ExecutableLines: unit.ExecutableLines,
		ExcludedLines:   unit.ExcludedLines,
		PossibleArcs:    unit.Arcs,
	}

	excluded := make(map[int]bool, len(unit.ExcludedLines))
	for _, l := range unit.ExcludedLines {
		excluded[l] = true
	}

	executedLines := make(map[int]bool)
	executedArcs := make(map[analyze.Arc]bool)
	if rec != nil {
		for _, raw := range rec.Lines.Nums() {
			line := unit.CanonicalLine(raw)
			if excluded[line] {
				continue
			}
			if !unit.IsExecutable(line) {
				return nil, &DriftError{Path: unit.Path, Reason: fmt.Sprintf("line %d executed but not executable", line)}
			}
			executedLines[line] = true
		}
		possible := make(map[analyze.Arc]bool, len(unit.Arcs))
		for _, a := range unit.Arcs {
			possible[a] = true
		}
		for _, raw := range rec.Arcs {
			arc := analyze.Arc{
				From: canonicalEnd(unit, raw.From),
				To:   canonicalEnd(unit, raw.To),
			}
			if excluded[arc.From] || excluded[arc.To] {
				continue
			}
			if !possible[arc] {
				return nil, &DriftError{Path: unit.Path, Reason: fmt.Sprintf("arc (%d,%d) executed but not possible", arc.From, arc.To)}
			}
			executedArcs[arc] = true
		}
	}

	for line := range executedLines {
		s.ExecutedLines = append(s.ExecutedLines, line)
	}
	sort.Ints(s.ExecutedLines)
	for _, l := range unit.ExecutableLines {
		if !executedLines[l] {
			s.MissingLines = append(s.MissingLines, l)
		}
	}
	for _, a := range unit.Arcs {
		if executedArcs[a] {
			s.ExecutedArcs = append(s.ExecutedArcs, a)
		} else {
			s.MissingArcs = append(s.MissingArcs, a)
		}
	}

	for _, line := range unit.BranchLines() {
		b := BranchSummary{Line: line}
		for _, a := range unit.ArcsFrom(line) {
			b.Possible++
			if executedArcs[a] {
				b.Taken++
			} else {
				b.Missing = append(b.Missing, a.To)
			}
		}
		s.Branches = append(s.Branches, b)
	}
	return s, nil
}

func canonicalEnd(unit *analyze.SourceUnit, line int) int {
	if line == analyze.SentinelLine {
		return line
	}
	return unit.CanonicalLine(line)
}

// LineCounts returns executed and executable line totals for aggregate
// percentages, which are the caller's policy to compute.
func (s *Summary) LineCounts() (executed, executable int) {
	return len(s.ExecutedLines), len(s.ExecutableLines)
}

// ArcCounts returns executed and possible arc totals.
func (s *Summary) ArcCounts() (executed, possible int) {
	return len(s.ExecutedArcs), len(s.PossibleArcs)
}
