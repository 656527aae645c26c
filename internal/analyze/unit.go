package analyze

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// SentinelLine marks unit entry (as an arc origin) and unit exit (as an arc
// target). It never appears in executable or executed line sets.
const SentinelLine = -1

// Arc is one control-flow transition between two source lines.
type Arc struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SourceUnit is the static structure of one source file: which lines can
// execute, which lines a directive excludes, and which line-to-line
// transitions a correct execution could take. Units are immutable after
// construction and cached keyed by (path, signature).
type SourceUnit struct {
	Path            string
	Signature       string
	ExecutableLines []int
	ExcludedLines   []int
	Arcs            []Arc

	// lineMap sends a continuation line of a multi-line statement to the
	// statement's first physical line. Lines absent from the map are their
	// own canonical line.
	lineMap map[int]int

	executable map[int]bool
	arcsFrom   map[int][]Arc
}

// Sign fingerprints source content. A changed signature invalidates any
// cached SourceUnit and any measurement record taken against the old content.
func Sign(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func newSourceUnit(path, signature string, executable, excluded map[int]bool, arcs map[Arc]bool, lineMap map[int]int) *SourceUnit {
	u := &SourceUnit{
		Path:       path,
		Signature:  signature,
		lineMap:    lineMap,
		executable: executable,
		arcsFrom:   make(map[int][]Arc),
	}
	for line := range executable {
		u.ExecutableLines = append(u.ExecutableLines, line)
	}
	sort.Ints(u.ExecutableLines)
	for line := range excluded {
		u.ExcludedLines = append(u.ExcludedLines, line)
	}
	sort.Ints(u.ExcludedLines)
	for arc := range arcs {
		u.Arcs = append(u.Arcs, arc)
		u.arcsFrom[arc.From] = append(u.arcsFrom[arc.From], arc)
	}
	sort.Slice(u.Arcs, func(i, j int) bool {
		if u.Arcs[i].From != u.Arcs[j].From {
			return u.Arcs[i].From < u.Arcs[j].From
		}
		return u.Arcs[i].To < u.Arcs[j].To
	})
	for _, from := range u.arcsFrom {
		sort.Slice(from, func(i, j int) bool { return from[i].To < from[j].To })
	}
	return u
}

// IsExecutable reports whether line holds a statement that can run on its own.
func (u *SourceUnit) IsExecutable(line int) bool {
	if u == nil {
		return false
	}
	return u.executable[line]
}

// CanonicalLine maps a raw recorded line to the representative line of the
// statement it belongs to. Continuation lines of a multi-line statement
// collapse to the statement's first physical line.
func (u *SourceUnit) CanonicalLine(raw int) int {
	if u == nil {
		return raw
	}
	if canon, ok := u.lineMap[raw]; ok {
		return canon
	}
	return raw
}

// ArcsFrom returns every possible arc originating at line, sorted by target.
// The returned slice must not be modified.
func (u *SourceUnit) ArcsFrom(line int) []Arc {
	if u == nil {
		return nil
	}
	return u.arcsFrom[line]
}

// BranchLines returns every line with more than one possible outgoing arc,
// sorted. These are the lines branch reporting cares about.
func (u *SourceUnit) BranchLines() []int {
	if u == nil {
		return nil
	}
	var lines []int
	for line, arcs := range u.arcsFrom {
		if line != SentinelLine && len(arcs) > 1 {
			lines = append(lines, line)
		}
	}
	sort.Ints(lines)
	return lines
}
