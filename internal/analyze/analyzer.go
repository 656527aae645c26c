// Package analyze derives the static structure of source units: which lines
// are executable, which lines a directive excludes, and which control-flow
// arcs a run could possibly take. Analysis is independent of any run; its
// output is joined against recorded execution at report time.
package analyze

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// Analyzer produces SourceUnits for one kind of source file. Implementations
// are registered with Register and dispatched by path.
type Analyzer interface {
	// Kind names the source kind, e.g. "go".
	Kind() string
	// Handles reports whether this analyzer understands the given path.
	Handles(path string) bool
	// Analyze builds the SourceUnit for one file's content. A failure is
	// scoped to that unit and reported as a *ParseError.
	Analyze(path string, content []byte) (*SourceUnit, error)
}

// ParseError reports that one source unit could not be analyzed. Other units
// are unaffected.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("analyze %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// GoAnalyzer analyzes Go source files.
type GoAnalyzer struct {
	matcher *ExcludeMatcher
}

// NewGoAnalyzer returns an analyzer for Go source. A nil matcher uses the
// default exclusion directive.
func NewGoAnalyzer(matcher *ExcludeMatcher) *GoAnalyzer {
	if matcher == nil {
		matcher, _ = NewExcludeMatcher()
	}
	return &GoAnalyzer{matcher: matcher}
}

func (a *GoAnalyzer) Kind() string { return "go" }

func (a *GoAnalyzer) Handles(path string) bool {
	return strings.HasSuffix(path, ".go")
}

func (a *GoAnalyzer) Analyze(path string, content []byte) (*SourceUnit, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, content, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	excluded := a.excludedLines(fset, file)

	g := &graph{fset: fset}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		buildFunc(g, fset.Position(fn.Pos()).Line, fn.Body)
	}

	for i := range g.nodes {
		if excluded[g.nodes[i].line] {
			g.nodes[i].excluded = true
		}
	}

	arcs := g.emitArcs()

	executable := make(map[int]bool)
	excludedStmts := make(map[int]bool)
	for _, n := range g.nodes {
		if n.line == SentinelLine {
			continue
		}
		if n.excluded {
			excludedStmts[n.line] = true
		} else {
			executable[n.line] = true
		}
	}

	return newSourceUnit(path, Sign(content), executable, excludedStmts, arcs, collectLineMap(fset, file)), nil
}

// excludedLines computes the full set of lines removed from measurement:
// lines carrying a directive comment, plus every line strictly inside a
// function or control-flow block whose opening line carries one.
func (a *GoAnalyzer) excludedLines(fset *token.FileSet, file *ast.File) map[int]bool {
	directive := make(map[int]bool)
	for _, group := range file.Comments {
		for _, c := range group.List {
			if a.matcher.Matches(c.Text) {
				directive[fset.Position(c.Pos()).Line] = true
			}
		}
	}
	if len(directive) == 0 {
		return directive
	}

	excluded := make(map[int]bool, len(directive))
	for line := range directive {
		excluded[line] = true
	}
	markSpan := func(n ast.Node) {
		start := fset.Position(n.Pos()).Line
		if !directive[start] {
			return
		}
		end := fset.Position(n.End()).Line
		for l := start; l <= end; l++ {
			excluded[l] = true
		}
	}
	ast.Inspect(file, func(n ast.Node) bool {
		switch n.(type) {
		case *ast.FuncDecl, *ast.FuncLit, *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt,
			*ast.SwitchStmt, *ast.TypeSwitchStmt, *ast.SelectStmt,
			*ast.CaseClause, *ast.CommClause:
			markSpan(n)
		}
		return true
	})
	return excluded
}

// collectLineMap records, for multi-line statements, which physical lines
// collapse to the statement's first line. Lines inside nested function
// literals keep their own identity.
func collectLineMap(fset *token.FileSet, file *ast.File) map[int]int {
	lineMap := make(map[int]int)
	addSpan := func(from, to token.Pos) {
		start := fset.Position(from).Line
		end := fset.Position(to).Line
		for l := start + 1; l <= end; l++ {
			lineMap[l] = start
		}
	}
	ast.Inspect(file, func(n ast.Node) bool {
		switch s := n.(type) {
		case *ast.ExprStmt, *ast.AssignStmt, *ast.ReturnStmt, *ast.DeclStmt,
			*ast.SendStmt, *ast.IncDecStmt, *ast.GoStmt, *ast.DeferStmt:
			if !containsFuncLit(s) {
				addSpan(s.Pos(), s.End())
			}
		case *ast.IfStmt:
			if !containsFuncLit(s.Cond) {
				addSpan(s.Pos(), s.Cond.End())
			}
		case *ast.ForStmt:
			end := s.Pos()
			if s.Cond != nil {
				end = s.Cond.End()
			}
			if s.Post != nil {
				end = s.Post.End()
			}
			if end != s.Pos() && !containsFuncLit(s.Cond) && !containsFuncLit(s.Post) {
				addSpan(s.Pos(), end)
			}
		case *ast.RangeStmt:
			if !containsFuncLit(s.X) {
				addSpan(s.Pos(), s.X.End())
			}
		case *ast.SwitchStmt:
			if s.Tag != nil && !containsFuncLit(s.Tag) {
				addSpan(s.Pos(), s.Tag.End())
			}
		case *ast.TypeSwitchStmt:
			addSpan(s.Pos(), s.Assign.End())
		}
		return true
	})
	return lineMap
}

func containsFuncLit(n ast.Node) bool {
	if n == nil {
		return false
	}
	found := false
	ast.Inspect(n, func(n ast.Node) bool {
		if _, ok := n.(*ast.FuncLit); ok {
			found = true
		}
		return !found
	})
	return found
}
