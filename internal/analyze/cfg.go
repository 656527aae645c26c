package analyze

import (
	"go/ast"
	"go/token"

	"golang.org/x/tools/go/ast/astutil"
)

// graph is an arena of control-flow nodes. Nodes are addressed by index and
// edges are index pairs, so loops introduce no pointer cycles.
type graph struct {
	fset  *token.FileSet
	nodes []graphNode
}

type graphNode struct {
	line     int
	excluded bool
	succs    []int
}

func (g *graph) newNode(line int) int {
	g.nodes = append(g.nodes, graphNode{line: line})
	return len(g.nodes) - 1
}

func (g *graph) edge(from, to int) {
	for _, s := range g.nodes[from].succs {
		if s == to {
			return
		}
	}
	g.nodes[from].succs = append(g.nodes[from].succs, to)
}

func (g *graph) line(pos token.Pos) int {
	return g.fset.Position(pos).Line
}

// frontier is the set of nodes whose control flow continues at whatever
// statement comes next.
type frontier []int

// frame tracks one enclosing breakable construct while its body is walked.
// Loops additionally carry a continue target.
type frame struct {
	label  string
	isLoop bool
	head   int
	breaks frontier
}

type pendingGoto struct {
	node  int
	label string
}

// funcBuilder walks one function body and records its flow into the shared
// graph arena. Each function (and each function literal) gets its own entry
// and exit sentinel nodes.
type funcBuilder struct {
	g            *graph
	exit         int
	frames       []*frame
	labels       map[string]int
	gotos        []pendingGoto
	pendingLabel string
}

// buildFunc records the control flow of one function body rooted at
// declLine. Function literals nested in the body are built as their own
// units of flow with their own entry/exit sentinels.
func buildFunc(g *graph, declLine int, body *ast.BlockStmt) {
	if body == nil {
		return
	}
	b := &funcBuilder{
		g:      g,
		labels: make(map[string]int),
	}
	entry := g.newNode(SentinelLine)
	b.exit = g.newNode(SentinelLine)

	decl := g.newNode(declLine)
	g.edge(entry, decl)

	exits := b.walkStmts(body.List, frontier{decl})
	b.connect(exits, b.exit)

	for _, pg := range b.gotos {
		if target, ok := b.labels[pg.label]; ok {
			g.edge(pg.node, target)
		}
	}

	for _, lit := range nestedFuncLits(body) {
		buildFunc(g, g.line(lit.Pos()), lit.Body)
	}
}

// nestedFuncLits returns the function literals directly inside body, not
// descending into literals found (each builds its own flow recursively).
func nestedFuncLits(body *ast.BlockStmt) []*ast.FuncLit {
	var lits []*ast.FuncLit
	ast.Inspect(body, func(n ast.Node) bool {
		if lit, ok := n.(*ast.FuncLit); ok {
			lits = append(lits, lit)
			return false
		}
		return true
	})
	return lits
}

func (b *funcBuilder) connect(pred frontier, n int) {
	for _, p := range pred {
		b.g.edge(p, n)
	}
}

func (b *funcBuilder) takeLabel() string {
	l := b.pendingLabel
	b.pendingLabel = ""
	return l
}

func (b *funcBuilder) pushFrame(f *frame) {
	b.frames = append(b.frames, f)
}

func (b *funcBuilder) popFrame() *frame {
	f := b.frames[len(b.frames)-1]
	b.frames = b.frames[:len(b.frames)-1]
	return f
}

// findFrame locates the break or continue target. An empty label means the
// innermost applicable frame.
func (b *funcBuilder) findFrame(label string, needLoop bool) *frame {
	for i := len(b.frames) - 1; i >= 0; i-- {
		f := b.frames[i]
		if needLoop && !f.isLoop {
			continue
		}
		if label == "" || f.label == label {
			return f
		}
	}
	return nil
}

func (b *funcBuilder) walkStmts(list []ast.Stmt, pred frontier) frontier {
	for _, s := range list {
		pred = b.walkStmt(s, pred)
	}
	return pred
}

func (b *funcBuilder) walkStmt(s ast.Stmt, pred frontier) frontier {
	g := b.g
	switch s := s.(type) {
	case *ast.BlockStmt:
		return b.walkStmts(s.List, pred)

	case *ast.EmptyStmt:
		return pred

	case *ast.LabeledStmt:
		n := g.newNode(g.line(s.Pos()))
		b.connect(pred, n)
		b.labels[s.Label.Name] = n
		b.pendingLabel = s.Label.Name
		return b.walkStmt(s.Stmt, frontier{n})

	case *ast.ReturnStmt:
		n := g.newNode(g.line(s.Pos()))
		b.connect(pred, n)
		g.edge(n, b.exit)
		return nil

	case *ast.BranchStmt:
		n := g.newNode(g.line(s.Pos()))
		b.connect(pred, n)
		label := ""
		if s.Label != nil {
			label = s.Label.Name
		}
		switch s.Tok {
		case token.BREAK:
			if f := b.findFrame(label, false); f != nil {
				f.breaks = append(f.breaks, n)
			}
			return nil
		case token.CONTINUE:
			if f := b.findFrame(label, true); f != nil {
				g.edge(n, f.head)
			}
			return nil
		case token.GOTO:
			b.gotos = append(b.gotos, pendingGoto{node: n, label: label})
			return nil
		default: // fallthrough, wired up by the switch walker
			return frontier{n}
		}

	case *ast.IfStmt:
		b.takeLabel()
		n := g.newNode(g.line(s.Pos()))
		b.connect(pred, n)
		thenExits := b.walkStmts(s.Body.List, frontier{n})
		if s.Else != nil {
			elseExits := b.walkStmt(s.Else, frontier{n})
			return append(thenExits, elseExits...)
		}
		return append(thenExits, n)

	case *ast.ForStmt:
		head := g.newNode(g.line(s.Pos()))
		b.connect(pred, head)
		f := &frame{label: b.takeLabel(), isLoop: true, head: head}
		b.pushFrame(f)
		bodyExits := b.walkStmts(s.Body.List, frontier{head})
		b.connect(bodyExits, head)
		b.popFrame()

		exits := f.breaks
		if s.Cond != nil && !isConstTrue(s.Cond) {
			exits = append(exits, head)
		}
		// for {} and for true {} only leave through break.
		return exits

	case *ast.RangeStmt:
		head := g.newNode(g.line(s.Pos()))
		b.connect(pred, head)
		f := &frame{label: b.takeLabel(), isLoop: true, head: head}
		b.pushFrame(f)
		bodyExits := b.walkStmts(s.Body.List, frontier{head})
		b.connect(bodyExits, head)
		b.popFrame()
		return append(f.breaks, head)

	case *ast.SwitchStmt:
		return b.walkSwitch(s.Pos(), s.Body, false)

	case *ast.TypeSwitchStmt:
		return b.walkSwitch(s.Pos(), s.Body, false)

	case *ast.SelectStmt:
		return b.walkSwitch(s.Pos(), s.Body, true)

	default:
		// Plain statements: expressions, assignments, declarations, channel
		// sends, go/defer.
		n := g.newNode(g.line(s.Pos()))
		b.connect(pred, n)
		return frontier{n}
	}
}

// walkSwitch covers switch, type switch and select. The dispatching line
// gets one arc per clause; without a default clause control may also fall
// past the construct (a blocking select never falls past).
func (b *funcBuilder) walkSwitch(pos token.Pos, body *ast.BlockStmt, isSelect bool) frontier {
	g := b.g
	head := g.newNode(g.line(pos))
	f := &frame{label: b.takeLabel()}
	b.pushFrame(f)

	clauses := body.List
	clauseNodes := make([]int, len(clauses))
	for i, c := range clauses {
		clauseNodes[i] = g.newNode(g.line(c.Pos()))
	}

	var exits frontier
	hasDefault := false
	for i, c := range clauses {
		g.edge(head, clauseNodes[i])
		var stmts []ast.Stmt
		switch c := c.(type) {
		case *ast.CaseClause:
			if c.List == nil {
				hasDefault = true
			}
			stmts = c.Body
		case *ast.CommClause:
			if c.Comm == nil {
				hasDefault = true
			}
			stmts = c.Body
		}
		clauseExits := b.walkStmts(stmts, frontier{clauseNodes[i]})
		if fallsThrough(stmts) && i+1 < len(clauses) {
			b.connect(clauseExits, clauseNodes[i+1])
		} else {
			exits = append(exits, clauseExits...)
		}
	}
	b.popFrame()
	exits = append(exits, f.breaks...)

	switch {
	case isSelect:
		// A select blocks until a clause is ready; it never falls past.
	case !hasDefault:
		exits = append(exits, head)
	}
	return exits
}

func fallsThrough(stmts []ast.Stmt) bool {
	if len(stmts) == 0 {
		return false
	}
	br, ok := stmts[len(stmts)-1].(*ast.BranchStmt)
	return ok && br.Tok == token.FALLTHROUGH
}

func isConstTrue(cond ast.Expr) bool {
	id, ok := astutil.Unparen(cond).(*ast.Ident)
	return ok && id.Name == "true"
}

// emitArcs converts the graph into line-pair arcs, contracting excluded
// nodes: an excluded node's predecessors connect straight to its successors,
// so flow that merely passes through an excluded region keeps its arcs while
// arcs wholly inside the region disappear.
func (g *graph) emitArcs() map[Arc]bool {
	arcs := make(map[Arc]bool)
	for i := range g.nodes {
		n := &g.nodes[i]
		if n.excluded {
			continue
		}
		seen := make(map[int]bool)
		g.emitFrom(n.line, n.succs, seen, arcs)
	}
	return arcs
}

func (g *graph) emitFrom(fromLine int, succs []int, seen map[int]bool, arcs map[Arc]bool) {
	for _, si := range succs {
		if seen[si] {
			continue
		}
		seen[si] = true
		s := &g.nodes[si]
		if s.excluded {
			g.emitFrom(fromLine, s.succs, seen, arcs)
			continue
		}
		if fromLine == s.line {
			continue // intra-line flow collapses to one position
		}
		arcs[Arc{From: fromLine, To: s.line}] = true
	}
}
