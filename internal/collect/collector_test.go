package collect

import (
	"fmt"
	"sync"
	"testing"

	"covmeter/internal/analyze"
)

type mapProvider map[string][]byte

func (p mapProvider) Load(path string) ([]byte, error) {
	content, ok := p[path]
	if !ok {
		return nil, fmt.Errorf("no such unit: %s", path)
	}
	return content, nil
}

func TestCollectLines(t *testing.T) {
	c := New(ModeLine)
	if err := c.Attach(); err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	c.HandleLine("a.go", 3)
	c.HandleLine("a.go", 4)
	c.HandleLine("a.go", 3)
	c.HandleLine("b.go", 10)

	s := c.Stop()
	rec, ok := s.Record("a.go", "")
	if !ok {
		t.Fatalf("expected a record for a.go")
	}
	if got := rec.Lines.Nums(); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("expected lines [3 4], got %v", got)
	}
	if len(rec.Arcs) != 0 {
		t.Fatalf("line mode must not record arcs, got %v", rec.Arcs)
	}
	if _, ok := s.Record("b.go", ""); !ok {
		t.Fatalf("expected a record for b.go")
	}
}

func TestCollectArcs(t *testing.T) {
	c := New(ModeArc)
	if err := c.Attach(); err != nil {
		t.Fatalf("Attach returned error: %v", err)
	}
	c.HandleArc("a.go", analyze.SentinelLine, 3)
	c.HandleArc("a.go", 3, 4)
	c.HandleArc("a.go", 3, 4) // repeated transitions stay one arc

	s := c.Stop()
	rec, ok := s.Record("a.go", "")
	if !ok {
		t.Fatalf("expected a record for a.go")
	}
	if got := rec.Lines.Nums(); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Fatalf("expected lines [3 4], got %v", got)
	}
	want := []analyze.Arc{{From: analyze.SentinelLine, To: 3}, {From: 3, To: 4}}
	if len(rec.Arcs) != len(want) {
		t.Fatalf("expected arcs %v, got %v", want, rec.Arcs)
	}
	for i := range want {
		if rec.Arcs[i] != want[i] {
			t.Fatalf("expected arcs %v, got %v", want, rec.Arcs)
		}
	}
}

func TestLineModeDropsArcs(t *testing.T) {
	c := New(ModeLine)
	_ = c.Attach()
	c.HandleArc("a.go", 3, 4)
	s := c.Stop()
	rec, _ := s.Record("a.go", "")
	if len(rec.Arcs) != 0 {
		t.Fatalf("expected no arcs in line mode, got %v", rec.Arcs)
	}
	if got := rec.Lines.Nums(); len(got) != 1 || got[0] != 4 {
		t.Fatalf("expected destination line kept, got %v", got)
	}
}

func TestPauseDropsEvents(t *testing.T) {
	c := New(ModeLine)
	_ = c.Attach()
	c.HandleLine("a.go", 1)
	c.Pause()
	c.HandleLine("a.go", 2)
	if err := c.Resume(); err != nil {
		t.Fatalf("Resume returned error: %v", err)
	}
	c.HandleLine("a.go", 3)

	rec, _ := c.Stop().Record("a.go", "")
	got := rec.Lines.Nums()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("expected lines [1 3] (paused event dropped), got %v", got)
	}
}

func TestStoppedCollectorRejectsEvents(t *testing.T) {
	c := New(ModeLine)
	_ = c.Attach()
	c.HandleLine("a.go", 1)
	c.Stop()
	c.HandleLine("a.go", 2)
	if err := c.Attach(); err == nil {
		t.Fatalf("expected Attach after Stop to fail")
	}
	rec, _ := c.Snapshot().Record("a.go", "")
	if got := rec.Lines.Nums(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected only pre-stop lines, got %v", got)
	}
}

func TestSwitchContext(t *testing.T) {
	c := New(ModeLine)
	_ = c.Attach()
	c.HandleLine("a.go", 1)
	c.SwitchContext("test:alpha")
	c.HandleLine("a.go", 2)
	c.SwitchContext("test:beta")
	c.HandleLine("a.go", 3)

	s := c.Stop()
	contexts := s.Contexts("a.go")
	if len(contexts) != 3 {
		t.Fatalf("expected 3 contexts, got %v", contexts)
	}
	for context, wantLine := range map[string]int{"": 1, "test:alpha": 2, "test:beta": 3} {
		rec, ok := s.Record("a.go", context)
		if !ok {
			t.Fatalf("expected record for context %q", context)
		}
		if got := rec.Lines.Nums(); len(got) != 1 || got[0] != wantLine {
			t.Fatalf("context %q: expected line %d, got %v", context, wantLine, got)
		}
	}

	merged, ok := s.Merged("a.go")
	if !ok {
		t.Fatalf("expected merged all-contexts view")
	}
	if got := merged.Lines.Nums(); len(got) != 3 {
		t.Fatalf("expected merged lines [1 2 3], got %v", got)
	}
}

func TestFirstEventSignsContent(t *testing.T) {
	content := []byte("package p\n")
	c := New(ModeLine, WithProvider(mapProvider{"a.go": content}))
	_ = c.Attach()
	c.HandleLine("a.go", 1)
	c.HandleLine("missing.go", 1)

	s := c.Stop()
	rec, _ := s.Record("a.go", "")
	if rec.Signature != analyze.Sign(content) {
		t.Fatalf("expected signature of provided content, got %q", rec.Signature)
	}
	rec, _ = s.Record("missing.go", "")
	if rec.Signature != "" {
		t.Fatalf("expected empty signature when content cannot be loaded, got %q", rec.Signature)
	}
}

func TestRefreshDiscardsChangedUnit(t *testing.T) {
	provider := mapProvider{"a.go": []byte("v1")}
	c := New(ModeLine, WithProvider(provider))
	_ = c.Attach()
	c.HandleLine("a.go", 1)

	changed, err := c.Refresh("a.go")
	if err != nil || changed {
		t.Fatalf("expected no change for identical content, got changed=%v err=%v", changed, err)
	}

	provider["a.go"] = []byte("v2")
	changed, err = c.Refresh("a.go")
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if !changed {
		t.Fatalf("expected Refresh to detect changed content")
	}
	c.HandleLine("a.go", 2)

	rec, _ := c.Stop().Record("a.go", "")
	if got := rec.Lines.Nums(); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected stale record discarded, got lines %v", got)
	}
	if rec.Signature != analyze.Sign([]byte("v2")) {
		t.Fatalf("expected record re-signed against new content")
	}
}

func TestConcurrentEvents(t *testing.T) {
	c := New(ModeArc)
	_ = c.Attach()

	const workers = 8
	const perWorker = 2000
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				line := 1 + (w*perWorker+i)%4096
				c.HandleLine("a.go", line)
				c.HandleArc("a.go", line, line+1)
			}
		}(w)
	}
	wg.Wait()

	rec, _ := c.Stop().Record("a.go", "")
	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			line := 1 + (w*perWorker+i)%4096
			if !rec.Lines.Contains(line) {
				t.Fatalf("lost line %d recorded by worker %d", line, w)
			}
		}
	}
	if len(rec.Arcs) == 0 {
		t.Fatalf("expected arcs recorded under concurrency")
	}
	if c.Faults() != 0 {
		t.Fatalf("expected no contained faults, got %d", c.Faults())
	}
}

func TestSnapshotDoesNotStop(t *testing.T) {
	c := New(ModeLine)
	_ = c.Attach()
	c.HandleLine("a.go", 1)

	first := c.Snapshot()
	c.HandleLine("a.go", 2)
	second := c.Snapshot()

	rec, _ := first.Record("a.go", "")
	if got := rec.Lines.Nums(); len(got) != 1 {
		t.Fatalf("expected first snapshot to hold one line, got %v", got)
	}
	rec, _ = second.Record("a.go", "")
	if got := rec.Lines.Nums(); len(got) != 2 {
		t.Fatalf("expected second snapshot to hold both lines, got %v", got)
	}
	if !c.Attached() {
		t.Fatalf("expected collector to stay attached across snapshots")
	}
}

func TestExecutedSubsetOfExecutable(t *testing.T) {
	src := `package p

func f(x bool) int {
	if x {
		return 1
	}
	return 2
}
`
	unit, err := analyze.NewGoAnalyzer(nil).Analyze("a.go", []byte(src))
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	c := New(ModeLine, WithProvider(mapProvider{"a.go": []byte(src)}))
	_ = c.Attach()
	for _, line := range []int{3, 4, 7} {
		c.HandleLine("a.go", line)
	}
	rec, _ := c.Stop().Record("a.go", "")

	if rec.Signature != unit.Signature {
		t.Fatalf("expected matching signatures")
	}
	for _, line := range rec.Lines.Nums() {
		if !unit.IsExecutable(line) {
			t.Fatalf("executed line %d is not in the executable set", line)
		}
	}
}
