package store

import (
	"testing"

	"covmeter/internal/analyze"
	"covmeter/internal/numbits"
)

func rec(signature string, lines []int, arcs ...analyze.Arc) *Record {
	return &Record{Signature: signature, Lines: numbits.FromNums(lines), Arcs: arcs}
}

func TestAddMergesMonotonically(t *testing.T) {
	s := New("")
	if err := s.Add("a.go", "", rec("sig", []int{1, 2}, analyze.Arc{From: 1, To: 2})); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := s.Add("a.go", "", rec("sig", []int{2, 3}, analyze.Arc{From: 2, To: 3})); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	got, ok := s.Record("a.go", "")
	if !ok {
		t.Fatalf("expected record for a.go")
	}
	if lines := got.Lines.Nums(); len(lines) != 3 {
		t.Fatalf("expected union lines [1 2 3], got %v", lines)
	}
	if len(got.Arcs) != 2 {
		t.Fatalf("expected union arcs, got %v", got.Arcs)
	}
}

func TestAddRejectsSignatureMismatch(t *testing.T) {
	s := New("")
	if err := s.Add("a.go", "", rec("sig1", []int{1})); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := s.Add("a.go", "", rec("sig2", []int{2})); err == nil {
		t.Fatalf("expected signature mismatch error")
	}
	// The original measurement is untouched.
	got, _ := s.Record("a.go", "")
	if lines := got.Lines.Nums(); len(lines) != 1 || lines[0] != 1 {
		t.Fatalf("expected original record preserved, got %v", lines)
	}
}

func TestAddIsolatesContexts(t *testing.T) {
	s := New("run-7")
	_ = s.Add("a.go", "test:alpha", rec("", []int{1}))
	_ = s.Add("a.go", "test:beta", rec("", []int{2}))

	if contexts := s.Contexts("a.go"); len(contexts) != 2 {
		t.Fatalf("expected 2 contexts, got %v", contexts)
	}
	merged, ok := s.Merged("a.go")
	if !ok {
		t.Fatalf("expected all-contexts view")
	}
	if lines := merged.Lines.Nums(); len(lines) != 2 {
		t.Fatalf("expected merged lines [1 2], got %v", lines)
	}
	alpha, _ := s.Record("a.go", "test:alpha")
	if lines := alpha.Lines.Nums(); len(lines) != 1 || lines[0] != 1 {
		t.Fatalf("expected context-specific record intact, got %v", lines)
	}
}

func TestAliasFirstMatchWins(t *testing.T) {
	s := New("")
	s.Aliases = []AliasRule{
		{Pattern: "/tmp/build/", Replace: "/src/"},
		{Pattern: "/tmp/", Replace: "/elsewhere/"},
	}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "first rule wins", in: "/tmp/build/app.go", want: "/src/app.go"},
		{name: "second rule used when first misses", in: "/tmp/other/app.go", want: "/elsewhere/other/app.go"},
		{name: "unmatched passes through", in: "/home/app.go", want: "/home/app.go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Canonical(tt.in); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
