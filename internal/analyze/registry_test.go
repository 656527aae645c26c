package analyze

import (
	"strings"
	"sync"
	"testing"
)

// fakeAnalyzer is a second registered unit kind, exercising the dispatch
// table the way an alternate source kind would plug in.
type fakeAnalyzer struct{}

func (fakeAnalyzer) Kind() string { return "fake" }

func (fakeAnalyzer) Handles(path string) bool { return strings.HasSuffix(path, ".fake") }

func (fakeAnalyzer) Analyze(path string, content []byte) (*SourceUnit, error) {
	executable := map[int]bool{1: true}
	return newSourceUnit(path, Sign(content), executable, nil, map[Arc]bool{
		{From: SentinelLine, To: 1}: true,
		{From: 1, To: SentinelLine}: true,
	}, nil), nil
}

var registerFakeOnce sync.Once

func registerFake() {
	registerFakeOnce.Do(func() { Register(fakeAnalyzer{}) })
}

func TestRegistryDispatch(t *testing.T) {
	registerFake()

	tests := []struct {
		name     string
		path     string
		wantKind string
		wantOK   bool
	}{
		{name: "go file", path: "a.go", wantKind: "go", wantOK: true},
		{name: "fake kind", path: "a.fake", wantKind: "fake", wantOK: true},
		{name: "unknown kind", path: "a.unknown", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, ok := For(tt.path)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if ok && a.Kind() != tt.wantKind {
				t.Fatalf("expected kind %q, got %q", tt.wantKind, a.Kind())
			}
		})
	}
}

func TestRegisterRejectsDuplicateKind(t *testing.T) {
	registerFake()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate kind registration")
		}
	}()
	Register(fakeAnalyzer{})
}

func TestCacheReturnsSameUnitForSameContent(t *testing.T) {
	c := NewCache()
	content := []byte("package p\n\nfunc f() {\n}\n")

	first, err := c.Unit("a.go", content)
	if err != nil {
		t.Fatalf("Unit returned error: %v", err)
	}
	second, err := c.Unit("a.go", content)
	if err != nil {
		t.Fatalf("Unit returned error: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached unit to be reused")
	}
}

func TestCacheInvalidatesOnContentChange(t *testing.T) {
	c := NewCache()
	v1 := []byte("package p\n\nfunc f() {\n}\n")
	v2 := []byte("package p\n\nfunc f() {\n\tprintln(1)\n}\n")

	first, err := c.Unit("a.go", v1)
	if err != nil {
		t.Fatalf("Unit returned error: %v", err)
	}
	second, err := c.Unit("a.go", v2)
	if err != nil {
		t.Fatalf("Unit returned error: %v", err)
	}
	if first == second {
		t.Fatalf("expected changed content to yield a fresh unit")
	}
	if first.Signature == second.Signature {
		t.Fatalf("expected distinct signatures for distinct content")
	}
}

func TestCacheUnsupportedKind(t *testing.T) {
	if _, err := NewCache().Unit("a.unknown", []byte("x")); err == nil {
		t.Fatalf("expected error for unsupported unit kind")
	}
}
