package storekit

import (
	"reflect"
	"testing"
)

func TestNewPathNormalization(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"simple", "data/reports/q1.csv", "data/reports/q1.csv"},
		{"backslashes", `data\reports\q1.csv`, "data/reports/q1.csv"},
		{"mixed separators", `data\reports/q1.csv`, "data/reports/q1.csv"},
		{"duplicate slashes", "data//reports///q1.csv", "data/reports/q1.csv"},
		{"leading slash", "/data/reports", "data/reports"},
		{"trailing slash", "data/reports/", "data/reports"},
		{"dot segments", "./data/./reports", "data/reports"},
		{"single segment", "file.txt", "file.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPath(tt.raw)
			if err != nil {
				t.Fatalf("NewPath(%q) returned error: %v", tt.raw, err)
			}
			if p.String() != tt.want {
				t.Errorf("NewPath(%q) = %q, want %q", tt.raw, p.String(), tt.want)
			}
		})
	}
}

func TestNewPathIdempotent(t *testing.T) {
	p, err := NewPath(`a\b//c/./d`)
	if err != nil {
		t.Fatal(err)
	}
	again, err := NewPath(p.String())
	if err != nil {
		t.Fatal(err)
	}
	if p != again {
		t.Errorf("normalization not idempotent: %q != %q", p.String(), again.String())
	}
}

func TestNewPathRejects(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"only slash", "/"},
		{"only dot", "."},
		{"only slashes", "///"},
		{"parent segment", "a/../b"},
		{"leading parent", "../a"},
		{"bare parent", ".."},
		{"null byte", "a/b\x00c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPath(tt.raw); err == nil {
				t.Errorf("NewPath(%q) succeeded, want error", tt.raw)
			} else if !IsInvalidPath(err) {
				t.Errorf("NewPath(%q) error = %v, want ErrInvalidPath", tt.raw, err)
			}
		})
	}
}

func TestPathEquality(t *testing.T) {
	a := MustPath("data/file.txt")
	b := MustPath(`data\file.txt`)
	c := MustPath("/data//file.txt/")
	if a != b || b != c {
		t.Errorf("equivalent raw inputs produced unequal paths: %q %q %q", a, b, c)
	}

	// Comparable value type: usable directly as a map key.
	seen := map[Path]int{}
	seen[a]++
	seen[b]++
	seen[c]++
	if len(seen) != 1 || seen[a] != 3 {
		t.Errorf("map dedup by Path failed: %v", seen)
	}
}

func TestPathAccessors(t *testing.T) {
	p := MustPath("data/reports/q1.csv")

	if got := p.Name(); got != "q1.csv" {
		t.Errorf("Name() = %q, want %q", got, "q1.csv")
	}
	if got := p.Suffix(); got != ".csv" {
		t.Errorf("Suffix() = %q, want %q", got, ".csv")
	}
	parent, ok := p.Parent()
	if !ok || parent.String() != "data/reports" {
		t.Errorf("Parent() = %q, %v", parent.String(), ok)
	}
	if got := p.Parts(); !reflect.DeepEqual(got, []string{"data", "reports", "q1.csv"}) {
		t.Errorf("Parts() = %v", got)
	}
}

func TestPathParentOfSingleSegment(t *testing.T) {
	p := MustPath("file.txt")
	if _, ok := p.Parent(); ok {
		t.Error("single-segment path reported a parent")
	}
}

func TestPathSuffixEdgeCases(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"archive.tar.gz", ".gz"},
		{"no_ext", ""},
		{"dir.v2/file", ""},
		{".gitignore", ""},
	}
	for _, tt := range tests {
		if got := MustPath(tt.raw).Suffix(); got != tt.want {
			t.Errorf("Suffix(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestPathJoin(t *testing.T) {
	p := MustPath("data")
	joined, err := p.Join("reports", "q1.csv")
	if err != nil {
		t.Fatal(err)
	}
	if joined.String() != "data/reports/q1.csv" {
		t.Errorf("Join = %q", joined.String())
	}

	if _, err := p.Join(".."); err == nil {
		t.Error("Join with parent segment succeeded, want error")
	}
}

func BenchmarkNewPath(b *testing.B) {
	for i := 0; i < b.N; i++ {
		if _, err := NewPath(`data\reports//2026/./q1.csv`); err != nil {
			b.Fatal(err)
		}
	}
}
