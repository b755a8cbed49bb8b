package terminology

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestRangeRegistersOnlyBoundaryCodes(t *testing.T) {
	lookup := ExpandMap(map[string]string{"A00-A09": "intestinal"})

	if got := lookup.Codes(); !reflect.DeepEqual(got, []string{"A00", "A09"}) {
		t.Fatalf("expected boundary codes only, got %v", got)
	}
	for _, code := range []string{"A00", "A09"} {
		if label, ok := lookup.Label(code); !ok || label != "intestinal" {
			t.Fatalf("expected %s -> intestinal, got %q %v", code, label, ok)
		}
	}
	for _, code := range []string{"A01", "A05", "A08"} {
		if lookup.Contains(code) {
			t.Fatalf("intermediate code %s must not be registered", code)
		}
	}
}

func TestReadCSV(t *testing.T) {
	input := "Diagnoses,ICD10-codes\n" +
		"Congenital heart disease,Q20-Q26; Q28\n" +
		"Leukaemia,C91;C92\n"
	entries, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lookup := Expand(entries)
	want := []string{"C91", "C92", "Q20", "Q26", "Q28"}
	if got := lookup.Codes(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if label, _ := lookup.Label("Q28"); label != "Congenital heart disease" {
		t.Fatalf("unexpected label %q", label)
	}
}

func TestReadCSVRequiresColumns(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("name,codes\nx,y\n")); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestLoadFileYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codes.yaml")
	content := "entries:\n  - label: congenital\n    codes: [\"Q20\"]\n  - label: epilepsy\n    codes: [\"G40-G41\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	lookup, err := LoadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if lookup.Len() != 3 {
		t.Fatalf("expected 3 codes, got %d", lookup.Len())
	}
}

func TestMapReturnsCopy(t *testing.T) {
	lookup := ExpandMap(map[string]string{"Q20": "congenital"})
	m := lookup.Map()
	m["X99"] = "injected"
	if lookup.Contains("X99") {
		t.Fatal("lookup must not change when its copy is mutated")
	}
}
