package compact_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rajeshgoli/engram/internal/compact"
	"github.com/rajeshgoli/engram/internal/docs"
)

func TestCompactLivingDocMovesDeadEntriesToGraveyard(t *testing.T) {
	dir := t.TempDir()
	graveyardPath := filepath.Join(dir, "concept_graveyard.md")

	content := "# Concept Registry\n\n" +
		"## C001: widget (ACTIVE)\n- Code: a.go\n\n" +
		"## C002: gadget (DEAD)\n- Code: b.go\nRetired last quarter.\n"

	newContent, saved, err := compact.CompactLivingDoc(content, "concepts", graveyardPath)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if saved == 0 {
		t.Error("expected non-zero chars saved")
	}

	data, err := os.ReadFile(graveyardPath)
	if err != nil {
		t.Fatalf("read graveyard: %v", err)
	}
	if !contains(string(data), "Retired last quarter.") {
		t.Error("expected full entry text archived in graveyard")
	}
	if !contains(newContent, "## C001: widget (ACTIVE)") {
		t.Error("expected C001 to remain in living doc")
	}
	if contains(newContent, "Retired last quarter.") {
		t.Error("expected C002's full text removed from living doc")
	}
}

func TestGenerateStub(t *testing.T) {
	sections := docs.ParseSections("## C042: widget (DEAD)\nbody\n")
	if len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}
	stub, err := compact.GenerateStub(sections[0], "concept_graveyard.md")
	if err != nil {
		t.Fatalf("generate stub: %v", err)
	}
	want := "## C042: widget (DEAD) → concept_graveyard.md#C042"
	if stub != want {
		t.Errorf("stub = %q, want %q", stub, want)
	}
}

func TestFindOrphanedConcepts(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "present.go"), []byte("package x"), 0644); err != nil {
		t.Fatal(err)
	}

	registry := "## C001: widget (ACTIVE)\n- Code: src/present.go\n\n" +
		"## C002: gadget (ACTIVE)\n- Code: src/missing.go\n"

	orphans, err := compact.FindOrphanedConcepts(registry, root, nil)
	if err != nil {
		t.Fatalf("find orphaned: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != "C002" {
		t.Fatalf("orphans = %+v, want single C002 entry", orphans)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
