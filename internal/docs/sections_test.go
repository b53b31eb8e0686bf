package docs_test

import (
	"strings"
	"testing"

	"github.com/rajeshgoli/engram/internal/docs"
)

func TestParseSectionsLosslessLineCount(t *testing.T) {
	content := "# Concept Registry\n\n## C001: widget (ACTIVE)\n- Code: a.py\n\n## C002: gadget (DEAD)\n"
	sections := docs.ParseSections(content)
	if len(sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(sections))
	}
	totalLines := strings.Count(content, "\n") + 1
	lastEnd := sections[len(sections)-1].EndLine
	if lastEnd != totalLines {
		t.Errorf("expected last section to end at line %d, got %d", totalLines, lastEnd)
	}
	if sections[0].Status != "active" {
		t.Errorf("expected status 'active', got %q", sections[0].Status)
	}
	if sections[1].Status != "dead" {
		t.Errorf("expected status 'dead', got %q", sections[1].Status)
	}
}

func TestHeadingID(t *testing.T) {
	cases := []struct {
		heading    string
		wantPrefix string
		wantNum    int
		wantOK     bool
	}{
		{"C001: widget (ACTIVE)", "C", 1, true},
		{"W1000: deploy pipeline (CURRENT)", "W", 1000, true},
		{"Phase: bootstrap (2024-01 to 2024-02)", "", 0, false},
	}
	for _, c := range cases {
		prefix, num, ok := docs.HeadingID(c.heading)
		if prefix != c.wantPrefix || num != c.wantNum || ok != c.wantOK {
			t.Errorf("HeadingID(%q) = (%q, %d, %v), want (%q, %d, %v)",
				c.heading, prefix, num, ok, c.wantPrefix, c.wantNum, c.wantOK)
		}
	}
}

func TestExtractReferencedIDs(t *testing.T) {
	text := "See C001 and E002, related to W003 and C001 again."
	ids := docs.ExtractReferencedIDs(text)
	want := []string{"C001", "E002", "W003", "C001"}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d: %v", len(ids), len(want), ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestIsStub(t *testing.T) {
	if !docs.IsStub("C001: widget (DEAD) → graveyard") {
		t.Error("expected stub heading to be detected")
	}
	if docs.IsStub("C001: widget (ACTIVE)") {
		t.Error("did not expect a full entry to be detected as a stub")
	}
}

func TestFormatID(t *testing.T) {
	if got := docs.FormatID("C", 1); got != "C001" {
		t.Errorf("FormatID(C,1) = %q, want C001", got)
	}
	if got := docs.FormatID("W", 1000); got != "W1000" {
		t.Errorf("FormatID(W,1000) = %q, want W1000", got)
	}
}
