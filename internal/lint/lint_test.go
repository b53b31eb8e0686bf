package lint_test

import (
	"testing"

	"github.com/rajeshgoli/engram/internal/lint"
)

func TestValidateConceptRegistryRequiresCodeField(t *testing.T) {
	content := "## C001: widget (ACTIVE)\nSome description, no code field.\n"
	violations := lint.ValidateConceptRegistry(content)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
}

func TestValidateConceptRegistryAcceptsCodeField(t *testing.T) {
	content := "## C001: widget (ACTIVE)\n- Code: src/widget.go\n"
	if v := lint.ValidateConceptRegistry(content); len(v) != 0 {
		t.Fatalf("expected no violations, got %v", v)
	}
}

func TestValidateConceptRegistryAcceptsStub(t *testing.T) {
	content := "## C001: widget (DEAD) → C005\n"
	if v := lint.ValidateConceptRegistry(content); len(v) != 0 {
		t.Fatalf("expected no violations for valid stub, got %v", v)
	}
}

func TestValidateTimelineRequiresIDsLine(t *testing.T) {
	content := "## Phase: bootstrap (2026-01 to 2026-02)\nNarrative with no IDs line.\n"
	violations := lint.ValidateTimeline(content)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
}

func TestValidateCrossReferencesFlagsUnresolved(t *testing.T) {
	contents := map[string]string{
		"concepts": "## C001: widget (ACTIVE)\n- Code: a.go\nSee E999 for background.\n",
	}
	violations := lint.ValidateCrossReferences(contents)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
}

func TestValidateNoDuplicateIDsFlagsDuplicate(t *testing.T) {
	contents := map[string]string{
		"concepts":          "## C001: widget (ACTIVE)\n- Code: a.go\n",
		"concept_graveyard": "## C001: widget (DEAD) → C002\n",
	}
	violations := lint.ValidateNoDuplicateIDs(contents)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
}

func TestCheckDiffSizeFlagsExcessiveGrowth(t *testing.T) {
	if v := lint.CheckDiffSize(1000, 1150, 50); len(v) != 1 {
		t.Fatalf("expected 1 violation for >2x growth, got %d", len(v))
	}
	if v := lint.CheckDiffSize(1000, 1040, 50); len(v) != 0 {
		t.Fatalf("expected no violation for growth within bound, got %d", len(v))
	}
}

func TestCheckMissingSectionsFlagsDeletedHeading(t *testing.T) {
	before := map[string]string{"concepts": "## C001: widget (ACTIVE)\n- Code: a.go\n"}
	after := map[string]string{"concepts": "# empty\n"}
	violations := lint.CheckMissingSections(before, after)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
}

func TestCheckIDComplianceFlagsMissingAndInvented(t *testing.T) {
	before := map[string]string{"concepts": ""}
	after := map[string]string{"concepts": "## C002: gadget (ACTIVE)\n- Code: b.go\n"}
	violations := lint.CheckIDCompliance(before, after, []string{"C001"})
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations (missing C001, invented C002), got %d: %v", len(violations), violations)
	}
}

func TestCheckFoldChunkDeltaDocumentationFlagsUndocumentedSection(t *testing.T) {
	before := map[string]string{"timeline": ""}
	after := map[string]string{"timeline": "## Phase: launch (2026-01 to 2026-02)\nNo id references here.\n"}
	violations := lint.CheckFoldChunkDeltaDocumentation(before, after)
	if len(violations) != 1 {
		t.Fatalf("expected 1 violation, got %d: %v", len(violations), violations)
	}
}
