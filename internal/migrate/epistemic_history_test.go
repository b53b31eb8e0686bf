package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rajeshgoli/engram/internal/migrate"
)

func TestExternalizeEpistemicHistoryMovesInlineBlockToPerIDFile(t *testing.T) {
	dir := t.TempDir()
	epistemicPath := filepath.Join(dir, "epistemic_state.md")

	content := "# Epistemic State\n\n" +
		"## E001: Cache invalidation is cheap (believed)\n" +
		"- Evidence: benchmark shows <1ms\n" +
		"- History: 2026-01-10: first measured; 2026-02-01: confirmed under load\n" +
		"- Agent guidance: trust this for hot-path decisions\n\n" +
		"## E002: Legacy claim already refuted (refuted) → E001\n"

	if err := os.WriteFile(epistemicPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := migrate.ExternalizeEpistemicHistory(epistemicPath)
	if err != nil {
		t.Fatalf("externalize: %v", err)
	}
	if result.MigratedEntries != 1 {
		t.Errorf("MigratedEntries = %d, want 1 (refuted entry should be skipped)", result.MigratedEntries)
	}
	if result.CreatedFiles != 1 {
		t.Errorf("CreatedFiles = %d, want 1", result.CreatedFiles)
	}

	updated, err := os.ReadFile(epistemicPath)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(updated), "History:") {
		t.Error("expected inline History field removed from epistemic doc")
	}
	if !strings.Contains(string(updated), "Agent guidance:") {
		t.Error("expected non-History fields preserved")
	}

	historyPath := filepath.Join(dir, "epistemic_state", "history", "E001.md")
	historyData, err := os.ReadFile(historyPath)
	if err != nil {
		t.Fatalf("read history file: %v", err)
	}
	history := string(historyData)
	if !strings.Contains(history, "## E001: Cache invalidation is cheap") {
		t.Errorf("expected history file to carry E001 heading, got:\n%s", history)
	}
	if !strings.Contains(history, "- 2026-01-10: first measured; 2026-02-01: confirmed under load") {
		t.Errorf("expected history line preserved as a bullet, got:\n%s", history)
	}
}

func TestExternalizeEpistemicHistorySkipsEntriesWithoutInlineHistory(t *testing.T) {
	dir := t.TempDir()
	epistemicPath := filepath.Join(dir, "epistemic_state.md")
	content := "# Epistemic State\n\n## E001: Claim with no history (believed)\n- Evidence: one observation\n"
	if err := os.WriteFile(epistemicPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := migrate.ExternalizeEpistemicHistory(epistemicPath)
	if err != nil {
		t.Fatalf("externalize: %v", err)
	}
	if result.MigratedEntries != 0 || result.CreatedFiles != 0 {
		t.Errorf("expected no-op migration, got %+v", result)
	}

	if _, err := os.Stat(filepath.Join(dir, "epistemic_state", "history", "E001.md")); !os.IsNotExist(err) {
		t.Error("expected no history file created when there's nothing to externalize")
	}
}

func TestExternalizeEpistemicHistoryMissingFileIsNoop(t *testing.T) {
	result, err := migrate.ExternalizeEpistemicHistory(filepath.Join(t.TempDir(), "missing.md"))
	if err != nil {
		t.Fatalf("externalize: %v", err)
	}
	if result.MigratedEntries != 0 {
		t.Errorf("expected zero-value result for missing file, got %+v", result)
	}
}
