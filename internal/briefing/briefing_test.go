package briefing_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rajeshgoli/engram/internal/briefing"
	"github.com/rajeshgoli/engram/internal/config"
)

func TestInjectSectionAppendsWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CLAUDE.md")
	if err := os.WriteFile(path, []byte("# Project\n\nSome intro.\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := briefing.InjectSection(path, "## Project Knowledge Briefing", "Fresh briefing text."); err != nil {
		t.Fatalf("InjectSection: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.Contains(got, "## Project Knowledge Briefing") || !strings.Contains(got, "Fresh briefing text.") {
		t.Errorf("file missing injected section:\n%s", got)
	}
}

func TestInjectSectionReplacesExistingUpToNextHeading(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "CLAUDE.md")
	original := "# Project\n\n## Project Knowledge Briefing\n\nOld stale briefing.\nMore old text.\n\n## Other Section\n\nUnrelated content.\n"
	if err := os.WriteFile(path, []byte(original), 0644); err != nil {
		t.Fatal(err)
	}

	if err := briefing.InjectSection(path, "## Project Knowledge Briefing", "New briefing."); err != nil {
		t.Fatalf("InjectSection: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if strings.Contains(got, "Old stale briefing.") {
		t.Errorf("stale briefing text survived:\n%s", got)
	}
	if !strings.Contains(got, "New briefing.") {
		t.Errorf("new briefing text missing:\n%s", got)
	}
	if !strings.Contains(got, "## Other Section") || !strings.Contains(got, "Unrelated content.") {
		t.Errorf("trailing section was clobbered:\n%s", got)
	}
}

type fakeBriefingInvoker struct {
	text string
	err  error
}

func (f fakeBriefingInvoker) GenerateBriefing(ctx context.Context, livingDocsContent string) (string, error) {
	return f.text, f.err
}

func TestRegenerateSkipsWhenTargetMissing(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	paths := config.ResolveDocPaths(cfg, dir)

	text, err := briefing.Regenerate(context.Background(), cfg, dir, paths, fakeBriefingInvoker{text: "anything"})
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if text != "" {
		t.Errorf("Regenerate() = %q, want empty when briefing target file is missing", text)
	}
}

func TestRegenerateInjectsAgentOutput(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	paths := config.ResolveDocPaths(cfg, dir)

	if err := os.MkdirAll(filepath.Dir(paths.Timeline), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Timeline, []byte("## Phase: Start (2026-01-01 to 2026-01-02)\n\nC001 did a thing.\n"), 0644); err != nil {
		t.Fatal(err)
	}
	claudeMD := filepath.Join(dir, cfg.Briefing.File)
	if err := os.WriteFile(claudeMD, []byte("# Project\n"), 0644); err != nil {
		t.Fatal(err)
	}

	text, err := briefing.Regenerate(context.Background(), cfg, dir, paths, fakeBriefingInvoker{text: "Compressed summary."})
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if text != "Compressed summary." {
		t.Errorf("Regenerate() = %q, want %q", text, "Compressed summary.")
	}

	data, err := os.ReadFile(claudeMD)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Compressed summary.") {
		t.Errorf("briefing file not updated:\n%s", data)
	}
}
