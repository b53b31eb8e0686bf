package bootstrap_test

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/bootstrap"
	"github.com/rajeshgoli/engram/internal/config"
)

func setupFoldProject(t *testing.T) (string, config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	cfg.Sources.Docs = []string{"docs/working"}
	cfg.Sources.Issues = "local_data/issues"
	cfg.Sources.Sessions.Path = filepath.Join(root, "nonexistent-history.jsonl")

	docsDir := filepath.Join(root, "docs", "working")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}
	content := "**Date:** 2026-01-15\n\nSome early design notes about the widget cache.\n"
	if err := os.WriteFile(filepath.Join(docsDir, "a.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	paths := config.ResolveDocPaths(cfg, root)
	if err := os.MkdirAll(filepath.Dir(paths.Timeline), 0755); err != nil {
		t.Fatal(err)
	}

	return root, cfg
}

func TestForwardFoldCommitsChunkOnCleanLint(t *testing.T) {
	root, cfg := setupFoldProject(t)
	s := setupStore(t, root)
	paths := config.ResolveDocPaths(cfg, root)

	f := &bootstrap.Folder{
		ProjectRoot: root,
		Config:      cfg,
		Store:       s,
		Repo:        fakeRepo{},
		Agent:       writingAgent{paths: paths},
		Logf:        log.Printf,
	}

	from, err := time.Parse("2006-01-02", "2026-01-01")
	if err != nil {
		t.Fatal(err)
	}

	ok, err := f.ForwardFold(context.Background(), from)
	if err != nil {
		t.Fatalf("ForwardFold: %v", err)
	}
	if !ok {
		t.Error("ForwardFold() = false, want true when lint passes on first attempt")
	}

	foldFrom, err := s.GetFoldFrom()
	if err != nil {
		t.Fatal(err)
	}
	if foldFrom != "" {
		t.Errorf("fold_from = %q after successful fold, want cleared", foldFrom)
	}
}

func TestForwardFoldNoEntriesAfterDateClearsFoldFrom(t *testing.T) {
	root, cfg := setupFoldProject(t)
	s := setupStore(t, root)

	f := &bootstrap.Folder{
		ProjectRoot: root,
		Config:      cfg,
		Store:       s,
		Repo:        fakeRepo{},
		Agent:       &stubAgent{ok: true},
	}

	from, err := time.Parse("2006-01-02", "2030-01-01")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetFoldFrom("2029-12-31"); err != nil {
		t.Fatal(err)
	}

	ok, err := f.ForwardFold(context.Background(), from)
	if err != nil {
		t.Fatalf("ForwardFold: %v", err)
	}
	if !ok {
		t.Error("ForwardFold() = false, want true when nothing to process")
	}

	foldFrom, err := s.GetFoldFrom()
	if err != nil {
		t.Fatal(err)
	}
	if foldFrom != "" {
		t.Errorf("fold_from = %q after empty fold, want cleared", foldFrom)
	}
}

// writingAgent simulates a fold agent that writes valid living-doc content
// on invocation, letting the post-dispatch lint pass on the first attempt.
type writingAgent struct {
	paths config.DocPaths
}

func (w writingAgent) Invoke(ctx context.Context, prompt string) (bool, error) {
	_ = os.WriteFile(w.paths.Timeline, []byte(
		"## Phase: Start (2026-01-15 to 2026-01-15)\n\nIDs: C001\n\nIntroduced C001 for widget caching.\n"), 0644)
	_ = os.WriteFile(w.paths.Concepts, []byte(
		"## C001: Widget cache (ACTIVE)\n\nCode: internal/widget/cache.go\n"), 0644)
	return true, nil
}
