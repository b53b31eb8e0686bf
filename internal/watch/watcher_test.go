package watch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/watch"
)

func TestFileWatcherDetectsNewMarkdownFile(t *testing.T) {
	root := t.TempDir()
	docsDir := filepath.Join(root, "docs", "working")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Sources.Docs = []string{"docs/working"}
	cfg.Sources.Issues = ""

	events := make(chan string, 8)
	fw := watch.NewFileWatcher(cfg, root, func(path, itemType string, chars int, date, metadata string) {
		events <- path
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fw.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(docsDir, "note.md"), []byte("# hi"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-events:
		if filepath.Base(p) != "note.md" {
			t.Errorf("event path = %q, want note.md", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file watcher event")
	}
}

func TestFileWatcherIgnoresHiddenAndUnrelatedExtensions(t *testing.T) {
	root := t.TempDir()
	docsDir := filepath.Join(root, "docs", "working")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Sources.Docs = []string{"docs/working"}
	cfg.Sources.Issues = ""

	events := make(chan string, 8)
	fw := watch.NewFileWatcher(cfg, root, func(path, itemType string, chars int, date, metadata string) {
		events <- path
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := fw.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer fw.Stop()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(filepath.Join(docsDir, "note.bin"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docsDir, "valid.md"), []byte("# hi"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case p := <-events:
		if filepath.Base(p) != "valid.md" {
			t.Errorf("event path = %q, want valid.md (note.bin should be filtered)", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for file watcher event")
	}
}
