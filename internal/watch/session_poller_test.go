package watch_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/watch"
)

func writeHistoryLine(t *testing.T, path, project, display, sessionID string, ts time.Time) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	line, _ := json.Marshal(map[string]any{
		"project":   project,
		"display":   display,
		"sessionId": sessionID,
		"timestamp": ts.UnixMilli(),
	})
	if _, err := f.Write(append(line, '\n')); err != nil {
		t.Fatal(err)
	}
}

func TestSessionPollerEmitsNewSessionAndSkipsKnownPrompts(t *testing.T) {
	dir := t.TempDir()
	history := filepath.Join(dir, "history.jsonl")
	projectRoot := t.TempDir()

	writeHistoryLine(t, history, "myproject", "implement the login flow please", "sess-1", time.Now())

	cfg := config.Defaults()
	cfg.Sources.Sessions.Path = history
	cfg.Sources.Sessions.ProjectMatch = []string{"myproject"}

	var calls int
	p := watch.NewSessionPoller(cfg, projectRoot, func(path, itemType string, chars int, date, metadata string) {
		calls++
		if itemType != "prompts" {
			t.Errorf("itemType = %q, want prompts", itemType)
		}
	}, nil)

	if n := p.Poll(); n != 1 {
		t.Fatalf("first poll = %d, want 1 new session", n)
	}
	if calls != 1 {
		t.Fatalf("callback calls = %d, want 1", calls)
	}

	// Re-polling without any file change should be a no-op (mtime unchanged).
	if n := p.Poll(); n != 0 {
		t.Errorf("second poll (no change) = %d, want 0", n)
	}
}

func TestSessionPollerFiltersByProject(t *testing.T) {
	dir := t.TempDir()
	history := filepath.Join(dir, "history.jsonl")
	projectRoot := t.TempDir()

	writeHistoryLine(t, history, "otherproject", "a totally unrelated prompt here", "sess-2", time.Now())

	cfg := config.Defaults()
	cfg.Sources.Sessions.Path = history
	cfg.Sources.Sessions.ProjectMatch = []string{"myproject"}

	var calls int
	p := watch.NewSessionPoller(cfg, projectRoot, func(path, itemType string, chars int, date, metadata string) {
		calls++
	}, nil)

	p.Poll()
	if calls != 0 {
		t.Errorf("callback calls = %d, want 0 for non-matching project", calls)
	}
}
