package queue_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/queue"
)

type fakeRepo struct{}

func (fakeRepo) ResolveRefCommit(time.Time) (string, error)          { return "", nil }
func (fakeRepo) ResolveHeadCommit() (string, error)                  { return "", nil }
func (fakeRepo) CreateDetachedWorktree(string, string) (string, error) { return "", nil }
func (fakeRepo) RemoveWorktree(string) error                         { return nil }
func (fakeRepo) TrackedFiles(string) (map[string]bool, error)        { return nil, nil }
func (fakeRepo) BlameLineDate(string, int) (time.Time, error)        { return time.Time{}, nil }
func (fakeRepo) DiffSummary(time.Time, time.Time, []string) (string, error) {
	return "", nil
}
func (fakeRepo) FirstCommitDate(string) (time.Time, error) { return time.Time{}, os.ErrNotExist }
func (fakeRepo) LastCommitDate(string) (time.Time, error)  { return time.Time{}, os.ErrNotExist }
func (fakeRepo) CommitSubjectsSince(time.Time) ([]string, error)      { return nil, nil }

func TestBuildQueueOrdersEntriesByDate(t *testing.T) {
	root := t.TempDir()
	docsDir := filepath.Join(root, "docs", "working")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docsDir, "a.md"), []byte("**Date:** 2026-01-05\n\nhello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(docsDir, "b.md"), []byte("**Date:** 2026-01-01\n\nworld"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Sources.Docs = []string{"docs/working/"}
	cfg.Sources.Issues = "local_data/issues/"

	entries, err := queue.BuildQueue(cfg, root, "", fakeRepo{})
	if err != nil {
		t.Fatalf("build queue: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Date > entries[1].Date {
		t.Errorf("entries not sorted by date: %q then %q", entries[0].Date, entries[1].Date)
	}

	if _, err := os.Stat(filepath.Join(root, ".engram", "queue.jsonl")); err != nil {
		t.Errorf("queue.jsonl not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".engram", "item_sizes.json")); err != nil {
		t.Errorf("item_sizes.json not written: %v", err)
	}
}

func TestExtractIssueNumber(t *testing.T) {
	n, ok := queue.ExtractIssueNumber("1343_backtest_analysis.md")
	if !ok || n != 1343 {
		t.Errorf("got (%d, %v), want (1343, true)", n, ok)
	}
	if _, ok := queue.ExtractIssueNumber("no_number.md"); ok {
		t.Error("expected no match for filename without a leading number")
	}
}
