package chunk_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/chunk"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/queue"
	"github.com/rajeshgoli/engram/internal/store"
)

type fakeRepo struct{}

func (fakeRepo) ResolveRefCommit(time.Time) (string, error)            { return "", nil }
func (fakeRepo) ResolveHeadCommit() (string, error)                    { return "", nil }
func (fakeRepo) CreateDetachedWorktree(string, string) (string, error) { return "", nil }
func (fakeRepo) RemoveWorktree(string) error                           { return nil }
func (fakeRepo) TrackedFiles(string) (map[string]bool, error)          { return nil, nil }
func (fakeRepo) BlameLineDate(string, int) (time.Time, error)          { return time.Time{}, nil }
func (fakeRepo) DiffSummary(time.Time, time.Time, []string) (string, error) {
	return "", nil
}
func (fakeRepo) FirstCommitDate(string) (time.Time, error) { return time.Time{}, os.ErrNotExist }
func (fakeRepo) LastCommitDate(string) (time.Time, error)  { return time.Time{}, os.ErrNotExist }
func (fakeRepo) CommitSubjectsSince(time.Time) ([]string, error)      { return nil, nil }

func TestDriftReportTriggeredPriority(t *testing.T) {
	thresholds := config.ThresholdsConfig{OrphanTriage: 1, WorkflowRepetition: 1}
	report := chunk.DriftReport{
		OrphanedConcepts:    make([]chunk.DriftEntry, 2),
		WorkflowRepetitions: make([]chunk.DriftEntry, 2),
	}
	if got := report.Triggered(thresholds); got != "orphan_triage" {
		t.Errorf("Triggered() = %q, want orphan_triage (higher priority)", got)
	}
}

func TestDriftReportTriggeredNone(t *testing.T) {
	thresholds := config.ThresholdsConfig{OrphanTriage: 50}
	report := chunk.DriftReport{}
	if got := report.Triggered(thresholds); got != "" {
		t.Errorf("Triggered() = %q, want empty", got)
	}
}

// TestDriftReportTriggeredUsesCountNotDayThresholds guards against
// confusing contested_review_days/stale_unverified_days (age-filtering
// thresholds, in days) with contested_review/stale_unverified (the
// separate count thresholds Triggered compares against).
func TestDriftReportTriggeredUsesCountNotDayThresholds(t *testing.T) {
	thresholds := config.ThresholdsConfig{
		ContestedReviewDays: 14, // day-age threshold, irrelevant to Triggered
		ContestedReviewCount: 2,
	}
	report := chunk.DriftReport{ContestedClaims: make([]chunk.DriftEntry, 3)}
	if got := report.Triggered(thresholds); got != "contested_review" {
		t.Errorf("Triggered() = %q, want contested_review (3 > count threshold 2)", got)
	}

	thresholds.ContestedReviewCount = 5
	if got := report.Triggered(thresholds); got != "" {
		t.Errorf("Triggered() = %q, want empty (3 claims does not exceed count threshold 5)", got)
	}
}

func TestComputeBudgetCapsAtMaxChunkChars(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Budget.ContextLimitChars = 1_000_000
	cfg.Budget.InstructionsOverhead = 0
	cfg.Budget.MaxChunkChars = 500

	paths := config.ResolveDocPaths(cfg, dir)
	budget, _ := chunk.ComputeBudget(cfg, paths, 0)
	if budget != 500 {
		t.Errorf("budget = %d, want 500 (capped)", budget)
	}
}

func TestNextChunkBuildsFoldChunkFromQueue(t *testing.T) {
	root := t.TempDir()
	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	docsDir := filepath.Join(root, "docs", "decisions")
	if err := os.MkdirAll(docsDir, 0755); err != nil {
		t.Fatal(err)
	}

	entries := []queue.Entry{
		{Date: "2026-01-01T00:00:00Z", Type: "doc", Path: "a.md", Chars: 10, Pass: "initial"},
	}
	if err := os.WriteFile(filepath.Join(root, "a.md"), []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := queue.WriteQueue(engramDir, entries); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	s, err := store.Open(filepath.Join(engramDir, "engram.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	result, err := chunk.NextChunk(cfg, root, fakeRepo{}, s, "")
	if err != nil {
		t.Fatalf("next chunk: %v", err)
	}
	if result.ChunkType != "fold" {
		t.Errorf("ChunkType = %q, want fold", result.ChunkType)
	}
	if result.ItemsCount != 1 {
		t.Errorf("ItemsCount = %d, want 1", result.ItemsCount)
	}
	if _, err := os.Stat(result.InputPath); err != nil {
		t.Errorf("input file not written: %v", err)
	}
	if _, err := os.Stat(result.PromptPath); err != nil {
		t.Errorf("prompt file not written: %v", err)
	}

	remaining, err := queue.ReadQueue(engramDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 0 {
		t.Errorf("expected queue drained, got %d remaining", len(remaining))
	}
}

func TestNextChunkErrorsOnMissingQueue(t *testing.T) {
	root := t.TempDir()
	cfg := config.Defaults()
	if _, err := chunk.NextChunk(cfg, root, fakeRepo{}, nil, ""); err != chunk.ErrNoQueue {
		t.Errorf("err = %v, want ErrNoQueue", err)
	}
}

func TestNextChunkRefusesWhileActiveChunkLockHeld(t *testing.T) {
	root := t.TempDir()
	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := queue.WriteQueue(engramDir, []queue.Entry{
		{Date: "2026-01-01T00:00:00Z", Type: "doc", Path: "a.md", Chars: 10, Pass: "initial"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := chunk.WriteActiveChunkRecord(engramDir, chunk.ActiveChunkRecord{
		ChunkID:   1,
		ChunkType: "fold",
		InputPath: filepath.Join(engramDir, "chunks", "chunk_001_input.md"),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	_, err := chunk.NextChunk(cfg, root, fakeRepo{}, nil, "")
	var lockErr *chunk.ErrActiveChunkLocked
	if !errors.As(err, &lockErr) {
		t.Fatalf("err = %v, want *ErrActiveChunkLocked", err)
	}
	if lockErr.ChunkID != 1 {
		t.Errorf("ChunkID = %d, want 1", lockErr.ChunkID)
	}
}

func TestNextChunkSucceedsAfterClearActiveChunk(t *testing.T) {
	root := t.TempDir()
	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := queue.WriteQueue(engramDir, []queue.Entry{
		{Date: "2026-01-01T00:00:00Z", Type: "doc", Path: "a.md", Chars: 10, Pass: "initial"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := chunk.WriteActiveChunkRecord(engramDir, chunk.ActiveChunkRecord{
		ChunkID:   1,
		ChunkType: "fold",
		InputPath: filepath.Join(engramDir, "chunks", "chunk_001_input.md"),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	cleared, err := chunk.ClearActiveChunk(engramDir, fakeRepo{})
	if err != nil {
		t.Fatalf("clear active chunk: %v", err)
	}
	if !cleared {
		t.Fatal("expected a lock to have been cleared")
	}

	cfg := config.Defaults()
	if _, err := chunk.NextChunk(cfg, root, fakeRepo{}, nil, ""); err != nil {
		t.Fatalf("next chunk after clear: %v", err)
	}
}

// autoClearRepo reports a commit that matches the fold-commit auto-clear
// pattern for chunk 1, dated after any created_at the test passes.
type autoClearRepo struct{ fakeRepo }

func (autoClearRepo) CommitSubjectsSince(time.Time) ([]string, error) {
	return []string{"Knowledge fold: chunk 1"}, nil
}

func TestNextChunkAutoClearsOnMatchingFoldCommit(t *testing.T) {
	root := t.TempDir()
	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := queue.WriteQueue(engramDir, []queue.Entry{
		{Date: "2026-01-01T00:00:00Z", Type: "doc", Path: "a.md", Chars: 10, Pass: "initial"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := chunk.WriteActiveChunkRecord(engramDir, chunk.ActiveChunkRecord{
		ChunkID:   1,
		ChunkType: "fold",
		InputPath: filepath.Join(engramDir, "chunks", "chunk_001_input.md"),
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	if _, err := chunk.NextChunk(cfg, root, autoClearRepo{}, nil, ""); err != nil {
		t.Fatalf("next chunk: %v", err)
	}
}
