package server_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/server"
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

func setupStore(t *testing.T, root string) *store.Store {
	t.Helper()
	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	s, err := store.Open(filepath.Join(engramDir, "engram.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContextBufferAddItemDeduplicates(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()
	b := server.NewContextBuffer(cfg, root, s, fakeRepo{})

	added, err := b.AddItem("docs/working/a.md", "doc", 100, "", "")
	if err != nil || !added {
		t.Fatalf("AddItem #1 = (%v, %v), want (true, nil)", added, err)
	}
	added, err = b.AddItem("docs/working/a.md", "doc", 100, "", "")
	if err != nil || added {
		t.Fatalf("AddItem #2 = (%v, %v), want (false, nil)", added, err)
	}
}

func TestContextBufferShouldDispatchOnBufferFull(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()
	cfg.Budget.MaxChunkChars = 50

	b := server.NewContextBuffer(cfg, root, s, fakeRepo{})

	reason, should, err := b.ShouldDispatch()
	if err != nil {
		t.Fatalf("ShouldDispatch (empty): %v", err)
	}
	if should {
		t.Errorf("ShouldDispatch on empty buffer = true, want false (reason %q)", reason)
	}

	if _, err := b.AddItem("a.md", "doc", 1000, "", ""); err != nil {
		t.Fatal(err)
	}
	reason, should, err = b.ShouldDispatch()
	if err != nil {
		t.Fatalf("ShouldDispatch: %v", err)
	}
	if !should || reason != "buffer_full" {
		t.Errorf("ShouldDispatch = (%q, %v), want (\"buffer_full\", true)", reason, should)
	}
}

func TestContextBufferConsumeAll(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()
	b := server.NewContextBuffer(cfg, root, s, fakeRepo{})

	if _, err := b.AddItem("a.md", "doc", 50, "", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := b.AddItem("b.md", "doc", 50, "", ""); err != nil {
		t.Fatal(err)
	}

	consumed, err := b.ConsumeAll()
	if err != nil {
		t.Fatalf("ConsumeAll: %v", err)
	}
	if len(consumed) != 2 {
		t.Fatalf("consumed = %d items, want 2", len(consumed))
	}

	info, err := b.GetFillInfo()
	if err != nil {
		t.Fatal(err)
	}
	if info.ItemCount != 0 || info.BufferChars != 0 {
		t.Errorf("fill info after consume = %+v, want zeroed", info)
	}
}
