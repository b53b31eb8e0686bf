package dispatch_test

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/dispatch"
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

// scriptedAgent writes canned living-doc content on each Invoke call,
// simulating a fold agent that edits the docs out-of-band before returning.
type scriptedAgent struct {
	writes   []func()
	callIdx  int
	succeeds bool
}

func (a *scriptedAgent) Invoke(ctx context.Context, prompt string) (bool, error) {
	if a.callIdx < len(a.writes) && a.writes[a.callIdx] != nil {
		a.writes[a.callIdx]()
	}
	a.callIdx++
	return a.succeeds, nil
}

func setupProject(t *testing.T) (string, config.Config, *store.Store) {
	t.Helper()
	root := t.TempDir()
	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	paths := config.ResolveDocPaths(cfg, root)
	if err := os.MkdirAll(filepath.Dir(paths.Timeline), 0755); err != nil {
		t.Fatal(err)
	}

	entries := []queue.Entry{
		{Date: "2026-01-01T00:00:00Z", Type: "doc", Path: "a.md", Chars: 200, Pass: "initial"},
	}
	if err := os.WriteFile(filepath.Join(root, "a.md"), []byte("hello world"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := queue.WriteQueue(engramDir, entries); err != nil {
		t.Fatal(err)
	}

	s, err := store.Open(filepath.Join(engramDir, "engram.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return root, cfg, s
}

func TestDispatchCommitsOnCleanLint(t *testing.T) {
	root, cfg, s := setupProject(t)
	paths := config.ResolveDocPaths(cfg, root)

	writeValidDocs := func() {
		_ = os.WriteFile(paths.Timeline, []byte(
			"## Phase: Start (2026-01-01 to 2026-01-01)\n\nIDs: C001\n\nIntroduced C001 for widget caching.\n"), 0644)
		_ = os.WriteFile(paths.Concepts, []byte(
			"## C001: Widget cache (ACTIVE)\n\nCode: internal/widget/cache.go\n"), 0644)
	}

	d := &dispatch.Dispatcher{
		Config:      cfg,
		ProjectRoot: root,
		Store:       s,
		Repo:        fakeRepo{},
		Agent:       &scriptedAgent{writes: []func(){writeValidDocs}, succeeds: true},
		Logger:      log.New(os.Stderr, "", 0),
	}

	ok, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !ok {
		t.Error("Dispatch() = false, want true when lint passes on first attempt")
	}

	last, found, err := s.GetLastDispatch()
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected a recorded dispatch")
	}
	if last.State != store.StateCommitted {
		t.Errorf("dispatch state = %q, want %q", last.State, store.StateCommitted)
	}
}

func TestDispatchReturnsFalseWhenNoQueue(t *testing.T) {
	root := t.TempDir()
	cfg := config.Defaults()
	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	s, err := store.Open(filepath.Join(engramDir, "engram.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	d := &dispatch.Dispatcher{
		Config:      cfg,
		ProjectRoot: root,
		Store:       s,
		Repo:        fakeRepo{},
		Agent:       &scriptedAgent{succeeds: true},
	}

	ok, err := d.Dispatch(context.Background())
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if ok {
		t.Error("Dispatch() = true, want false when no queue exists")
	}
}
