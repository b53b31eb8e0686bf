package bootstrap_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/bootstrap"
	"github.com/rajeshgoli/engram/internal/config"
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

type stubAgent struct {
	invoked bool
	prompt  string
	ok      bool
}

func (s *stubAgent) Invoke(ctx context.Context, prompt string) (bool, error) {
	s.invoked = true
	s.prompt = prompt
	return s.ok, nil
}

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

func TestSeedCurrentCreatesLivingDocsAndDispatches(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()
	sa := &stubAgent{ok: true}

	seeder := &bootstrap.Seeder{
		ProjectRoot: root, Config: cfg, Store: s, Repo: fakeRepo{}, Agent: sa,
	}

	ok, err := seeder.SeedCurrent(context.Background())
	if err != nil {
		t.Fatalf("SeedCurrent: %v", err)
	}
	if !ok {
		t.Fatal("SeedCurrent = false, want true")
	}
	if !sa.invoked {
		t.Fatal("seed agent was never invoked")
	}

	paths := config.ResolveDocPaths(cfg, root)
	for _, p := range []string{paths.Timeline, paths.Concepts, paths.Epistemic, paths.Workflows, paths.ConceptGraveyard, paths.EpistemicGraveyard} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected living doc at %s to exist: %v", p, err)
		}
	}

	if _, err := os.Stat(filepath.Join(root, ".engram", "seed_input.md")); err != nil {
		t.Errorf("seed_input.md not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".engram", "seed_prompt.txt")); err != nil {
		t.Errorf("seed_prompt.txt not written: %v", err)
	}
}

func TestSeedCurrentReturnsFalseOnAgentFailure(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()
	sa := &stubAgent{ok: false}

	seeder := &bootstrap.Seeder{
		ProjectRoot: root, Config: cfg, Store: s, Repo: fakeRepo{}, Agent: sa,
	}

	ok, err := seeder.SeedCurrent(context.Background())
	if err != nil {
		t.Fatalf("SeedCurrent: %v", err)
	}
	if ok {
		t.Fatal("SeedCurrent = true, want false on agent failure")
	}
}

func TestSeedCurrentDoesNotOverwriteExistingDocs(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()
	sa := &stubAgent{ok: true}

	paths := config.ResolveDocPaths(cfg, root)
	if err := os.MkdirAll(filepath.Dir(paths.Timeline), 0755); err != nil {
		t.Fatal(err)
	}
	existing := "# Timeline\n\nAlready seeded content.\n"
	if err := os.WriteFile(paths.Timeline, []byte(existing), 0644); err != nil {
		t.Fatal(err)
	}

	seeder := &bootstrap.Seeder{
		ProjectRoot: root, Config: cfg, Store: s, Repo: fakeRepo{}, Agent: sa,
	}
	if _, err := seeder.SeedCurrent(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(paths.Timeline)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != existing {
		t.Errorf("timeline content changed, want untouched: %q", string(data))
	}
}
