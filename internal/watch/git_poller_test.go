package watch_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/rajeshgoli/engram/internal/watch"
)

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test.com")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func TestGitPollerFirstPollJustBookmarksHead(t *testing.T) {
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "init")

	var got []string
	p := watch.NewGitPoller(dir, func(path, itemType string, chars int, date, metadata string) {
		got = append(got, path)
	}, nil, nil)

	commits := p.Poll()
	if commits != nil {
		t.Errorf("first poll returned %v, want nil (no backfill)", commits)
	}
	if p.LastCommit() == "" {
		t.Error("expected last commit to be bookmarked after first poll")
	}
	if len(got) != 0 {
		t.Errorf("callback invoked on first poll: %v", got)
	}
}

func TestGitPollerDetectsNewCommit(t *testing.T) {
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "init")

	var got []string
	p := watch.NewGitPoller(dir, func(path, itemType string, chars int, date, metadata string) {
		got = append(got, path)
	}, nil, nil)
	p.Poll()

	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "second")

	commits := p.Poll()
	if len(commits) != 1 {
		t.Fatalf("commits = %v, want 1 new commit", commits)
	}
	if len(got) != 1 || got[0] != "b.txt" {
		t.Errorf("callback paths = %v, want [b.txt]", got)
	}
}
