package watch

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// GitPoller polls `git log --since` to detect new commits, grounded on
// original_source/engram/server/watcher.py's GitPoller.
type GitPoller struct {
	projectRoot string
	callback    BufferCallback
	sourceDirs  []string
	logger      *log.Logger

	lastCommit string
}

// NewGitPoller returns a GitPoller rooted at projectRoot, filtering touched
// files to sourceDirs when non-empty.
func NewGitPoller(projectRoot string, callback BufferCallback, sourceDirs []string, logger *log.Logger) *GitPoller {
	return &GitPoller{projectRoot: projectRoot, callback: callback, sourceDirs: sourceDirs, logger: logger}
}

// SetLastCommit sets the bookmark for the last known commit.
func (p *GitPoller) SetLastCommit(commit string) { p.lastCommit = commit }

// LastCommit returns the bookmark for the last known commit.
func (p *GitPoller) LastCommit() string { return p.lastCommit }

func (p *GitPoller) run(timeout time.Duration, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = p.projectRoot
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// Poll checks for new commits since the last poll, invoking the callback
// for each changed file touched since the last bookmark. Returns the list
// of new commit hashes found, newest first (`git log`'s default order).
// The first poll after construction never backfills — it only
// records the current HEAD as the bookmark.
func (p *GitPoller) Poll() []string {
	head, ok := p.run(10*time.Second, "rev-parse", "HEAD")
	if !ok {
		return nil
	}
	if p.lastCommit == head {
		return nil
	}
	if p.lastCommit == "" {
		p.lastCommit = head
		return nil
	}

	logOut, ok := p.run(30*time.Second, "log", fmt.Sprintf("%s..HEAD", p.lastCommit), "--format=%H")
	if !ok {
		return nil
	}
	var commits []string
	for _, line := range strings.Split(logOut, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			commits = append(commits, line)
		}
	}
	if len(commits) == 0 {
		return nil
	}

	old := p.lastCommit
	p.lastCommit = head

	diffOut, ok := p.run(30*time.Second, "diff", "--name-only", fmt.Sprintf("%s..%s", old, head))
	if ok {
		for _, f := range strings.Split(diffOut, "\n") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if len(p.sourceDirs) > 0 && !matchesSourceDir(f, p.sourceDirs) {
				continue
			}
			chars := 0
			if info, err := os.Stat(filepath.Join(p.projectRoot, f)); err == nil {
				chars = int(info.Size())
			}
			p.callback(f, "doc", chars, "", "")
		}
	}

	return commits
}

func matchesSourceDir(path string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(path, d) {
			return true
		}
	}
	return false
}
