package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rajeshgoli/engram/internal/vcs"
)

// resolveChunkContextCommit picks the commit a chunk's context worktree
// should be checked out at: an explicit fallback (e.g. the fold-forward
// reference commit) first, then a date-hint-nearest commit, then HEAD.
// Grounded on chunker.py's _resolve_chunk_context_commit.
func resolveChunkContextCommit(repo vcs.Repo, dateHint, fallbackCommit string) string {
	if fallbackCommit != "" {
		return fallbackCommit
	}
	if dateHint != "" {
		if t, err := time.Parse("2006-01-02", dateHint); err == nil {
			if c, err := repo.ResolveRefCommit(t); err == nil && c != "" {
				return c
			}
		}
	}
	if c, err := repo.ResolveHeadCommit(); err == nil {
		return c
	}
	return ""
}

// createChunkContextWorktree creates a per-chunk temporary worktree under
// the system temp directory, named so IsSafeChunkWorktreePath/
// ChunkWorktreeNameRE can later verify it's safe to remove. Returns ""
// (not an error) if worktree creation fails — context packs are an
// optimization, not a hard requirement for chunk assembly.
func createChunkContextWorktree(repo vcs.Repo, chunkID int, commit string) string {
	if commit == "" {
		return ""
	}
	shortCommit := commit
	if len(shortCommit) > 8 {
		shortCommit = shortCommit[:8]
	}
	dir, err := os.MkdirTemp("", fmt.Sprintf("engram-chunk-%03d-%s-", chunkID, shortCommit))
	if err != nil {
		return ""
	}
	if err := os.Remove(dir); err != nil {
		return ""
	}
	path, err := repo.CreateDetachedWorktree(dir, commit)
	if err != nil {
		return ""
	}
	return path
}

// CleanupChunkContextWorktree removes a previously-created context
// worktree, refusing to touch anything outside the system temp directory
// or whose name doesn't match the expected chunk-worktree pattern.
// Grounded on chunker.py's cleanup_chunk_context_worktree.
func CleanupChunkContextWorktree(repo vcs.Repo, worktreePath string) {
	if worktreePath == "" {
		return
	}
	abs, err := filepath.Abs(worktreePath)
	if err != nil || !vcs.IsSafeChunkWorktreePath(abs) {
		return
	}
	_ = repo.RemoveWorktree(abs)
	_ = os.RemoveAll(abs)
}
