package chunk

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rajeshgoli/engram/internal/vcs"
)

// ActiveChunkRecord is the persistent on-disk record of the single chunk
// allowed to be outstanding at a time. Grounded on cli.py's
// _write_active_chunk_lock payload, extended with WorktreePath per
// spec.md §4.6.6 so clear-active-chunk can find and remove the worktree a
// triage or fold chunk may have checked out.
type ActiveChunkRecord struct {
	ChunkID      int       `yaml:"chunk_id"`
	ChunkType    string    `yaml:"chunk_type"`
	InputPath    string    `yaml:"input_path"`
	PromptPath   string    `yaml:"prompt_path"`
	CreatedAt    time.Time `yaml:"created_at"`
	WorktreePath string    `yaml:"worktree_path,omitempty"`
}

func activeChunkLockPath(engramDir string) string {
	return filepath.Join(engramDir, "active_chunk.yaml")
}

// WriteActiveChunkRecord persists rec as the active-chunk lock. Grounded on
// cli.py's _write_active_chunk_lock.
func WriteActiveChunkRecord(engramDir string, rec ActiveChunkRecord) error {
	if err := os.MkdirAll(engramDir, 0750); err != nil {
		return fmt.Errorf("write active chunk lock: %w", err)
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("write active chunk lock: %w", err)
	}
	if err := os.WriteFile(activeChunkLockPath(engramDir), data, 0644); err != nil {
		return fmt.Errorf("write active chunk lock: %w", err)
	}
	return nil
}

// ReadActiveChunkRecord reads the active-chunk lock, returning ok=false if
// none exists.
func ReadActiveChunkRecord(engramDir string) (ActiveChunkRecord, bool, error) {
	data, err := os.ReadFile(activeChunkLockPath(engramDir)) // #nosec G304 - project-controlled lock path
	if err != nil {
		if os.IsNotExist(err) {
			return ActiveChunkRecord{}, false, nil
		}
		return ActiveChunkRecord{}, false, fmt.Errorf("read active chunk lock: %w", err)
	}
	var rec ActiveChunkRecord
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return ActiveChunkRecord{}, false, fmt.Errorf("read active chunk lock: %w", err)
	}
	return rec, true, nil
}

// ErrActiveChunkLocked is returned by EnforceSingleActiveChunk when a chunk
// is already outstanding and no auto-clearing fold commit was found.
type ErrActiveChunkLocked struct {
	ChunkID   int
	InputPath string
}

func (e *ErrActiveChunkLocked) Error() string {
	return fmt.Sprintf(
		"active chunk lock present (chunk_id: %d, input: %s); process the existing chunk before generating a new one, or run clear-active-chunk to abandon and regenerate",
		e.ChunkID, e.InputPath)
}

// foldCommitRE matches the commit-message forms that auto-clear an active
// chunk lock for the given chunk id: "Knowledge fold: chunk N" or
// "Fold chunk N" (with "_" or " " between "chunk" and the number, and any
// amount of zero-padding). Grounded on cli.py's auto-clear regex
// (chunk(?:_| )0*{chunk_id}\b), extended per spec.md §4.6.6 to also accept
// the "Fold chunk N" form.
func foldCommitRE(chunkID int) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?:Knowledge fold: chunk|Fold chunk)[ _]0*%d\b`, chunkID))
}

// EnforceSingleActiveChunk refuses to let a new chunk be generated while
// engramDir/active_chunk.yaml records an outstanding chunk, unless a git
// commit dated on or after the lock's created-at time matches the
// auto-clear pattern for its chunk id — in which case the lock (and any
// worktree it owned) is cleared and nil is returned. Grounded on cli.py's
// _enforce_single_active_chunk.
func EnforceSingleActiveChunk(engramDir string, repo vcs.Repo) error {
	rec, ok, err := ReadActiveChunkRecord(engramDir)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if repo != nil {
		if subjects, err := repo.CommitSubjectsSince(rec.CreatedAt); err == nil {
			re := foldCommitRE(rec.ChunkID)
			for _, subject := range subjects {
				if re.MatchString(subject) {
					CleanupChunkContextWorktree(repo, rec.WorktreePath)
					if rmErr := os.Remove(activeChunkLockPath(engramDir)); rmErr != nil && !os.IsNotExist(rmErr) {
						return fmt.Errorf("auto-clear active chunk lock: %w", rmErr)
					}
					return nil
				}
			}
		}
	}

	return &ErrActiveChunkLocked{ChunkID: rec.ChunkID, InputPath: rec.InputPath}
}

// ClearActiveChunk removes the active-chunk lock and best-effort cleans up
// any worktree it recorded. Returns ok=false if no lock was present.
// Grounded on cli.py's clear_active_chunk_cmd.
func ClearActiveChunk(engramDir string, repo vcs.Repo) (bool, error) {
	rec, ok, err := ReadActiveChunkRecord(engramDir)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if repo != nil && rec.WorktreePath != "" {
		CleanupChunkContextWorktree(repo, rec.WorktreePath)
	}
	if err := os.Remove(activeChunkLockPath(engramDir)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("clear active chunk: %w", err)
	}
	return true, nil
}
