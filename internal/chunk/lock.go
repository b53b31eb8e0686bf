package chunk

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ActiveChunkLock guards against two concurrent NextChunk runs racing on
// the same project: queue.jsonl truncation, the allocator's ID counters,
// and chunks_manifest.yaml are none of them safe for concurrent writers.
// Grounded on the file-lock idiom cmd/bd/sync.go uses for its own
// single-writer sections.
type ActiveChunkLock struct {
	lock *flock.Flock
}

// AcquireActiveChunkLock attempts to acquire the exclusive chunk lock under
// engramDir/.chunk.lock. Returns ok=false (no error) if another process
// already holds it.
func AcquireActiveChunkLock(engramDir string) (*ActiveChunkLock, bool, error) {
	lockPath := filepath.Join(engramDir, ".chunk.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, false, fmt.Errorf("acquire chunk lock: %w", err)
	}
	if !locked {
		return nil, false, nil
	}
	return &ActiveChunkLock{lock: lock}, true, nil
}

// Release unlocks the chunk lock.
func (l *ActiveChunkLock) Release() error {
	if l == nil || l.lock == nil {
		return nil
	}
	return l.lock.Unlock()
}
