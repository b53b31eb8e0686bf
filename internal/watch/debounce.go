// Package watch collects engram's three live event sources: a filesystem
// watcher over the configured doc/issue directories, a git-log poller, and
// a coding-session-history poller. Each reports changed items to a
// BufferCallback, grounded on original_source/engram/server/watcher.py.
package watch

import (
	"sync"
	"time"
)

// Debouncer coalesces a burst of Trigger calls into a single fn invocation
// after delay has elapsed with no further triggers. Grounded on the
// teacher's cmd/bd daemon event loop, which uses the same pattern for
// export/import debouncing (its defining file was not present in the
// retrieval pack, so this is a from-scratch idiom-matched implementation).
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu     sync.Mutex
	timer  *time.Timer
	cancel bool
}

// NewDebouncer returns a Debouncer that calls fn delay after the last
// Trigger call.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the debounce window.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Cancel stops any pending fire and prevents future triggers from firing.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
