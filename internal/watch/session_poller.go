package watch

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/queue"
)

// SessionPoller watches the session-history file's mtime and, when it
// changes, re-parses it for new prompts grouped by session. Grounded on
// original_source/engram/server/watcher.py's SessionPoller.
//
// The Python original tracks a byte offset into the history file for true
// incremental parsing. internal/queue's SessionAdapter.Parse (grounded on
// fold/sessions.py) re-parses the whole file on every call rather than
// accepting a start offset, so this poller instead diffs each session's
// prompt count against the last-seen count — functionally equivalent for
// append-only history files, at the cost of re-reading the full file on
// every change rather than only the new tail.
type SessionPoller struct {
	cfg         config.Config
	projectRoot string
	callback    BufferCallback
	logger      *log.Logger

	path         string
	projectMatch []string
	format       string

	lastMtime         float64
	knownPromptCounts map[string]int
}

// NewSessionPoller returns a SessionPoller configured from cfg.Sources.Sessions.
func NewSessionPoller(cfg config.Config, projectRoot string, callback BufferCallback, logger *log.Logger) *SessionPoller {
	path := cfg.Sources.Sessions.Path
	if path == "" {
		path = "~/.claude/history.jsonl"
	}
	return &SessionPoller{
		cfg:               cfg,
		projectRoot:       projectRoot,
		callback:          callback,
		logger:            logger,
		path:              expandHome(path),
		projectMatch:      cfg.Sources.Sessions.ProjectMatch,
		format:            cfg.Sources.Sessions.Format,
		knownPromptCounts: make(map[string]int),
	}
}

// SetLastMtime sets the bookmark for the last known file mtime.
func (p *SessionPoller) SetLastMtime(mtime float64) { p.lastMtime = mtime }

// LastMtime returns the bookmark for the last known file mtime.
func (p *SessionPoller) LastMtime() float64 { return p.lastMtime }

func (p *SessionPoller) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

// Poll checks the session history file for new entries, writing an
// incremental markdown snapshot per session under .engram/sessions and
// invoking the callback once per session with new activity. Returns the
// count of sessions with new entries.
func (p *SessionPoller) Poll() int {
	info, err := os.Stat(p.path)
	if err != nil {
		return 0
	}
	mtime := float64(info.ModTime().UnixNano()) / 1e9
	if p.lastMtime != 0 && mtime <= p.lastMtime {
		return 0
	}

	adapter, err := queue.GetAdapter(p.format)
	if err != nil {
		p.logf("unknown session format: %s", p.format)
		p.lastMtime = mtime
		return 0
	}

	entries, err := adapter.Parse(p.path, p.projectMatch)
	if err != nil {
		p.logf("session poll: %v", err)
		p.lastMtime = mtime
		return 0
	}

	count := 0
	for _, entry := range entries {
		known := p.knownPromptCounts[entry.SessionID]
		if entry.PromptCount <= known {
			continue
		}
		newPromptCount := entry.PromptCount - known

		relPath, chars := p.writeSessionFile(entry.SessionID, entry.Rendered)
		meta, _ := json.Marshal(map[string]int{"prompt_count": newPromptCount})
		p.callback(relPath, "prompts", chars, entry.Date, string(meta))
		p.knownPromptCounts[entry.SessionID] = entry.PromptCount
		count++
	}

	p.lastMtime = mtime
	return count
}

func (p *SessionPoller) writeSessionFile(sessionID, rendered string) (string, int) {
	sessionsDir := filepath.Join(p.projectRoot, ".engram", "sessions")
	if err := os.MkdirAll(sessionsDir, 0755); err != nil {
		return filepath.Join(".engram", "sessions", sessionID+".md"), len(rendered)
	}
	sessionFile := filepath.Join(sessionsDir, sessionID+".md")
	_ = os.WriteFile(sessionFile, []byte(rendered), 0644) // #nosec G306 - project-local scratch file

	rel, err := filepath.Rel(p.projectRoot, sessionFile)
	if err != nil {
		rel = sessionFile
	}
	chars := len(rendered)
	if info, err := os.Stat(sessionFile); err == nil {
		chars = int(info.Size())
	}
	return rel, chars
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
