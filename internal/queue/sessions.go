// Package queue builds the chronological ingestion queue: one entry per
// doc, issue, and session prompt transcript, sorted by date and written as
// JSONL for the chunker to consume. Grounded on
// original_source/engram/fold/queue.py, fold/sources.py, and
// fold/sessions.py.
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// SessionEntry is one parsed coding-session transcript, rendered to
// markdown and ready to be written to a file for the chunker to ingest.
type SessionEntry struct {
	SessionID   string
	Date        string // ISO 8601
	Chars       int
	PromptCount int
	Rendered    string
}

// MinPromptChars filters out slash commands and trivial inputs from a
// session transcript.
const MinPromptChars = 25

// SessionAdapter parses a session-history file format into SessionEntry
// records, filtered to the projects named in projectMatch (all projects if
// empty).
type SessionAdapter interface {
	Parse(path string, projectMatch []string) ([]SessionEntry, error)
}

type rawPrompt struct {
	Project   string `json:"project"`
	Display   string `json:"display"`
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"` // epoch millis
}

// ClaudeCodeAdapter parses ~/.claude/history.jsonl, grouping prompts by
// session and rendering each session as markdown.
type ClaudeCodeAdapter struct{}

func (ClaudeCodeAdapter) Parse(path string, projectMatch []string) ([]SessionEntry, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse claude-code session history: %w", err)
	}
	defer f.Close()

	sessions := make(map[string][]rawPrompt)
	var order []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var p rawPrompt
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			continue
		}
		if len(projectMatch) > 0 && !matchesAny(strings.ToLower(p.Project), projectMatch) {
			continue
		}
		if strings.HasPrefix(p.Display, "/") || len(p.Display) < MinPromptChars {
			continue
		}
		id := p.SessionID
		if id == "" {
			id = "unknown"
		}
		if _, ok := sessions[id]; !ok {
			order = append(order, id)
		}
		sessions[id] = append(sessions[id], p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parse claude-code session history: %w", err)
	}

	var entries []SessionEntry
	for _, id := range order {
		prompts := sessions[id]
		if len(prompts) == 0 {
			continue
		}
		rendered := renderSessionMarkdown(prompts)
		date := time.UnixMilli(prompts[0].Timestamp).UTC().Format(time.RFC3339)
		entries = append(entries, SessionEntry{
			SessionID:   id,
			Date:        date,
			Chars:       len(rendered),
			PromptCount: len(prompts),
			Rendered:    rendered,
		})
	}
	return entries, nil
}

func matchesAny(project string, substrings []string) bool {
	for _, s := range substrings {
		if strings.Contains(project, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func renderSessionMarkdown(prompts []rawPrompt) string {
	var b strings.Builder
	for _, p := range prompts {
		ts := time.UnixMilli(p.Timestamp).UTC()
		fmt.Fprintf(&b, "**[%s]** %s\n\n", ts.Format("15:04"), p.Display)
	}
	return b.String()
}

// CodexAdapter is a stub for OpenAI Codex session transcripts; the format
// is not yet defined upstream.
type CodexAdapter struct{}

func (CodexAdapter) Parse(path string, projectMatch []string) ([]SessionEntry, error) {
	return nil, nil
}

var adapters = map[string]func() SessionAdapter{
	"claude-code": func() SessionAdapter { return ClaudeCodeAdapter{} },
	"codex":       func() SessionAdapter { return CodexAdapter{} },
}

// GetAdapter returns a SessionAdapter for the named format.
func GetAdapter(format string) (SessionAdapter, error) {
	ctor, ok := adapters[format]
	if !ok {
		return nil, fmt.Errorf("unknown session format %q", format)
	}
	return ctor(), nil
}
