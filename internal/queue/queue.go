package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// RevisitThresholdDays: if a doc's last-modified date trails its created
// date by at least this many days, a second "revisit" entry is queued so
// the chunker sees both the doc's origin and its substantial later edit.
const RevisitThresholdDays = 7

// Entry is one chronologically-ordered item in the ingestion queue: a doc
// snapshot, a GitHub issue, or a rendered session transcript.
type Entry struct {
	Date           string `json:"date"`
	Type           string `json:"type"` // "doc", "issue", "prompts"
	Path           string `json:"path"`
	Chars          int    `json:"chars"`
	Pass           string `json:"pass"` // "initial" or "revisit"
	FirstSeenDate  string `json:"first_seen_date,omitempty"`
	IssueNumber    int    `json:"issue_number,omitempty"`
	IssueTitle     string `json:"issue_title,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	PromptCount    int    `json:"prompt_count,omitempty"`
}

// BuildQueue walks configured doc directories, the local issue cache, and
// the session-history adapter, producing one Entry per artifact sorted by
// date, and writes queue.jsonl plus item_sizes.json into outputDir
// (defaulting to <projectRoot>/.engram). Grounded on
// original_source/engram/fold/queue.py's build_queue.
func BuildQueue(cfg config.Config, projectRoot, outputDir string, repo vcs.Repo) ([]Entry, error) {
	if outputDir == "" {
		outputDir = filepath.Join(projectRoot, ".engram")
	}
	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, fmt.Errorf("build queue: create output dir: %w", err)
	}

	issuesDir := filepath.Join(projectRoot, cfg.Sources.Issues)
	issues, err := LoadIssues(issuesDir)
	if err != nil {
		return nil, fmt.Errorf("build queue: load issues: %w", err)
	}
	issueDates := make(map[int]string, len(issues))
	for _, iss := range issues {
		issueDates[iss.Number] = iss.CreatedAt
	}

	var entries []Entry
	sizes := make(map[string]int)

	for _, docDir := range cfg.Sources.Docs {
		absDir := filepath.Join(projectRoot, docDir)
		info, err := os.Stat(absDir)
		if err != nil || !info.IsDir() {
			continue
		}
		globPaths, _ := filepath.Glob(filepath.Join(absDir, "*.md"))
		sort.Strings(globPaths)
		for _, docPath := range globPaths {
			data, err := os.ReadFile(docPath)
			if err != nil {
				continue
			}
			content := string(data)
			relPath, err := filepath.Rel(projectRoot, docPath)
			if err != nil {
				continue
			}
			sizes[relPath] = len(content)

			created := ParseFrontmatterDate(content, cfg.ProjectStart)
			if created == "" {
				if num, ok := ExtractIssueNumber(filepath.Base(docPath)); ok {
					if d, ok := issueDates[num]; ok {
						created = d
					}
				}
			}
			gitCreated, gitModified := GetDocGitDates(repo, relPath)
			if created == "" {
				created = gitCreated
			}
			if created == "" {
				if info, err := os.Stat(docPath); err == nil {
					created = info.ModTime().UTC().Format(time.RFC3339)
				}
			}
			modified := gitModified
			if modified == "" {
				modified = created
			}

			entries = append(entries, Entry{
				Date: created, Type: "doc", Path: relPath, Chars: len(content), Pass: "initial",
			})

			createdT, errC := ParseDate(created)
			modifiedT, errM := ParseDate(modified)
			if errC == nil && errM == nil {
				delta := int(modifiedT.Sub(createdT).Hours() / 24)
				if delta >= RevisitThresholdDays {
					entries = append(entries, Entry{
						Date: modified, Type: "doc", Path: relPath, Chars: len(content),
						Pass: "revisit", FirstSeenDate: created,
					})
				}
			}
		}
	}

	for _, iss := range issues {
		rendered := RenderIssueMarkdown(iss)
		relPath := filepath.Join(cfg.Sources.Issues, fmt.Sprintf("%d.json", iss.Number))
		sizes[relPath] = len(rendered)
		entries = append(entries, Entry{
			Date: iss.CreatedAt, Type: "issue", Path: relPath, Chars: len(rendered),
			Pass: "initial", IssueNumber: iss.Number, IssueTitle: iss.Title,
		})
	}

	sessionEntries, err := buildSessionEntries(cfg, projectRoot, outputDir, sizes)
	if err != nil {
		return nil, err
	}
	entries = append(entries, sessionEntries...)

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Date < entries[j].Date })

	if err := writeQueueFiles(outputDir, entries, sizes); err != nil {
		return nil, err
	}
	return entries, nil
}

func buildSessionEntries(cfg config.Config, projectRoot, outputDir string, sizes map[string]int) ([]Entry, error) {
	adapter, err := GetAdapter(cfg.Sources.Sessions.Format)
	if err != nil {
		return nil, fmt.Errorf("build queue: %w", err)
	}
	sessionPath := expandHome(cfg.Sources.Sessions.Path)
	sessionEntries, err := adapter.Parse(sessionPath, cfg.Sources.Sessions.ProjectMatch)
	if err != nil {
		return nil, fmt.Errorf("build queue: parse sessions: %w", err)
	}

	sessionsDir := filepath.Join(outputDir, "sessions")
	if err := os.MkdirAll(sessionsDir, 0750); err != nil {
		return nil, fmt.Errorf("build queue: create sessions dir: %w", err)
	}

	var out []Entry
	for _, se := range sessionEntries {
		sessionFile := filepath.Join(sessionsDir, se.SessionID+".md")
		if err := os.WriteFile(sessionFile, []byte(se.Rendered), 0644); err != nil {
			return nil, fmt.Errorf("build queue: write session file: %w", err)
		}
		relPath, err := filepath.Rel(projectRoot, sessionFile)
		if err != nil {
			relPath = sessionFile
		}
		sizes[relPath] = se.Chars
		out = append(out, Entry{
			Date: se.Date, Type: "prompts", Path: relPath, Chars: se.Chars,
			Pass: "initial", SessionID: se.SessionID, PromptCount: se.PromptCount,
		})
	}
	return out, nil
}

// ReadQueue reads queue.jsonl from outputDir, one Entry per line. Returns
// an empty, non-nil slice (not an error) if the file doesn't exist or is
// empty — the chunk scheduler treats both as "nothing left to dispatch".
func ReadQueue(outputDir string) ([]Entry, error) {
	path := filepath.Join(outputDir, "queue.jsonl")
	data, err := os.ReadFile(path) // #nosec G304 - project-controlled output dir
	if err != nil {
		if os.IsNotExist(err) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("read queue: %w", err)
	}
	entries := []Entry{}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("read queue: parse entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// WriteQueue overwrites queue.jsonl in outputDir with entries, one per
// line — used to persist the remainder after a chunk consumes its prefix.
func WriteQueue(outputDir string, entries []Entry) error {
	path := filepath.Join(outputDir, "queue.jsonl")
	f, err := os.Create(path) // #nosec G304 - project-controlled output dir
	if err != nil {
		return fmt.Errorf("write queue: %w", err)
	}
	defer f.Close()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("write queue: marshal entry: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write queue: %w", err)
		}
	}
	return nil
}

func writeQueueFiles(outputDir string, entries []Entry, sizes map[string]int) error {
	queuePath := filepath.Join(outputDir, "queue.jsonl")
	f, err := os.Create(queuePath)
	if err != nil {
		return fmt.Errorf("build queue: create queue.jsonl: %w", err)
	}
	defer f.Close()
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("build queue: marshal entry: %w", err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("build queue: write queue.jsonl: %w", err)
		}
	}

	sizesPath := filepath.Join(outputDir, "item_sizes.json")
	data, err := json.MarshalIndent(sizes, "", "  ")
	if err != nil {
		return fmt.Errorf("build queue: marshal sizes: %w", err)
	}
	if err := os.WriteFile(sizesPath, data, 0644); err != nil {
		return fmt.Errorf("build queue: write item_sizes.json: %w", err)
	}
	return nil
}

// FilterByDate returns the entries whose Date is on or after from. Shared
// by internal/bootstrap's forward-fold replay so the cutoff filter isn't
// duplicated at each call site.
func FilterByDate(entries []Entry, from time.Time) []Entry {
	var out []Entry
	for _, e := range entries {
		t, err := ParseDate(e.Date)
		if err != nil || !t.Before(from) {
			out = append(out, e)
		}
	}
	return out
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
