package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rajeshgoli/engram/internal/vcs"
)

// Issue is a single GitHub issue pulled by "gh issue list" (spec.md's
// Supplemented Features, grounded on fold/sources.py's pull_issues/
// render_issue_markdown).
type Issue struct {
	Number    int             `json:"number"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	CreatedAt string          `json:"createdAt"`
	UpdatedAt string          `json:"updatedAt"`
	State     string          `json:"state"`
	Labels    []IssueLabel    `json:"labels"`
	Comments  []IssueComment  `json:"comments"`
}

type IssueLabel struct {
	Name string `json:"name"`
}

type IssueComment struct {
	Author    IssueAuthor `json:"author"`
	CreatedAt string      `json:"createdAt"`
	Body      string      `json:"body"`
}

type IssueAuthor struct {
	Login string `json:"login"`
}

// RenderIssueMarkdown renders a pulled issue as clean markdown: state and
// labels, body, then a Comments section.
func RenderIssueMarkdown(issue Issue) string {
	var b strings.Builder

	state := issue.State
	if state == "" {
		state = "UNKNOWN"
	}
	meta := "**State:** " + state
	if len(issue.Labels) > 0 {
		names := make([]string, len(issue.Labels))
		for i, l := range issue.Labels {
			names[i] = l.Name
		}
		meta += " | **Labels:** " + strings.Join(names, ", ")
	}
	b.WriteString(meta)
	b.WriteString("\n\n")
	b.WriteString(issue.Body)

	if len(issue.Comments) > 0 {
		b.WriteString("\n\n### Comments\n\n")
		for _, c := range issue.Comments {
			author := c.Author.Login
			if author == "" {
				author = "unknown"
			}
			date := c.CreatedAt
			if len(date) > 10 {
				date = date[:10]
			}
			fmt.Fprintf(&b, "**%s** (%s):\n\n%s\n\n", author, date, c.Body)
		}
	}
	return b.String()
}

// LoadIssues reads every *.json file in issuesDir as an Issue.
func LoadIssues(issuesDir string) ([]Issue, error) {
	entries, err := os.ReadDir(issuesDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load issues: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var issues []Issue
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(issuesDir, name))
		if err != nil {
			continue
		}
		var issue Issue
		if err := json.Unmarshal(data, &issue); err != nil {
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

var frontmatterDateRE = regexp.MustCompile(`\*\*Date:\*\*\s*(\d{4}-\d{2}-\d{2})`)

// ParseFrontmatterDate extracts a "**Date:** 2026-02-08" style date from
// the first 2000 characters of a document. Dates before projectStart (if
// non-empty) are treated as typos and discarded.
func ParseFrontmatterDate(content, projectStart string) string {
	prefix := content
	if len(prefix) > 2000 {
		prefix = prefix[:2000]
	}
	m := frontmatterDateRE.FindStringSubmatch(prefix)
	if m == nil {
		return ""
	}
	date := m[1]
	if projectStart != "" && date < projectStart {
		return ""
	}
	return date + "T00:00:00+00:00"
}

var issueNumberRE = regexp.MustCompile(`^(\d+)_`)

// ExtractIssueNumber pulls a leading issue number off a filename like
// "1343_backtest_analysis.md".
func ExtractIssueNumber(filename string) (int, bool) {
	m := issueNumberRE.FindStringSubmatch(filename)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseDate parses an ISO date or datetime string, tolerating a
// date-only fallback.
func ParseDate(s string) (time.Time, error) {
	s = strings.ReplaceAll(s, "Z", "+00:00")
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q", s)
}

// GetDocGitDates returns the (created, modified) ISO dates for a doc,
// following renames for the creation date. Either may be empty if the
// file has no commit history (e.g. uncommitted).
func GetDocGitDates(repo vcs.Repo, relPath string) (created, modified string) {
	if t, err := repo.FirstCommitDate(relPath); err == nil {
		created = t.Format(time.RFC3339)
	}
	if t, err := repo.LastCommitDate(relPath); err == nil {
		modified = t.Format(time.RFC3339)
	}
	return
}
