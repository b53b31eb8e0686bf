package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rajeshgoli/engram/internal/docs"
)

// EpistemicHistoryResult summarizes an externalization pass.
type EpistemicHistoryResult struct {
	MigratedEntries int
	CreatedFiles    int
	AppendedBlocks  int
}

var epistemicFieldNames = map[string]bool{
	"current position": true, "evidence": true, "history": true,
	"agent guidance": true, "corrected by": true, "superseded by": true,
}

var fieldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\*\*([A-Za-z][A-Za-z _/-]*):\*\*\s*(.*)$`),
	regexp.MustCompile(`^\*\*([A-Za-z][A-Za-z _/-]*)\*\*:\s*(.*)$`),
	regexp.MustCompile(`^([A-Za-z][A-Za-z _/-]*):\s*(.*)$`),
}

var epistemicHeadingPrefixRE = regexp.MustCompile(`^E\d{3,}:\s+`)
var trailingStatusArrowRE = regexp.MustCompile(`\s+\([^)]*\)\s*(?:→\s*\S+)?\s*$`)

// parseFieldHeader parses a markdown field header line, returning the
// lower-cased field name and its remainder text.
func parseFieldHeader(normalizedLine string) (field, remainder string, ok bool) {
	for _, pat := range fieldPatterns {
		if m := pat.FindStringSubmatch(normalizedLine); m != nil {
			return strings.ToLower(strings.TrimSpace(m[1])), strings.TrimSpace(m[2]), true
		}
	}
	return "", "", false
}

// isHistoryBoundary reports whether a line marks the end of an inline
// History field block: the next section heading, a known epistemic field,
// or any unrecognized bold field header.
func isHistoryBoundary(strippedLine string, hasField bool, fieldName string) bool {
	if strings.HasPrefix(strippedLine, "## ") {
		return true
	}
	if !hasField || fieldName == "history" {
		return false
	}
	if epistemicFieldNames[fieldName] {
		return true
	}
	normalized := strings.TrimSpace(strings.TrimPrefix(strippedLine, "- "))
	return strings.HasPrefix(normalized, "**")
}

// removeInlineHistory strips the History field block from an epistemic
// section's text, returning the updated text and the extracted lines.
func removeInlineHistory(sectionText string) (string, []string) {
	lines := strings.Split(sectionText, "\n")
	startIdx, endIdx := -1, -1
	var extracted []string
	inHistory := false

	for i, line := range lines {
		stripped := strings.TrimSpace(line)
		normalized := strings.TrimSpace(strings.TrimPrefix(stripped, "- "))
		fieldName, remainder, hasField := parseFieldHeader(normalized)

		if hasField && fieldName == "history" && startIdx == -1 {
			startIdx = i
			inHistory = true
			if remainder != "" {
				extracted = append(extracted, remainder)
			}
			continue
		}
		if !inHistory {
			continue
		}
		if isHistoryBoundary(stripped, hasField, fieldName) {
			endIdx = i
			break
		}
		extracted = append(extracted, line)
	}

	if startIdx == -1 {
		return sectionText, nil
	}
	if endIdx == -1 {
		endIdx = len(lines)
	}

	newLines := append(append([]string{}, lines[:startIdx]...), lines[endIdx:]...)

	var compacted []string
	prevBlank := false
	for _, line := range newLines {
		blank := strings.TrimSpace(line) == ""
		if blank && prevBlank {
			continue
		}
		compacted = append(compacted, line)
		prevBlank = blank
	}

	var cleaned []string
	for _, ln := range extracted {
		if strings.TrimSpace(ln) != "" {
			cleaned = append(cleaned, strings.TrimRight(ln, " \t"))
		}
	}

	return strings.Join(compacted, "\n"), cleaned
}

// extractSubject derives the human-readable subject from an epistemic
// heading, stripping the leading ID and trailing status/stub-arrow.
func extractSubject(heading string) string {
	text := epistemicHeadingPrefixRE.ReplaceAllString(strings.TrimSpace(heading), "")
	text = strings.TrimSpace(trailingStatusArrowRE.ReplaceAllString(text, ""))
	if text == "" {
		return "claim"
	}
	return text
}

func inferHistoryDir(epistemicDocPath string) string {
	return strings.TrimSuffix(epistemicDocPath, filepath.Ext(epistemicDocPath))
}

func inferHistoryPath(epistemicDocPath, entryID string) string {
	_, history, _ := docs.EpistemicPaths(inferHistoryDir(epistemicDocPath), entryID)
	return history
}

// ensureHistoryHeading creates the per-entry history file if it doesn't
// exist, or appends a heading for entryID if the file exists but lacks one.
// Returns true when a new file was created.
func ensureHistoryHeading(path, entryID, subject string) (bool, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return false, err
		}
		content := fmt.Sprintf("# Epistemic History\n\n## %s: %s\n\n", entryID, subject)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return false, err
		}
		return true, nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - project-controlled history path
	if err != nil {
		return false, err
	}
	text := string(data)
	if regexp.MustCompile(`(?m)^##\s+`+regexp.QuoteMeta(entryID)+`\b`).MatchString(text) {
		return false, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if !strings.HasSuffix(text, "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return false, err
		}
	}
	_, err = fmt.Fprintf(f, "\n## %s: %s\n\n", entryID, subject)
	return false, err
}

// appendHistoryLines appends a migrated history block to a per-ID file,
// normalizing each line to a "- " bullet.
func appendHistoryLines(path string, historyLines []string) error {
	var normalized []string
	for _, line := range historyLines {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}
		if strings.HasPrefix(stripped, "- ") {
			normalized = append(normalized, stripped)
		} else {
			normalized = append(normalized, "- "+stripped)
		}
	}
	if len(normalized) == 0 {
		return nil
	}

	data, err := os.ReadFile(path) // #nosec G304 - project-controlled history path
	if err != nil {
		return err
	}
	text := string(data)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if !strings.HasSuffix(text, "\n") {
		if _, err := f.WriteString("\n"); err != nil {
			return err
		}
	}
	for _, line := range normalized {
		if _, err := fmt.Fprintf(f, "%s\n", line); err != nil {
			return err
		}
	}
	_, err = f.WriteString("\n")
	return err
}

// ExternalizeEpistemicHistory moves inline History field blocks out of
// epistemicPath into per-entry files under its inferred history directory
// (e.g. docs/decisions/epistemic_state.md -> docs/decisions/epistemic_state/history/E005.md).
// Stub and refuted entries are skipped — their history, if any, stays
// wherever it already lives. Grounded on
// original_source/engram/migrate_epistemic_history.py.
func ExternalizeEpistemicHistory(epistemicPath string) (EpistemicHistoryResult, error) {
	data, err := os.ReadFile(epistemicPath) // #nosec G304 - project-controlled doc path
	if err != nil {
		if os.IsNotExist(err) {
			return EpistemicHistoryResult{}, nil
		}
		return EpistemicHistoryResult{}, fmt.Errorf("externalize epistemic history: read: %w", err)
	}
	original := string(data)
	sections := docs.ParseSections(original)
	lines := strings.Split(original, "\n")

	var result EpistemicHistoryResult

	for i := len(sections) - 1; i >= 0; i-- {
		sec := sections[i]
		prefix, num, ok := docs.HeadingID(sec.Heading)
		if !ok || prefix != "E" {
			continue
		}
		if docs.IsStub(sec.Heading) || sec.Status == "refuted" {
			continue
		}
		entryID := docs.FormatID(prefix, num)

		sectionText := strings.Join(lines[sec.StartLine:sec.EndLine], "\n")
		updatedSection, historyLines := removeInlineHistory(sectionText)
		if len(historyLines) == 0 {
			continue
		}

		historyPath := inferHistoryPath(epistemicPath, entryID)
		subject := extractSubject(sec.Heading)
		created, err := ensureHistoryHeading(historyPath, entryID, subject)
		if err != nil {
			return EpistemicHistoryResult{}, fmt.Errorf("externalize epistemic history: ensure heading: %w", err)
		}
		if created {
			result.CreatedFiles++
		}
		if err := appendHistoryLines(historyPath, historyLines); err != nil {
			return EpistemicHistoryResult{}, fmt.Errorf("externalize epistemic history: append: %w", err)
		}
		result.AppendedBlocks++

		newSectionLines := strings.Split(updatedSection, "\n")
		rebuilt := append(append([]string{}, lines[:sec.StartLine]...), newSectionLines...)
		lines = append(rebuilt, lines[sec.EndLine:]...)
		result.MigratedEntries++
	}

	updated := strings.Join(lines, "\n")
	if strings.HasSuffix(original, "\n") && !strings.HasSuffix(updated, "\n") {
		updated += "\n"
	}
	if err := os.WriteFile(epistemicPath, []byte(updated), 0644); err != nil {
		return EpistemicHistoryResult{}, fmt.Errorf("externalize epistemic history: write: %w", err)
	}

	return result, nil
}
