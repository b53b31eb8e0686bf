// Package briefing regenerates the L0 briefing section embedded in the
// project's entrypoint doc (CLAUDE.md by default): a compressed summary of
// the four living docs, kept current after every successful dispatch.
// Grounded on original_source/engram/server/dispatcher.py's
// _regenerate_l0_briefing/_inject_section (duplicated there; consolidated
// here into one implementation) and server/briefing.py.
package briefing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rajeshgoli/engram/internal/agent"
	"github.com/rajeshgoli/engram/internal/config"
)

// truncateChars caps each living doc's contribution to the briefing prompt,
// matching dispatcher.py's 10_000-char truncation.
const truncateChars = 10_000

// livingDocOrder is the fixed section order the briefing prompt presents
// docs in, matching dispatcher.py's iteration order.
var livingDocOrder = []struct {
	title string
	path  func(config.DocPaths) string
}{
	{"Timeline", func(p config.DocPaths) string { return p.Timeline }},
	{"Concepts", func(p config.DocPaths) string { return p.Concepts }},
	{"Epistemic", func(p config.DocPaths) string { return p.Epistemic }},
	{"Workflows", func(p config.DocPaths) string { return p.Workflows }},
}

// Regenerate reads the four living docs, asks inv to compress them into a
// briefing, and injects the result into the project's briefing file under
// cfg.Briefing.Section. Returns the generated text (empty if nothing was
// written — missing target file, no living docs, or empty agent response
// are all treated as soft no-ops, matching the Python original's warnings).
func Regenerate(ctx context.Context, cfg config.Config, projectRoot string, paths config.DocPaths, inv agent.BriefingInvoker) (string, error) {
	targetFile := filepath.Join(projectRoot, cfg.Briefing.File)
	if _, err := os.Stat(targetFile); err != nil {
		return "", nil
	}

	var sections []string
	for _, ld := range livingDocOrder {
		path := ld.path(paths)
		data, err := os.ReadFile(path) // #nosec G304 - project-controlled living-doc path
		if err != nil {
			continue
		}
		content := string(data)
		if len(content) > truncateChars {
			content = content[:truncateChars] + "\n\n[... truncated for briefing ...]\n"
		}
		sections = append(sections, fmt.Sprintf("### %s\n%s", ld.title, content))
	}
	if len(sections) == 0 {
		return "", nil
	}

	text, err := inv.GenerateBriefing(ctx, strings.Join(sections, "\n\n"))
	if err != nil {
		return "", fmt.Errorf("regenerate briefing: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}

	if err := InjectSection(targetFile, cfg.Briefing.Section, text); err != nil {
		return "", fmt.Errorf("regenerate briefing: %w", err)
	}
	return text, nil
}

// InjectSection finds sectionHeader in the file at filePath and replaces
// everything up to the next heading of equal or higher level (or EOF) with
// content, appending the section if the header isn't present. Grounded on
// dispatcher.py's _inject_section.
func InjectSection(filePath, sectionHeader, content string) error {
	data, err := os.ReadFile(filePath) // #nosec G304 - project-controlled briefing target
	if err != nil {
		return fmt.Errorf("inject section: %w", err)
	}
	text := string(data)
	headerLevel := strings.Count(sectionHeader, "#")

	start := strings.Index(text, sectionHeader)
	var out string
	if start == -1 {
		if !strings.HasSuffix(text, "\n") {
			text += "\n"
		}
		out = text + "\n" + sectionHeader + "\n\n" + content + "\n"
	} else {
		sectionStart := start + len(sectionHeader)
		rest := text[sectionStart:]
		lines := strings.Split(rest, "\n")
		endOffset := len(rest)

		offset := 0
		for i, line := range lines {
			if i > 0 {
				stripped := strings.TrimLeft(line, " \t")
				if strings.HasPrefix(stripped, "#") {
					level := len(stripped) - len(strings.TrimLeft(stripped, "#"))
					if level <= headerLevel {
						endOffset = offset
						break
					}
				}
			}
			offset += len(line) + 1
		}

		out = text[:start] + sectionHeader + "\n\n" + content + "\n" + text[sectionStart+endOffset:]
	}

	if err := os.WriteFile(filePath, []byte(out), 0644); err != nil { // #nosec G304
		return fmt.Errorf("inject section: write: %w", err)
	}
	return nil
}
