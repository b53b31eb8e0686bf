package chunk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/queue"
)

var sessionPromptLineRE = regexp.MustCompile(`^\*\*\[(\d{2}:\d{2})\]\*\*\s+(.*)$`)
var sessionSMPromptRE = regexp.MustCompile(`(?i)^\[sm[^\]]*\]`)
var sessionRelayPromptRE = regexp.MustCompile(`(?i)^\[input from:[^\]]+\]`)

const sessionRelayMaxChars = 320

// compactPromptMarkdown reduces prompt-session noise for chunk inputs:
// drops telemetry lines, trims long relay lines, and collapses consecutive
// duplicate prompt texts. Grounded on chunker.py's _compact_prompt_markdown.
func compactPromptMarkdown(content string) string {
	var out []string
	lastPrompt := ""
	hasLast := false

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimRight(raw, " \t")
		m := sessionPromptLineRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			if strings.TrimSpace(line) != "" {
				out = append(out, line)
			}
			continue
		}
		ts, text := m[1], strings.TrimSpace(m[2])
		if sessionSMPromptRE.MatchString(text) {
			continue
		}
		if sessionRelayPromptRE.MatchString(text) && len(text) > sessionRelayMaxChars {
			clipped := text[:sessionRelayMaxChars-3]
			if idx := strings.LastIndex(clipped, " "); idx > 0 {
				clipped = clipped[:idx]
			}
			text = clipped + "..."
		}
		if hasLast && text == lastPrompt {
			continue
		}
		out = append(out, fmt.Sprintf("**[%s]** %s", ts, text))
		out = append(out, "")
		lastPrompt, hasLast = text, true
	}
	return strings.TrimSpace(strings.Join(out, "\n")) + "\n"
}

// renderItemContent renders one queue item as markdown for the chunk
// input, grounded on chunker.py's _render_item_content.
func renderItemContent(item queue.Entry, projectRoot string) string {
	tag := "INITIAL"
	if item.Pass == "revisit" {
		tag = "REVISIT"
	}
	itemPath := filepath.Join(projectRoot, item.Path)

	var header strings.Builder
	switch item.Type {
	case "prompts":
		header.WriteString(fmt.Sprintf("## [USER PROMPTS] Session (%d prompts)\n", item.PromptCount))
		header.WriteString(fmt.Sprintf("**Date:** %s\n\n", shortDate(item.Date)))
	case "issue":
		header.WriteString(fmt.Sprintf("## [%s] Issue #%d: %s\n", tag, item.IssueNumber, item.IssueTitle))
		header.WriteString(fmt.Sprintf("**Created:** %s\n\n", shortDate(item.Date)))
	default:
		header.WriteString(fmt.Sprintf("## [%s] Doc: %s\n", tag, item.Path))
		header.WriteString(fmt.Sprintf("**Created:** %s", shortDate(item.Date)))
		if tag == "REVISIT" {
			header.WriteString(fmt.Sprintf(" | **Modified:** %s", shortDate(item.Date)))
			header.WriteString(fmt.Sprintf(" | **First seen:** %s", shortDate(item.FirstSeenDate)))
			header.WriteString("\nThis doc was updated since first processed. Check existing entries and update based on what changed.")
		}
		header.WriteString("\n\n")
	}

	var content string
	data, err := os.ReadFile(itemPath) // #nosec G304 - queue-controlled project-relative path
	if err != nil {
		content = fmt.Sprintf("[FILE NOT FOUND: %s]\n", itemPath)
	} else if item.Type == "issue" {
		var issue queue.Issue
		if jerr := json.Unmarshal(data, &issue); jerr == nil {
			content = queue.RenderIssueMarkdown(issue)
		} else {
			content = string(data)
		}
	} else {
		content = string(data)
	}

	if item.Type == "prompts" {
		content = compactPromptMarkdown(content)
	}

	return header.String() + content + "\n\n---\n\n"
}

func formatIDList(ids map[string][]string) string {
	if len(ids) == 0 {
		return "(none — do not create new IDs in this chunk)"
	}
	var b strings.Builder
	for _, prefix := range sortedPrefixes() {
		if list := ids[prefix]; len(list) > 0 {
			fmt.Fprintf(&b, "- %s: %s\n", prefix, strings.Join(list, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// renderChunkInput renders a normal fold chunk's input.md: system
// instructions followed by the rendered queue items. Grounded on
// prompt.py's render_chunk_input, generalized since the original's Jinja
// template file was not part of the retrieval pack (see DESIGN.md).
func renderChunkInput(chunkID int, dateRange, itemsContent string, preAssigned map[string][]string, contextWorktree, contextCommit string) string {
	var b strings.Builder
	b.WriteString("# Knowledge Fold Instructions\n\n")
	b.WriteString("Extract concepts, epistemic claims, timeline events, and workflows from the content below.\n")
	b.WriteString("USER PROMPTS sections encode the project owner's intent and are authoritative over inferred behavior.\n\n")
	b.WriteString("## Pre-assigned IDs for this chunk\n\n")
	b.WriteString(formatIDList(preAssigned))
	b.WriteString("\n\n")
	if contextWorktree != "" {
		fmt.Fprintf(&b, "## Context snapshot\n\nA read-only worktree at commit %s is available at %s for inspecting code referenced by this content.\n\n", contextCommit, contextWorktree)
	}
	fmt.Fprintf(&b, "# New Content (%s)\n# Chunk %d\n\n", dateRange, chunkID)
	b.WriteString(itemsContent)
	return b.String()
}

var driftEntryLabels = map[string]string{
	"orphan_triage":      "concepts whose source files are all missing",
	"epistemic_audit":    "stale believed/unverified claims needing re-verification",
	"contested_review":   "contested claims awaiting resolution",
	"stale_unverified":   "unverified claims past their staleness window",
	"workflow_synthesis": "CURRENT workflows that may be redundant and ready to merge",
}

// renderTriageInput renders a drift-triage chunk's input.md, listing the
// entries that triggered the triage and what the agent should do about
// them. Grounded on prompt.py's render_triage_input.
func renderTriageInput(cfg config.Config, projectRoot string, chunkID int, drift DriftReport, driftType, foldFrom, contextCommit string) string {
	entries := driftEntriesFor(drift, driftType)

	var b strings.Builder
	fmt.Fprintf(&b, "# Drift Triage: %s\n\n", driftType)
	fmt.Fprintf(&b, "Chunk %d — %d %s.\n\n", chunkID, len(entries), driftEntryLabels[driftType])
	if foldFrom != "" {
		fmt.Fprintf(&b, "This is a fold-forward replay as of %s", foldFrom)
		if contextCommit != "" {
			fmt.Fprintf(&b, " (commit %s)", contextCommit)
		}
		b.WriteString(". Judge file existence at that point in history, not today's working tree.\n\n")
	}

	for _, e := range entries {
		fmt.Fprintf(&b, "## %s: %s\n", e.ID, e.Name)
		if len(e.Paths) > 0 {
			fmt.Fprintf(&b, "- Missing paths: %s\n", strings.Join(e.Paths, ", "))
		}
		if e.DaysOld > 0 {
			fmt.Fprintf(&b, "- Age: %d days\n", e.DaysOld)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nAfter updating the living docs, run:\n  engram lint --project-root %q\nFix every violation before finishing.\n", projectRoot)
	return b.String()
}

func driftEntriesFor(drift DriftReport, driftType string) []DriftEntry {
	switch driftType {
	case "orphan_triage":
		return drift.OrphanedConcepts
	case "epistemic_audit":
		return drift.EpistemicAudit
	case "contested_review":
		return drift.ContestedClaims
	case "stale_unverified":
		return drift.StaleUnverified
	case "workflow_synthesis":
		return drift.WorkflowRepetitions
	default:
		return nil
	}
}

// renderAgentPrompt renders the self-contained chunk_NNN_prompt.txt sent to
// the fold agent. Grounded on prompt.py's render_agent_prompt.
func renderAgentPrompt(chunkID int, dateRange, chunkType, inputPath string, preAssigned map[string][]string, contextWorktree, contextCommit string) string {
	var b strings.Builder
	b.WriteString("You are processing a knowledge fold chunk.\n\n")
	b.WriteString("IMPORTANT CONSTRAINTS:\n")
	b.WriteString("- Do NOT use the Task tool or spawn sub-agents. Do all work directly.\n")
	b.WriteString("- Do NOT use Write to overwrite entire files. Use Edit for surgical updates only.\n")
	b.WriteString("- Be SUCCINCT. High information density, no filler, no narrative prose.\n")
	b.WriteString("- Epistemic current-state files live under .../current/E*.md and are editable.\n")
	b.WriteString("- Do NOT read per-ID epistemic history files under .../history/E*.md; they are append-only logs.\n\n")

	fmt.Fprintf(&b, "Read the input file at %s — it contains system instructions\n", inputPath)
	fmt.Fprintf(&b, "and new content covering %s.\n\n", dateRange)

	if contextWorktree != "" {
		fmt.Fprintf(&b, "A read-only context worktree is checked out at %s (commit %s).\n\n", contextWorktree, contextCommit)
	}

	b.WriteString("Follow the instructions in that file. Update these 4 living documents and their graveyards as needed.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Extract concepts, claims, timeline events, workflows from the chunk\n")
	b.WriteString("- USER PROMPTS encode the project owner's intent — they are authoritative\n")
	b.WriteString("- DEAD/refuted entries: 1-2 sentences max. Key lesson + what replaced it.\n")
	b.WriteString("- Process ALL items in the chunk\n")
	if chunkType == "fold" {
		fmt.Fprintf(&b, "- Use ONLY these pre-assigned IDs. If none are listed, do NOT create new IDs in this chunk:\n%s\n", formatIDList(preAssigned))
	}

	b.WriteString("\nAfter All Edits: Lint Check (Required)\n\n")
	b.WriteString("Run the linter after completing all edits:\n  engram lint --project-root <project_root>\n")
	b.WriteString("Fix every violation reported. Re-run until lint passes with 0 violations.\n")
	b.WriteString("Do not stop until lint is clean.\n")
	return b.String()
}
