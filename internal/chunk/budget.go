package chunk

import (
	"strings"

	"github.com/rajeshgoli/engram/internal/config"
)

// livingDocsCharCounts returns (fullChars, budgetBasisChars) across the
// four living docs. In "index" mode, budgetBasisChars only counts each
// doc's first 12 lines plus any heading/"Updated by" line — an
// index-only view used to keep chunk budgeting viable once a doc has
// grown past the point where including it in full would starve the
// chunk. Grounded on chunker.py's _living_docs_char_counts.
func livingDocsCharCounts(paths config.DocPaths, mode string) (int, int) {
	docs := []string{paths.Timeline, paths.Concepts, paths.Epistemic, paths.Workflows}
	fullChars, basisChars := 0, 0
	mode = strings.ToLower(strings.TrimSpace(mode))

	for _, path := range docs {
		content, ok := readFile(path)
		if !ok {
			continue
		}
		fullChars += len(content)

		if mode == "index" || mode == "index_headings" {
			lines := strings.SplitAfter(content, "\n")
			for i, line := range lines {
				if i < 12 || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "Updated by") {
					basisChars += len(line)
				}
			}
		} else {
			basisChars += len(content)
		}
	}
	return fullChars, basisChars
}

// ComputeBudget returns the char budget available for a chunk's item
// content, and the full char count of the living docs (for CLI
// reporting). Grounded on chunker.py's compute_budget.
func ComputeBudget(cfg config.Config, paths config.DocPaths, contextPackChars int) (int, int) {
	contextLimit := orDefault(cfg.Budget.ContextLimitChars, 600_000)
	overhead := orDefault(cfg.Budget.InstructionsOverhead, 100_000)
	maxChunk := orDefault(cfg.Budget.MaxChunkChars, 80_000)

	fullChars, basisChars := livingDocsCharCounts(paths, cfg.Budget.LivingDocsBudgetMode)

	if contextPackChars < 0 {
		contextPackChars = 0
	}
	remaining := contextLimit - basisChars - overhead - contextPackChars
	if remaining < 0 {
		remaining = 0
	}
	budget := remaining
	if budget > maxChunk {
		budget = maxChunk
	}
	return budget, fullChars
}
