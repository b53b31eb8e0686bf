package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/docs"
	"github.com/rajeshgoli/engram/internal/queue"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// Result is the outcome of one NextChunk call, used for CLI reporting.
// Grounded on chunker.py's ChunkResult dataclass.
type Result struct {
	ChunkID             int
	InputPath           string
	PromptPath          string
	ChunkType           string // "fold" | "orphan_triage" | "epistemic_audit" | ...
	ItemsCount          int
	ChunkChars          int
	Budget              int
	LivingDocsChars     int
	RemainingQueue      int
	DateRange           string
	DriftEntryCount     int
	PreAssignedIDs      map[string][]string
	ContextWorktreePath string
	ContextCommit       string
}

// ErrNoQueue is returned when .engram/queue.jsonl doesn't exist yet.
var ErrNoQueue = fmt.Errorf("no queue found; run build-queue first")

// ErrQueueEmpty is returned when the queue has zero entries left.
var ErrQueueEmpty = fmt.Errorf("queue is empty; all chunks have been produced")

// QueueIsEmpty reports whether .engram/queue.jsonl is missing or has zero
// entries, grounded on chunker.py's queue_is_empty (used to gate the L0
// briefing staleness check until all queued chunks have been dispatched).
func QueueIsEmpty(projectRoot string) bool {
	entries, err := queue.ReadQueue(filepath.Join(projectRoot, ".engram"))
	if err != nil {
		return false
	}
	return len(entries) == 0
}

// NextChunk builds the next chunk's input and prompt files: a drift triage
// chunk if any threshold is exceeded, otherwise a fold chunk filled from
// the queue up to the adaptive budget. Grounded on chunker.py's next_chunk.
func NextChunk(cfg config.Config, projectRoot string, repo vcs.Repo, s *store.Store, foldFrom string) (Result, error) {
	engramDir := filepath.Join(projectRoot, ".engram")
	if err := EnforceSingleActiveChunk(engramDir, repo); err != nil {
		return Result{}, err
	}

	chunksDir := filepath.Join(engramDir, "chunks")
	if err := os.MkdirAll(chunksDir, 0750); err != nil {
		return Result{}, fmt.Errorf("next chunk: create chunks dir: %w", err)
	}
	manifestPath := filepath.Join(engramDir, "chunks_manifest.yaml")

	queuePath := filepath.Join(engramDir, "queue.jsonl")
	if _, err := os.Stat(queuePath); err != nil {
		return Result{}, ErrNoQueue
	}
	items, err := queue.ReadQueue(engramDir)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, ErrQueueEmpty
	}

	chunkID := nextChunkID(chunksDir)
	paths := config.ResolveDocPaths(cfg, projectRoot)

	var predictedIDs, contextIDs map[string][]string
	contextChars := 0
	if cfg.Budget.AdaptiveContextPack {
		preview := orDefault(cfg.Budget.PlanningPreviewItems, 24)
		predictedIDs = PredictTouchedIDs(items, projectRoot, preview, 8)
		_, contextChars, contextIDs = CollectContextPack(paths, predictedIDs, 8, 120_000)
	}

	budget, livingDocsChars := ComputeBudget(cfg, paths, contextChars)
	_ = contextIDs

	drift := ScanDrift(cfg, projectRoot, repo, foldFrom)
	drift = applySynthesisCooldowns(drift, cfg, chunkID, manifestPath)
	driftType := drift.Triggered(cfg.Thresholds)

	var result Result
	if driftType != "" {
		result, err = buildTriageChunk(cfg, projectRoot, repo, chunksDir, manifestPath, chunkID, items, budget, livingDocsChars, drift, driftType, foldFrom)
	} else {
		result, err = buildFoldChunk(cfg, projectRoot, repo, s, chunksDir, manifestPath, chunkID, items, budget, livingDocsChars)
	}
	if err != nil {
		return Result{}, err
	}

	if lockErr := WriteActiveChunkRecord(engramDir, ActiveChunkRecord{
		ChunkID:      result.ChunkID,
		ChunkType:    result.ChunkType,
		InputPath:    result.InputPath,
		PromptPath:   result.PromptPath,
		CreatedAt:    time.Now().UTC(),
		WorktreePath: result.ContextWorktreePath,
	}); lockErr != nil {
		return Result{}, lockErr
	}
	return result, nil
}

func nextChunkID(chunksDir string) int {
	matches, _ := filepath.Glob(filepath.Join(chunksDir, "chunk_*_input.md"))
	return len(matches) + 1
}

// applySynthesisCooldowns suppresses a repeated workflow_synthesis trigger
// when the last synthesis attempt recorded the same workflow ID signature
// within the cooldown window, preventing an infinite drift loop when an
// agent never merges duplicate workflows. Only the ID signature is
// compared: the workflow_registry_hash written to the manifest is not read
// back, so an unchanged registry hash alone does not suppress the trigger.
// Grounded on next_chunk's inline cooldown logic.
func applySynthesisCooldowns(drift DriftReport, cfg config.Config, chunkID int, manifestPath string) DriftReport {
	if len(drift.WorkflowRepetitions) == 0 {
		return drift
	}
	cooldown := orDefault(cfg.Thresholds.WorkflowSynthesisCooldownChunks, 5)
	last := readLastWorkflowSynthesisAttempt(manifestPath)
	if last == nil {
		return drift
	}
	sameSignature := last.idsSignature != "" && last.idsSignature == workflowIDsSignature(drift.WorkflowRepetitions)
	if sameSignature && chunkID-last.id <= cooldown {
		drift.WorkflowRepetitions = nil
	}
	return drift
}

type manifestSynthesisAttempt struct {
	id            int
	idsSignature  string
}

// readLastWorkflowSynthesisAttempt scans chunks_manifest.yaml for the most
// recent workflow_synthesis entry. The manifest is append-only, flat YAML
// written line-by-line by this package, so a light-touch scanner (no YAML
// library) suffices rather than a full parse.
func readLastWorkflowSynthesisAttempt(manifestPath string) *manifestSynthesisAttempt {
	data, err := os.ReadFile(manifestPath) // #nosec G304 - project-controlled manifest path
	if err != nil {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	var last *manifestSynthesisAttempt
	var current *manifestSynthesisAttempt
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- id:") {
			if current != nil && current.idsSignature != "" {
				last = current
			}
			var id int
			fmt.Sscanf(strings.TrimPrefix(trimmed, "- id:"), "%d", &id)
			current = &manifestSynthesisAttempt{id: id}
		} else if strings.HasPrefix(trimmed, "type: workflow_synthesis") {
			// keep current
		} else if strings.HasPrefix(trimmed, "workflow_ids_signature:") {
			if current != nil {
				current.idsSignature = strings.Trim(strings.TrimSpace(strings.TrimPrefix(trimmed, "workflow_ids_signature:")), `"`)
			}
		}
	}
	if current != nil && current.idsSignature != "" {
		last = current
	}
	return last
}

func buildTriageChunk(cfg config.Config, projectRoot string, repo vcs.Repo, chunksDir, manifestPath string, chunkID int, queued []queue.Entry, budget, livingDocsChars int, drift DriftReport, driftType, foldFrom string) (Result, error) {
	contextCommit := ""
	var contextWorktree string
	if repo != nil {
		contextCommit = resolveChunkContextCommit(repo, foldFrom, drift.RefCommit)
		if contextCommit != "" {
			contextWorktree = createChunkContextWorktree(repo, chunkID, contextCommit)
		}
	}

	// Triage chunks don't consume the queue.
	input := renderTriageInput(cfg, projectRoot, chunkID, drift, driftType, foldFrom, contextCommit)
	inputPath := filepath.Join(chunksDir, fmt.Sprintf("chunk_%03d_input.md", chunkID))
	if err := os.WriteFile(inputPath, []byte(input), 0644); err != nil {
		return Result{}, fmt.Errorf("next chunk: write triage input: %w", err)
	}

	prompt := renderAgentPrompt(chunkID, driftType, driftType, inputPath, nil, contextWorktree, contextCommit)
	promptPath := filepath.Join(chunksDir, fmt.Sprintf("chunk_%03d_prompt.txt", chunkID))
	if err := os.WriteFile(promptPath, []byte(prompt), 0644); err != nil {
		return Result{}, fmt.Errorf("next chunk: write triage prompt: %w", err)
	}

	driftCounts := map[string]int{
		"orphan_triage":      len(drift.OrphanedConcepts),
		"epistemic_audit":    len(drift.EpistemicAudit),
		"contested_review":   len(drift.ContestedClaims),
		"stale_unverified":   len(drift.StaleUnverified),
		"workflow_synthesis": len(drift.WorkflowRepetitions),
	}

	manifestLine := fmt.Sprintf("- id: %d\n  type: %s\n  entries: %d\n  input_file: %s\n", chunkID, driftType, driftCounts[driftType], filepath.Base(inputPath))
	if driftType == "workflow_synthesis" {
		paths := config.ResolveDocPaths(cfg, projectRoot)
		if hash, ok := sha256File(paths.Workflows); ok {
			manifestLine += fmt.Sprintf("  workflow_registry_hash: %s\n", hash)
		}
		if sig := workflowIDsSignature(drift.WorkflowRepetitions); sig != "" {
			manifestLine += fmt.Sprintf("  workflow_ids_signature: %q\n", sig)
		}
	}
	if err := appendManifest(manifestPath, manifestLine); err != nil {
		return Result{}, err
	}

	return Result{
		ChunkID:             chunkID,
		InputPath:           inputPath,
		PromptPath:          promptPath,
		ChunkType:           driftType,
		ChunkChars:          len(input),
		Budget:              budget,
		LivingDocsChars:     livingDocsChars,
		RemainingQueue:      len(queued),
		DriftEntryCount:     driftCounts[driftType],
		ContextWorktreePath: contextWorktree,
		ContextCommit:       contextCommit,
	}, nil
}

func buildFoldChunk(cfg config.Config, projectRoot string, repo vcs.Repo, s *store.Store, chunksDir, manifestPath string, chunkID int, items []queue.Entry, budget, livingDocsChars int) (Result, error) {
	remaining := items
	var chunkItems []queue.Entry
	chunkChars := 0
	for len(remaining) > 0 && chunkChars+remaining[0].Chars <= budget {
		chunkItems = append(chunkItems, remaining[0])
		chunkChars += remaining[0].Chars
		remaining = remaining[1:]
	}
	if len(chunkItems) == 0 && len(remaining) > 0 {
		chunkItems = append(chunkItems, remaining[0])
		chunkChars = remaining[0].Chars
		remaining = remaining[1:]
	}

	paths := config.ResolveDocPaths(cfg, projectRoot)
	minNext := computeMinNextIDsFromLivingDocs(paths)

	minC := orDefault(cfg.Thresholds.MinPreassignConcepts, 0)
	minE := orDefault(cfg.Thresholds.MinPreassignEpistemic, 0)
	minW := orDefault(cfg.Thresholds.MinPreassignWorkflows, 0)

	var preAssigned map[string][]string
	if s != nil {
		allocator := store.NewAllocator(s)
		var err error
		preAssigned, err = allocator.PreAssignForChunk(minNext, minC, minE, minW)
		if err != nil {
			return Result{}, fmt.Errorf("next chunk: pre-assign for chunk: %w", err)
		}
	}

	dateRange := ""
	if len(chunkItems) > 0 {
		dateRange = fmt.Sprintf("%s to %s", shortDate(chunkItems[0].Date), shortDate(chunkItems[len(chunkItems)-1].Date))
	}

	var contextCommit, contextWorktree string
	if repo != nil && len(chunkItems) > 0 {
		contextCommit = resolveChunkContextCommit(repo, shortDate(chunkItems[len(chunkItems)-1].Date), "")
		if contextCommit != "" {
			contextWorktree = createChunkContextWorktree(repo, chunkID, contextCommit)
		}
	}

	var itemsContent strings.Builder
	for _, item := range chunkItems {
		itemsContent.WriteString(renderItemContent(item, projectRoot))
	}

	input := renderChunkInput(chunkID, dateRange, itemsContent.String(), preAssigned, contextWorktree, contextCommit)
	inputPath := filepath.Join(chunksDir, fmt.Sprintf("chunk_%03d_input.md", chunkID))
	if err := os.WriteFile(inputPath, []byte(input), 0644); err != nil {
		return Result{}, fmt.Errorf("next chunk: write input: %w", err)
	}

	prompt := renderAgentPrompt(chunkID, dateRange, "fold", inputPath, preAssigned, contextWorktree, contextCommit)
	promptPath := filepath.Join(chunksDir, fmt.Sprintf("chunk_%03d_prompt.txt", chunkID))
	if err := os.WriteFile(promptPath, []byte(prompt), 0644); err != nil {
		return Result{}, fmt.Errorf("next chunk: write prompt: %w", err)
	}

	engramDir := filepath.Dir(chunksDir)
	if err := queue.WriteQueue(engramDir, remaining); err != nil {
		return Result{}, fmt.Errorf("next chunk: write remaining queue: %w", err)
	}

	manifestLine := fmt.Sprintf("- id: %d\n  date_range: %q\n  items: %d\n  chars: %d\n  input_file: %s\n",
		chunkID, dateRange, len(chunkItems), chunkChars, filepath.Base(inputPath))
	if ids := preAssigned["W"]; len(ids) > 0 {
		manifestLine += "  pre_assigned_workflow_ids:\n"
		for _, id := range ids {
			manifestLine += fmt.Sprintf("    - %s\n", id)
		}
	}
	if err := appendManifest(manifestPath, manifestLine); err != nil {
		return Result{}, err
	}

	return Result{
		ChunkID:             chunkID,
		InputPath:           inputPath,
		PromptPath:          promptPath,
		ChunkType:           "fold",
		ItemsCount:          len(chunkItems),
		ChunkChars:          chunkChars,
		Budget:              budget,
		LivingDocsChars:     livingDocsChars,
		RemainingQueue:      len(remaining),
		DateRange:           dateRange,
		PreAssignedIDs:      preAssigned,
		ContextWorktreePath: contextWorktree,
		ContextCommit:       contextCommit,
	}, nil
}

func shortDate(date string) string {
	if len(date) >= 10 {
		return date[:10]
	}
	return date
}

func appendManifest(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) // #nosec G304 - project-controlled manifest path
	if err != nil {
		return fmt.Errorf("next chunk: open manifest: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("next chunk: write manifest: %w", err)
	}
	return nil
}

func sha256File(path string) (string, bool) {
	content, ok := readFile(path)
	if !ok {
		return "", false
	}
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:]), true
}

// computeMinNextIDsFromLivingDocs derives {prefix: max-seen-id+1} from the
// stable IDs already present in the living docs, so a freshly-created or
// behind allocator DB never pre-assigns an ID that already exists.
// Grounded on chunker.py's _compute_min_next_ids_from_living_docs.
func computeMinNextIDsFromLivingDocs(paths config.DocPaths) map[string]int {
	registryDocs := map[string]string{
		paths.Concepts:  "C",
		paths.Epistemic: "E",
		paths.Workflows: "W",
	}
	maxSeen := map[string]int{}
	for path, prefix := range registryDocs {
		content, ok := readFile(path)
		if !ok {
			continue
		}
		for _, sec := range docs.ParseSections(content) {
			if p, n, ok := docs.HeadingID(sec.Heading); ok && p == prefix {
				if n > maxSeen[prefix] {
					maxSeen[prefix] = n
				}
			}
		}
	}
	out := map[string]int{}
	for _, prefix := range []string{"C", "E", "W"} {
		if maxSeen[prefix] > 0 {
			out[prefix] = maxSeen[prefix] + 1
		}
	}
	return out
}

// sortedPrefixes returns the canonical C/E/W iteration order for rendering.
func sortedPrefixes() []string { return []string{"C", "E", "W"} }
