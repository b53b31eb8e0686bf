package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rajeshgoli/engram/internal/agent"
	"github.com/rajeshgoli/engram/internal/briefing"
	"github.com/rajeshgoli/engram/internal/chunk"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/lint"
	"github.com/rajeshgoli/engram/internal/queue"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// MaxFoldRetries matches fold.py's MAX_RETRIES.
const MaxFoldRetries = 2

var foldLivingDocKeys = []string{"timeline", "concepts", "epistemic", "workflows"}
var foldGraveyardKeys = []string{"concept_graveyard", "epistemic_graveyard"}

// Folder replays the ingestion queue chronologically from a start date to
// the present, dispatching one fold agent per chunk. Unlike the live
// server's internal/dispatch.Dispatcher, it keeps no per-dispatch state-
// machine bookkeeping and defers L0 briefing regeneration to the very end
// — both match forward_fold's own _dispatch_and_validate, which is a
// standalone loop, not a call into the Dispatcher class. Grounded on
// original_source/engram/bootstrap/fold.py.
type Folder struct {
	ProjectRoot string
	Config      config.Config
	Store       *store.Store
	Repo        vcs.Repo
	Agent       agent.Invoker
	Briefing    agent.BriefingInvoker
	Logf        func(format string, args ...any)
}

func (f *Folder) logf(format string, args ...any) {
	if f.Logf != nil {
		f.Logf(format, args...)
	}
}

// ForwardFold builds the ingestion queue filtered to fromDate forward, then
// iterates chunk.NextChunk, dispatching and validating each chunk until the
// queue is exhausted. Returns false if any chunk failed after retries.
func (f *Folder) ForwardFold(ctx context.Context, fromDate time.Time) (bool, error) {
	f.logf("building queue...")
	allEntries, err := queue.BuildQueue(f.Config, f.ProjectRoot, "", f.Repo)
	if err != nil {
		return false, fmt.Errorf("forward fold: build queue: %w", err)
	}
	entries := queue.FilterByDate(allEntries, fromDate)
	f.logf("queue built: %d entries from %s forward", len(entries), fromDate.Format("2006-01-02"))

	engramDir := filepath.Join(f.ProjectRoot, ".engram")
	if err := queue.WriteQueue(engramDir, entries); err != nil {
		return false, fmt.Errorf("forward fold: write filtered queue: %w", err)
	}

	if len(entries) == 0 {
		f.logf("no entries to process after %s", fromDate.Format("2006-01-02"))
		return true, f.Store.ClearFoldFrom()
	}

	foldFrom := fromDate.Format("2006-01-02")
	if err := f.Store.SetFoldFrom(foldFrom); err != nil {
		return false, fmt.Errorf("forward fold: set fold_from: %w", err)
	}

	chunkCount, failures := 0, 0
	for {
		result, err := chunk.NextChunk(f.Config, f.ProjectRoot, f.Repo, f.Store, foldFrom)
		if errors.Is(err, chunk.ErrNoQueue) {
			f.logf("queue file not found — stopping")
			break
		}
		if errors.Is(err, chunk.ErrQueueEmpty) {
			f.logf("queue exhausted after %d chunks", chunkCount)
			break
		}
		if err != nil {
			return false, fmt.Errorf("forward fold: next chunk: %w", err)
		}

		chunkCount++
		dateLabel := result.DateRange
		if dateLabel == "" {
			dateLabel = "drift triage"
		}
		f.logf("processing chunk %d (%s, %d items, %s)", result.ChunkID, result.ChunkType, result.ItemsCount, dateLabel)

		if f.dispatchAndValidate(ctx, result) {
			f.logf("chunk %d committed", result.ChunkID)
		} else {
			failures++
			f.logf("chunk %d failed", result.ChunkID)
		}
		if _, err := chunk.ClearActiveChunk(engramDir, f.Repo); err != nil {
			return false, fmt.Errorf("forward fold: clear active chunk: %w", err)
		}
	}

	if failures > 0 {
		f.logf("forward fold completed with %d failed chunk(s)", failures)
		return false, nil
	}

	if chunkCount > 0 && f.Briefing != nil {
		f.logf("regenerating L0 briefing...")
		docPaths := config.ResolveDocPaths(f.Config, f.ProjectRoot)
		if _, err := briefing.Regenerate(ctx, f.Config, f.ProjectRoot, docPaths, f.Briefing); err != nil {
			f.logf("L0 briefing regeneration failed: %v", err)
		}
	}

	if err := f.Store.ClearFoldFrom(); err != nil {
		return false, fmt.Errorf("forward fold: clear fold_from: %w", err)
	}
	f.logf("forward fold completed successfully (%d chunks)", chunkCount)
	return true, nil
}

// dispatchAndValidate runs the fold agent against one chunk's prompt,
// validates with the linter, and retries with correction context on
// failure, up to MaxFoldRetries times. Grounded on fold.py's
// _dispatch_and_validate.
func (f *Folder) dispatchAndValidate(ctx context.Context, result chunk.Result) bool {
	docPaths := config.ResolveDocPaths(f.Config, f.ProjectRoot)
	before := readDocs(docPaths, foldLivingDocKeys)

	var correctionText string
	for attempt := 0; attempt <= MaxFoldRetries; attempt++ {
		if attempt > 0 {
			f.logf("retry %d/%d for chunk %d", attempt, MaxFoldRetries, result.ChunkID)
		}

		prompt, ok := readFile(result.PromptPath)
		if !ok {
			return false
		}
		if correctionText != "" {
			prompt = prompt + "\n\n" + correctionText
		}

		invoked, err := f.Agent.Invoke(ctx, prompt)
		if err != nil || !invoked {
			continue
		}

		after := readDocs(docPaths, foldLivingDocKeys)
		graveyard := readDocs(docPaths, foldGraveyardKeys)

		var preAssigned []string
		for _, ids := range result.PreAssignedIDs {
			preAssigned = append(preAssigned, ids...)
		}

		lintResult := lint.LintPostDispatch(lint.PostDispatchParams{
			Before:         before,
			After:          after,
			GraveyardDocs:  graveyard,
			PreAssignedIDs: preAssigned,
			ExpectedGrowth: result.ChunkChars,
			ChunkType:      result.ChunkType,
		})
		if lintResult.Passed {
			return true
		}

		f.logf("lint failed (%d violations) for chunk %d", len(lintResult.Violations), result.ChunkID)
		correctionText = buildFoldCorrectionText(lintResult)
	}
	return false
}

func buildFoldCorrectionText(lr lint.Result) string {
	var violationsText string
	for i, v := range lr.Violations {
		if i > 0 {
			violationsText += "\n"
		}
		violationsText += fmt.Sprintf("- [%s/%s] %s", v.DocType, v.EntryID, v.Message)
	}
	return fmt.Sprintf(
		"CORRECTION REQUIRED: Previous attempt had %d lint violations:\n\n%s\n\nPlease fix these violations in the living docs.\n",
		len(lr.Violations), violationsText,
	)
}
