// Package dispatch drives one chunk through the building → dispatched →
// validated → committed lifecycle: build the next chunk, shell out to the
// fold agent, lint the result, retry with correction context on failure,
// and regenerate the L0 briefing on success. Grounded on
// original_source/engram/server/dispatcher.py's Dispatcher.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/rajeshgoli/engram/internal/agent"
	"github.com/rajeshgoli/engram/internal/briefing"
	"github.com/rajeshgoli/engram/internal/chunk"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/lint"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// MaxRetries is the number of correction retries after the first attempt,
// matching dispatcher.py's MAX_RETRIES = 2.
const MaxRetries = 2

var livingDocKeys = []string{"timeline", "concepts", "epistemic", "workflows"}
var graveyardKeys = []string{"concept_graveyard", "epistemic_graveyard"}

// Dispatcher manages serial dispatch of fold chunks for one project.
type Dispatcher struct {
	Config      config.Config
	ProjectRoot string
	Store       *store.Store
	Repo        vcs.Repo
	Agent       agent.Invoker
	Briefing    agent.BriefingInvoker
	Logger      *log.Logger
}

func (d *Dispatcher) logf(format string, args ...any) {
	if d.Logger != nil {
		d.Logger.Printf(format, args...)
	}
}

// readDocs reads each named living/graveyard doc at its resolved path,
// returning "" for any that don't exist yet. Grounded on dispatch.py's
// read_docs.
func readDocs(paths config.DocPaths, keys []string) map[string]string {
	resolved := map[string]string{
		"timeline": paths.Timeline, "concepts": paths.Concepts,
		"epistemic": paths.Epistemic, "workflows": paths.Workflows,
		"concept_graveyard": paths.ConceptGraveyard, "epistemic_graveyard": paths.EpistemicGraveyard,
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		path, ok := resolved[k]
		if !ok {
			continue
		}
		if content, ok := readFile(path); ok {
			out[k] = content
		} else {
			out[k] = ""
		}
	}
	return out
}

// Dispatch executes a single dispatch cycle: build a chunk, invoke the fold
// agent, validate with the linter (retrying with correction context on
// failure), and regenerate the L0 briefing on success. Returns false (no
// error) when there's simply nothing to dispatch right now.
func (d *Dispatcher) Dispatch(ctx context.Context) (bool, error) {
	docPaths := config.ResolveDocPaths(d.Config, d.ProjectRoot)
	before := readDocs(docPaths, livingDocKeys)

	foldFrom, err := d.Store.GetFoldFrom()
	if err != nil {
		return false, fmt.Errorf("dispatch: get fold_from: %w", err)
	}

	result, err := chunk.NextChunk(d.Config, d.ProjectRoot, d.Repo, d.Store, foldFrom)
	if errors.Is(err, chunk.ErrNoQueue) || errors.Is(err, chunk.ErrQueueEmpty) {
		d.logf("cannot build chunk: %v", err)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dispatch: build chunk: %w", err)
	}
	defer func() {
		if _, err := chunk.ClearActiveChunk(filepath.Join(d.ProjectRoot, ".engram"), d.Repo); err != nil {
			d.logf("clear active chunk: %v", err)
		}
	}()

	dispatchID, err := d.Store.CreateDispatch(int64(result.ChunkID), result.InputPath, result.PromptPath)
	if err != nil {
		return false, fmt.Errorf("dispatch: create dispatch: %w", err)
	}
	if err := d.Store.UpdateDispatchState(dispatchID, store.StateDispatched, ""); err != nil {
		return false, fmt.Errorf("dispatch: mark dispatched: %w", err)
	}

	success, err := d.executeAndValidate(ctx, dispatchID, result, before, docPaths)
	if err != nil {
		return false, err
	}

	if success {
		if err := d.Store.UpdateDispatchState(dispatchID, store.StateValidated, ""); err != nil {
			return false, fmt.Errorf("dispatch: mark validated: %w", err)
		}
		d.regenerateBriefing(ctx, docPaths)
		if err := d.Store.UpdateDispatchState(dispatchID, store.StateCommitted, ""); err != nil {
			return false, fmt.Errorf("dispatch: mark committed: %w", err)
		}
		if err := d.Store.UpdateServerState(map[string]any{"last_dispatch_time": time.Now().UTC().Format(time.RFC3339)}); err != nil {
			return false, fmt.Errorf("dispatch: update server state: %w", err)
		}
		d.logf("dispatch %d (chunk %d) committed", dispatchID, result.ChunkID)
		return true, nil
	}

	d.logf("dispatch %d (chunk %d) failed after retries", dispatchID, result.ChunkID)
	return false, nil
}

// executeAndValidate runs the fold agent and validates its result with the
// linter, retrying up to MaxRetries times with correction text appended to
// the prompt. Grounded on Dispatcher._execute_and_validate.
func (d *Dispatcher) executeAndValidate(ctx context.Context, dispatchID int64, result chunk.Result, before map[string]string, docPaths config.DocPaths) (bool, error) {
	var correctionText string

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			if err := d.Store.IncrementRetry(dispatchID); err != nil {
				return false, fmt.Errorf("execute and validate: increment retry: %w", err)
			}
			d.logf("retry %d/%d for dispatch %d", attempt, MaxRetries, dispatchID)
		}

		prompt, ok := readFile(result.PromptPath)
		if !ok {
			return false, fmt.Errorf("execute and validate: prompt file missing: %s", result.PromptPath)
		}
		if correctionText != "" {
			prompt = prompt + "\n\n" + correctionText
		}

		ok2, err := d.Agent.Invoke(ctx, prompt)
		if err != nil {
			return false, fmt.Errorf("execute and validate: invoke agent: %w", err)
		}
		if !ok2 {
			_ = d.Store.UpdateDispatchState(dispatchID, store.StateDispatched, "Agent invocation failed")
			continue
		}

		after := readDocs(docPaths, livingDocKeys)
		graveyard := readDocs(docPaths, graveyardKeys)

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
			return true, nil
		}

		d.logf("lint failed (%d violations) for chunk %d:", len(lintResult.Violations), result.ChunkID)
		for _, v := range lintResult.Violations {
			d.logf("  %s", v.String())
		}

		correctionText = buildCorrectionText(result, lintResult)
		_ = d.Store.UpdateDispatchState(dispatchID, store.StateDispatched,
			fmt.Sprintf("Lint failed: %d violations", len(lintResult.Violations)))
	}

	return false, nil
}

func (d *Dispatcher) regenerateBriefing(ctx context.Context, docPaths config.DocPaths) {
	if d.Briefing == nil {
		return
	}
	if _, err := briefing.Regenerate(ctx, d.Config, d.ProjectRoot, docPaths, d.Briefing); err != nil {
		d.logf("L0 briefing regeneration failed: %v", err)
	}
}

// RecoverDispatch resumes a dispatch found in a non-terminal state on
// startup. "validated" means L0 regen didn't complete — regenerate and
// commit. "dispatched" means the agent may have completed — re-lint, and
// either commit, re-dispatch (if retries remain), or give up with an
// error recorded. Grounded on Dispatcher.recover_dispatch.
func (d *Dispatcher) RecoverDispatch(ctx context.Context, dsp store.Dispatch) (bool, error) {
	docPaths := config.ResolveDocPaths(d.Config, d.ProjectRoot)

	switch dsp.State {
	case store.StateValidated:
		d.regenerateBriefing(ctx, docPaths)
		if err := d.Store.UpdateDispatchState(dsp.ID, store.StateCommitted, ""); err != nil {
			return false, fmt.Errorf("recover dispatch: %w", err)
		}
		d.logf("recovered validated dispatch %d: L0 regen + committed", dsp.ID)
		return true, nil

	case store.StateDispatched:
		return d.recoverDispatched(ctx, dsp, docPaths)

	default:
		return false, nil
	}
}

func (d *Dispatcher) recoverDispatched(ctx context.Context, dsp store.Dispatch, docPaths config.DocPaths) (bool, error) {
	if dsp.InputPath == "" || !fileExists(dsp.InputPath) {
		_ = d.Store.UpdateDispatchState(dsp.ID, store.StateCommitted, "Recovered: could not validate after retries")
		d.logf("recovered dispatch %d with error", dsp.ID)
		return false, nil
	}

	after := readDocs(docPaths, livingDocKeys)
	graveyard := readDocs(docPaths, graveyardKeys)
	result := lint.Lint(after, graveyard)

	if result.Passed {
		if err := d.Store.UpdateDispatchState(dsp.ID, store.StateValidated, ""); err != nil {
			return false, fmt.Errorf("recover dispatch: %w", err)
		}
		d.regenerateBriefing(ctx, docPaths)
		if err := d.Store.UpdateDispatchState(dsp.ID, store.StateCommitted, ""); err != nil {
			return false, fmt.Errorf("recover dispatch: %w", err)
		}
		d.logf("recovered dispatch %d as committed", dsp.ID)
		return true, nil
	}

	if dsp.RetryCount < MaxRetries && dsp.PromptPath != "" && fileExists(dsp.PromptPath) {
		d.logf("recovery: lint failed for dispatch %d, re-dispatching (retry %d/%d)", dsp.ID, dsp.RetryCount+1, MaxRetries)
		if err := d.Store.IncrementRetry(dsp.ID); err != nil {
			return false, fmt.Errorf("recover dispatch: increment retry: %w", err)
		}

		correctionText := buildCorrectionTextFromLint(result)
		prompt, _ := readFile(dsp.PromptPath)
		if correctionText != "" {
			prompt = prompt + "\n\n" + correctionText
		}
		ok, err := d.Agent.Invoke(ctx, prompt)
		if err != nil {
			return false, fmt.Errorf("recover dispatch: invoke agent: %w", err)
		}
		if ok {
			after2 := readDocs(docPaths, livingDocKeys)
			graveyard2 := readDocs(docPaths, graveyardKeys)
			result2 := lint.Lint(after2, graveyard2)
			if result2.Passed {
				if err := d.Store.UpdateDispatchState(dsp.ID, store.StateValidated, ""); err != nil {
					return false, fmt.Errorf("recover dispatch: %w", err)
				}
				d.regenerateBriefing(ctx, docPaths)
				if err := d.Store.UpdateDispatchState(dsp.ID, store.StateCommitted, ""); err != nil {
					return false, fmt.Errorf("recover dispatch: %w", err)
				}
				d.logf("recovery re-dispatch succeeded for dispatch %d", dsp.ID)
				return true, nil
			}
		}
	}

	_ = d.Store.UpdateDispatchState(dsp.ID, store.StateCommitted, "Recovered: could not validate after retries")
	d.logf("recovered dispatch %d with error", dsp.ID)
	return false, nil
}

// buildCorrectionText builds correction context for a retry prompt so the
// agent sees the previous attempt's lint violations. Grounded on
// dispatcher.py's _build_correction_text.
func buildCorrectionText(result chunk.Result, lr lint.Result) string {
	return fmt.Sprintf(
		"CORRECTION REQUIRED: The previous fold attempt for chunk %d had %d lint violations:\n\n%s\n\nPlease fix these violations in the living docs. Re-read the input file at %s for context.\n",
		result.ChunkID, len(lr.Violations), violationsText(lr), result.InputPath,
	)
}

// buildCorrectionTextFromLint is the recovery-path variant with no chunk
// context available. Grounded on dispatcher.py's
// _build_correction_text_from_lint.
func buildCorrectionTextFromLint(lr lint.Result) string {
	return fmt.Sprintf(
		"CORRECTION REQUIRED: The previous fold attempt had %d lint violations:\n\n%s\n\nPlease fix these violations in the living docs.\n",
		len(lr.Violations), violationsText(lr),
	)
}

func violationsText(lr lint.Result) string {
	var out string
	for i, v := range lr.Violations {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("- [%s/%s] %s", v.DocType, v.EntryID, v.Message)
	}
	return out
}
