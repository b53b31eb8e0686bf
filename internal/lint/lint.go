package lint

import (
	"os"

	"github.com/rajeshgoli/engram/internal/config"
)

// Lint validates every supplied living doc against its schema, then runs
// cross-document invariants (no duplicate IDs, no unresolved references)
// across living docs plus graveyards. Grounded on
// linter/__init__.py's lint().
func Lint(livingDocs, graveyardDocs map[string]string) Result {
	var violations []Violation

	if content, ok := livingDocs["concepts"]; ok {
		violations = append(violations, ValidateConceptRegistry(content)...)
	}
	if content, ok := livingDocs["epistemic"]; ok {
		violations = append(violations, ValidateEpistemicState(content)...)
	}
	if content, ok := livingDocs["workflows"]; ok {
		violations = append(violations, ValidateWorkflowRegistry(content)...)
	}
	if content, ok := livingDocs["timeline"]; ok {
		violations = append(violations, ValidateTimeline(content)...)
	}

	all := make(map[string]string, len(livingDocs)+len(graveyardDocs))
	for k, v := range livingDocs {
		all[k] = v
	}
	for k, v := range graveyardDocs {
		all[k] = v
	}

	violations = append(violations, ValidateNoDuplicateIDs(all)...)
	violations = append(violations, ValidateCrossReferences(all)...)

	return Result{Passed: len(violations) == 0, Violations: violations}
}

// PostDispatchParams bundles the extra before/after context
// LintPostDispatch needs beyond a standalone Lint call.
type PostDispatchParams struct {
	Before         map[string]string
	After          map[string]string
	GraveyardDocs  map[string]string
	PreAssignedIDs []string
	ExpectedGrowth int
	ChunkType      string // "fold" enables CheckFoldChunkDeltaDocumentation
}

// LintPostDispatch runs the standard schema/cross-reference lint against
// the after-dispatch state, plus the guard checks that compare before and
// after. Grounded on linter/__init__.py's lint_post_dispatch.
func LintPostDispatch(p PostDispatchParams) Result {
	result := Lint(p.After, p.GraveyardDocs)
	violations := append([]Violation{}, result.Violations...)

	if p.ExpectedGrowth > 0 {
		beforeTotal, afterTotal := 0, 0
		for _, c := range p.Before {
			beforeTotal += len(c)
		}
		for _, c := range p.After {
			afterTotal += len(c)
		}
		violations = append(violations, CheckDiffSize(beforeTotal, afterTotal, p.ExpectedGrowth)...)
	}

	violations = append(violations, CheckMissingSections(p.Before, p.After)...)

	if p.ChunkType == "fold" {
		violations = append(violations, CheckFoldChunkDeltaDocumentation(p.Before, p.After)...)
	}

	if len(p.PreAssignedIDs) > 0 {
		violations = append(violations, CheckIDCompliance(p.Before, p.After, p.PreAssignedIDs)...)
	}

	return Result{Passed: len(violations) == 0, Violations: violations}
}

// LintFromPaths loads living docs and graveyard files from disk using
// cfg's resolved paths and runs Lint, a convenience wrapper for CLI use.
// Grounded on linter/__init__.py's lint_from_paths.
func LintFromPaths(projectRoot string, cfg config.Config) (Result, error) {
	paths := config.ResolveDocPaths(cfg, projectRoot)

	living := map[string]string{}
	for docType, path := range map[string]string{
		"timeline": paths.Timeline, "concepts": paths.Concepts,
		"epistemic": paths.Epistemic, "workflows": paths.Workflows,
	} {
		if data, err := os.ReadFile(path); err == nil {
			living[docType] = string(data)
		}
	}

	graveyard := map[string]string{}
	for docType, path := range map[string]string{
		"concept_graveyard": paths.ConceptGraveyard, "epistemic_graveyard": paths.EpistemicGraveyard,
	} {
		if data, err := os.ReadFile(path); err == nil {
			graveyard[docType] = string(data)
		}
	}

	return Lint(living, graveyard), nil
}
