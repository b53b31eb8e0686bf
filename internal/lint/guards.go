package lint

import (
	"fmt"
	"sort"

	"github.com/rajeshgoli/engram/internal/docs"
)

// CheckDiffSize flags a dispatch whose actual growth across all living
// docs exceeds twice the expected growth, grounded on
// guards.py's check_diff_size.
func CheckDiffSize(beforeChars, afterChars, expectedGrowth int) []Violation {
	if expectedGrowth <= 0 {
		return nil
	}
	actual := afterChars - beforeChars
	if actual > 2*expectedGrowth {
		return []Violation{{"guard", "", fmt.Sprintf(
			"Diff size guard: actual growth (%d chars) exceeds 2x expected (%d chars). Before: %d, after: %d",
			actual, expectedGrowth, beforeChars, afterChars)}}
	}
	return nil
}

// CheckMissingSections detects a heading present before dispatch that
// disappeared after — fold agents must retire entries to a graveyard stub,
// never delete them outright. Grounded on
// guards.py's check_missing_sections.
func CheckMissingSections(before, after map[string]string) []Violation {
	var out []Violation
	for _, docType := range []string{"concepts", "epistemic", "workflows", "timeline"} {
		beforeContent, ok1 := before[docType]
		afterContent, ok2 := after[docType]
		if !ok1 || !ok2 {
			continue
		}

		beforeIDs := headingIDSet(beforeContent)
		afterIDs := headingIDSet(afterContent)

		var missing []string
		for id := range beforeIDs {
			if !afterIDs[id] {
				missing = append(missing, id)
			}
		}
		sort.Strings(missing)
		for _, id := range missing {
			out = append(out, Violation{docType, id,
				fmt.Sprintf("Section %q existed before dispatch but is missing after. Fold agents should not delete sections.", id)})
		}
	}
	return out
}

// CheckIDCompliance checks a dispatch's output against the IDs
// pre-assigned to its chunk, in both directions: every pre-assigned ID
// must appear as a new heading in after, and no entirely new heading ID
// may appear that wasn't either pre-assigned or already present before.
// Consolidates guards.py's 2-arg check_id_compliance with
// linter/__init__.py's 3-arg call site (DESIGN.md Open Question 1).
func CheckIDCompliance(before, after map[string]string, preAssigned []string) []Violation {
	if len(preAssigned) == 0 {
		return nil
	}

	afterIDs := make(map[string]bool)
	for _, content := range after {
		for id := range headingIDSet(content) {
			afterIDs[id] = true
		}
	}
	beforeIDs := make(map[string]bool)
	for _, content := range before {
		for id := range headingIDSet(content) {
			beforeIDs[id] = true
		}
	}
	preAssignedSet := make(map[string]bool, len(preAssigned))
	for _, id := range preAssigned {
		preAssignedSet[id] = true
	}

	var out []Violation

	var missing []string
	for id := range preAssignedSet {
		if !afterIDs[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	for _, id := range missing {
		out = append(out, Violation{"guard", id,
			fmt.Sprintf("Pre-assigned ID %q not found in output. Fold agent did not create the expected entry.", id)})
	}

	var invented []string
	for id := range afterIDs {
		if !beforeIDs[id] && !preAssignedSet[id] {
			invented = append(invented, id)
		}
	}
	sort.Strings(invented)
	for _, id := range invented {
		out = append(out, Violation{"guard", id,
			fmt.Sprintf("ID %q appeared in output but was neither pre-assigned nor present before dispatch.", id)})
	}

	return out
}

// CheckFoldChunkDeltaDocumentation enforces spec.md's fold-only delta
// documentation rule: every section newly added by a fold chunk must
// reference at least one other stable ID. Authored from specification
// prose (DESIGN.md Open Question 2) since no Python implementation exists
// to port.
func CheckFoldChunkDeltaDocumentation(before, after map[string]string) []Violation {
	var out []Violation
	for _, docType := range []string{"timeline", "concepts", "epistemic", "workflows"} {
		beforeContent, ok1 := before[docType]
		afterContent, ok2 := after[docType]
		if !ok2 {
			continue
		}
		if !ok1 {
			beforeContent = ""
		}
		beforeHeadings := make(map[string]bool)
		for _, s := range docs.ParseSections(beforeContent) {
			beforeHeadings[s.Heading] = true
		}

		for _, section := range docs.ParseSections(afterContent) {
			if beforeHeadings[section.Heading] {
				continue
			}
			refs := docs.ExtractReferencedIDs(section.Text)
			if len(refs) == 0 {
				out = append(out, Violation{docType, "",
					fmt.Sprintf("Added section %q documents no referenced ID; fold chunks must cite at least one ID per new section.", section.Heading)})
			}
		}
	}
	return out
}

func headingIDSet(content string) map[string]bool {
	ids := make(map[string]bool)
	for _, s := range docs.ParseSections(content) {
		if prefix, num, ok := docs.HeadingID(s.Heading); ok {
			ids[docs.FormatID(prefix, num)] = true
		}
	}
	return ids
}
