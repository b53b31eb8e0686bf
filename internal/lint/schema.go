package lint

import (
	"fmt"
	"strings"

	"github.com/rajeshgoli/engram/internal/docs"
)

// ValidateConceptRegistry checks concept_registry.md's heading grammar and
// required Code: field, grounded on schema.py's validate_concept_registry.
func ValidateConceptRegistry(content string) []Violation {
	var out []Violation
	for _, section := range docs.ParseSections(content) {
		prefix, num, ok := docs.HeadingID(section.Heading)
		id := ""
		if ok {
			id = docs.FormatID(prefix, num)
		}

		if !ok && docs.IsLegacyCompacted(section.Heading) {
			out = append(out, Violation{"concepts", "",
				"Legacy compacted DEAD heading found in living concept doc; move it fully to concept_graveyard.md"})
			continue
		}
		if !ok {
			continue
		}
		if prefix != "C" {
			out = append(out, Violation{"concepts", id, fmt.Sprintf("Non-concept ID %q in concept registry", id)})
			continue
		}

		if docs.IsStub(section.Heading) {
			if !docs.ConceptStubRE.MatchString(section.Heading) {
				out = append(out, Violation{"concepts", id,
					"Stub heading does not match expected pattern: C{NNN}: {name} (DEAD|EVOLVED) → {target}"})
			}
			continue
		}

		if !docs.ConceptFullRE.MatchString(section.Heading) {
			out = append(out, Violation{"concepts", id,
				"Heading does not match FULL or STUB pattern. Expected: C{NNN}: {name} (ACTIVE[ — MODIFIER]) or C{NNN}: {name} (DEAD|EVOLVED) → target"})
			continue
		}

		if !docs.HasCodeField(section.Text) {
			out = append(out, Violation{"concepts", id, "ACTIVE concept missing required 'Code:' field"})
		}
	}
	return out
}

// ValidateEpistemicState checks epistemic_state.md's heading grammar and
// required Evidence:/History: field, grounded on
// schema.py's validate_epistemic_state.
func ValidateEpistemicState(content string) []Violation {
	var out []Violation
	for _, section := range docs.ParseSections(content) {
		prefix, num, ok := docs.HeadingID(section.Heading)
		id := ""
		if ok {
			id = docs.FormatID(prefix, num)
		}

		if !ok && docs.IsLegacyCompacted(section.Heading) {
			out = append(out, Violation{"epistemic", "",
				"Legacy compacted REFUTED heading found in living epistemic doc; move it fully to epistemic_graveyard.md"})
			continue
		}
		if !ok {
			continue
		}
		if prefix != "E" {
			out = append(out, Violation{"epistemic", id, fmt.Sprintf("Non-epistemic ID %q in epistemic state", id)})
			continue
		}

		if docs.IsStub(section.Heading) {
			if !docs.EpistemicStubRE.MatchString(section.Heading) {
				out = append(out, Violation{"epistemic", id,
					"Stub heading does not match expected pattern: E{NNN}: {name} (refuted) → {target}"})
			}
			continue
		}

		if !docs.EpistemicFullRE.MatchString(section.Heading) {
			out = append(out, Violation{"epistemic", id,
				"Heading does not match FULL or STUB pattern. Expected: E{NNN}: {name} (believed|contested|unverified) or E{NNN}: {name} (refuted) → target"})
			continue
		}

		if !docs.HasEvidenceOrHistory(section.Text) {
			out = append(out, Violation{"epistemic", id,
				"Non-refuted epistemic entry missing required 'Evidence:' or 'History:' field"})
		}
	}
	return out
}

// ValidateWorkflowRegistry checks workflow_registry.md's heading grammar
// and required Context:/Trigger: fields, grounded on
// schema.py's validate_workflow_registry.
func ValidateWorkflowRegistry(content string) []Violation {
	var out []Violation
	for _, section := range docs.ParseSections(content) {
		prefix, num, ok := docs.HeadingID(section.Heading)
		if !ok {
			continue
		}
		id := docs.FormatID(prefix, num)
		if prefix != "W" {
			out = append(out, Violation{"workflows", id, fmt.Sprintf("Non-workflow ID %q in workflow registry", id)})
			continue
		}

		if docs.IsStub(section.Heading) {
			if !docs.WorkflowStubRE.MatchString(section.Heading) {
				out = append(out, Violation{"workflows", id,
					"Stub heading does not match expected pattern: W{NNN}: {name} (SUPERSEDED|MERGED) → {target}"})
			}
			continue
		}

		if !docs.WorkflowFullRE.MatchString(section.Heading) {
			out = append(out, Violation{"workflows", id,
				"Heading does not match FULL or STUB pattern. Expected: W{NNN}: {name} (CURRENT[ — MODIFIER]) or W{NNN}: {name} (SUPERSEDED|MERGED) → target"})
			continue
		}

		if !docs.HasContextField(section.Text) {
			out = append(out, Violation{"workflows", id, "CURRENT workflow missing required 'Context:' field"})
		}
		if !docs.HasTriggerOrCurrentMethod(section.Text) {
			out = append(out, Violation{"workflows", id, "CURRENT workflow missing required 'Trigger:' or 'Current method:' field"})
		}
	}
	return out
}

// ValidateTimeline checks timeline.md's "## Phase: ..." heading grammar and
// the required "IDs:" line every phase must declare (spec.md §3's "Every
// timeline phase must include an IDs: line" requirement). Authored from
// specification prose: schema.py never defines a timeline validator.
func ValidateTimeline(content string) []Violation {
	var out []Violation
	for _, section := range docs.ParseSections(content) {
		if !strings.HasPrefix(section.Heading, "Phase:") {
			continue
		}
		if !docs.TimelinePhaseRE.MatchString(section.Heading) {
			out = append(out, Violation{"timeline", "",
				fmt.Sprintf("Phase heading does not match expected pattern 'Phase: {title} ({date range})': %q", section.Heading)})
			continue
		}
		if !strings.Contains(section.Text, "IDs:") {
			out = append(out, Violation{"timeline", "",
				fmt.Sprintf("Phase %q missing required 'IDs:' line", section.Heading)})
		}
	}
	return out
}
