package docs

import "regexp"

// Per-family heading grammar, frozen by spec.md §3/§4.4. Each family has a
// FULL form (a complete entry, with required fields elsewhere in the
// section body) and a STUB form (a one-line pointer into the graveyard).
// These mirror original_source/engram/linter/schema.py's
// CONCEPT_FULL_RE/CONCEPT_STUB_RE family, generalized to \d{3,} (Open
// Question 3 in DESIGN.md).
var (
	ConceptFullRE = regexp.MustCompile(`^C\d{3,}:\s+.+\(ACTIVE(\s*(—|--)\s*.+)?\)\s*$`)
	ConceptStubRE = regexp.MustCompile(`^C\d{3,}:\s+.+\((DEAD|EVOLVED[^)]*)\)\s*(→|->)\s*\S+`)

	EpistemicFullRE = regexp.MustCompile(`(?i)^E\d{3,}:\s+.+\((believed|contested|unverified)\)\s*$`)
	EpistemicStubRE = regexp.MustCompile(`(?i)^E\d{3,}:\s+.+\(refuted\)\s*(→|->)\s*\S+`)

	WorkflowFullRE = regexp.MustCompile(`^W\d{3,}:\s+.+\(CURRENT(\s*(—|--)\s*.+)?\)\s*$`)
	WorkflowStubRE = regexp.MustCompile(`^W\d{3,}:\s+.+\((SUPERSEDED|MERGED)[^)]*\)\s*(→|->)\s*\S+`)

	TimelinePhaseRE = regexp.MustCompile(`^Phase:\s*.+\s+\(.+\)\s*$`)

	// legacyCompactedRE matches a retired-status heading that carries no
	// stable ID at all — the "compacted legacy form" spec.md §4.4 item 6
	// requires be flagged when it lingers in a living doc.
	legacyCompactedDeadRE    = regexp.MustCompile(`(?i)^.+\(\s*DEAD\s*\)\s+(—|--)\s+\*compacted\*\s*$`)
	legacyCompactedRefutedRE = regexp.MustCompile(`(?i)^.+\(\s*REFUTED\s*\)\s+(—|--)\s+\*compacted\*\s*$`)
)

// Required-field regexes tolerate an optional leading bullet "-" and bold
// markdown ("**Field:**") formatting, matching the original's tolerance.
var (
	codeFieldRE          = regexp.MustCompile(`(?m)^-?\s*\*{0,2}Code:\*{0,2}\s*\S`)
	evidenceFieldRE      = regexp.MustCompile(`(?m)^-?\s*\*{0,2}Evidence:\*{0,2}\s*\S`)
	historyFieldRE       = regexp.MustCompile(`(?m)^-?\s*\*{0,2}History:\*{0,2}\s*\S`)
	contextFieldRE       = regexp.MustCompile(`(?m)^-?\s*\*{0,2}Context:\*{0,2}\s*\S`)
	triggerFieldRE       = regexp.MustCompile(`(?m)^-?\s*\*{0,2}Trigger:\*{0,2}\s*\S`)
	currentMethodFieldRE = regexp.MustCompile(`(?m)^-?\s*\*{0,2}Current method:\*{0,2}\s*\S`)
)

// HasCodeField reports whether a concept entry body declares a Code: field.
func HasCodeField(body string) bool { return codeFieldRE.MatchString(body) }

// HasEvidenceOrHistory reports whether an epistemic entry body declares
// Evidence: or History:.
func HasEvidenceOrHistory(body string) bool {
	return evidenceFieldRE.MatchString(body) || historyFieldRE.MatchString(body)
}

// HasWorkflowFields reports whether a workflow entry body declares
// Context: and (Trigger: or Current method:).
func HasWorkflowFields(body string) bool {
	return HasContextField(body) && HasTriggerOrCurrentMethod(body)
}

// HasContextField reports whether a workflow entry body declares a
// Context: field.
func HasContextField(body string) bool { return contextFieldRE.MatchString(body) }

// HasTriggerOrCurrentMethod reports whether a workflow entry body declares
// a Trigger: or Current method: field.
func HasTriggerOrCurrentMethod(body string) bool {
	return triggerFieldRE.MatchString(body) || currentMethodFieldRE.MatchString(body)
}

// IsLegacyCompacted reports whether a heading is a retired entry expressed
// in the pre-ID legacy form instead of a proper stub.
func IsLegacyCompacted(heading string) bool {
	return legacyCompactedDeadRE.MatchString(heading) || legacyCompactedRefutedRE.MatchString(heading)
}

// EpistemicPaths returns the canonical sharded per-ID file layout for an
// epistemic claim, given the configured epistemic doc's path stem (the
// epistemic file path without its extension) and a stable ID. This
// consolidates the original's duplicated infer_current_path/
// infer_history_path/infer_legacy_history_path helpers into one function,
// per DESIGN.md Open Question 7.
func EpistemicPaths(stem, id string) (current, history, legacyHistory string) {
	current = stem + "/current/" + id + ".md"
	history = stem + "/history/" + id + ".md"
	legacyHistory = stem + "/" + id + ".history.md"
	return
}
