// Package migrate performs a one-time upgrade of v2 living docs (no stable
// IDs, no workflow registry, no graveyard files) to v3 format: ID backfill,
// workflow extraction, graveyard bootstrapping, cross-reference rewrite,
// counter initialization, and a validation pass. Running it twice against
// already-migrated docs is a no-op beyond re-validating.
// Grounded on original_source/engram/migrate.py.
package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rajeshgoli/engram/internal/compact"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/docs"
	"github.com/rajeshgoli/engram/internal/lint"
	"github.com/rajeshgoli/engram/internal/store"
)

// v2HeadingRE matches a v2 heading with no stable-ID prefix: "Name (STATUS)".
// Section.Heading already has its "## " stripped, so unlike the original
// regex this needs no negative lookahead — callers only try it after a
// docs.HeadingID check has already ruled out an existing ID.
var v2HeadingRE = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)\s*$`)

// existingIDHeadingRE matches a heading that already carries a stable ID,
// capturing its name and status.
var existingIDHeadingRE = regexp.MustCompile(`^[CEW]\d{3,}:\s+(.+?)\s*\(([^)]+)\)`)

// nameBeforeParenRE extracts just the name portion of an ID'd heading, up to
// the opening paren of its status — used when backfill only needs to learn
// the name-to-ID mapping, not re-derive the status.
var nameBeforeParenRE = regexp.MustCompile(`^[CEW]\d{3,}:\s+(.+?)\s*\(`)

// workflowFieldsRE flags entries whose body looks like a workflow rather
// than a concept or claim.
var workflowFieldsRE = regexp.MustCompile(`(?m)^\s*-?\s*\*?\*?(?:Context|Current method|Trigger(?:\s+for\s+change)?)\*?\*?:`)

var idLikeNameRE = regexp.MustCompile(`^[CEW]\d{3,}$`)

var conceptStatusMap = map[string]string{"active": "ACTIVE", "dead": "DEAD", "evolved": "EVOLVED"}
var epistemicStatusMap = map[string]string{"believed": "believed", "refuted": "refuted", "contested": "contested", "unverified": "unverified"}
var workflowStatusMap = map[string]string{"current": "CURRENT", "superseded": "SUPERSEDED", "merged": "MERGED"}

// normalizeStatus maps a v2 status word to its v3 canonical form, falling
// back to the raw (trimmed) text for anything unrecognized.
func normalizeStatus(statusRaw, docType string) string {
	trimmed := strings.TrimSpace(statusRaw)
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return trimmed
	}
	key := strings.ToLower(fields[0])

	var table map[string]string
	switch docType {
	case "concepts":
		table = conceptStatusMap
	case "epistemic":
		table = epistemicStatusMap
	case "workflows":
		table = workflowStatusMap
	default:
		return trimmed
	}
	if v, ok := table[key]; ok {
		return v
	}
	return trimmed
}

func idPrefixForType(docType string) string {
	switch docType {
	case "concepts":
		return "C"
	case "epistemic":
		return "E"
	case "workflows":
		return "W"
	}
	return ""
}

// backfillIDs assigns stable IDs to v2 entries lacking them, in document
// order, mutating counters in place. Entries that already carry an ID are
// preserved unchanged, with their name recorded for cross-reference rewrite.
func backfillIDs(content, docType string, counters map[string]int) (string, map[string]string) {
	sections := docs.ParseSections(content)
	if len(sections) == 0 {
		return content, nil
	}

	prefix := idPrefixForType(docType)
	lines := strings.Split(content, "\n")
	nameToID := make(map[string]string)
	newLines := append([]string{}, lines[:sections[0].StartLine]...)

	for _, sec := range sections {
		secLines := strings.Split(sec.Text, "\n")

		if existingPrefix, existingNum, ok := docs.HeadingID(sec.Heading); ok {
			if m := nameBeforeParenRE.FindStringSubmatch(sec.Heading); m != nil {
				nameToID[strings.TrimSpace(m[1])] = docs.FormatID(existingPrefix, existingNum)
			}
			newLines = append(newLines, secLines...)
			continue
		}

		m := v2HeadingRE.FindStringSubmatch(sec.Heading)
		if m == nil {
			newLines = append(newLines, secLines...)
			continue
		}

		name := strings.TrimSpace(m[1])
		status := normalizeStatus(m[2], docType)

		next := counters[prefix]
		if next == 0 {
			next = 1
		}
		entryID := docs.FormatID(prefix, next)
		counters[prefix] = next + 1
		nameToID[name] = entryID

		secLines[0] = fmt.Sprintf("## %s: %s (%s)", entryID, name, status)
		newLines = append(newLines, secLines...)
	}

	return strings.Join(newLines, "\n"), nameToID
}

// extractWorkflows scans the concept and epistemic docs for workflow-shaped
// entries (flagged by workflowFieldsRE) and moves them into the workflow
// doc, re-IDing with the W prefix as needed.
func extractWorkflows(conceptContent, epistemicContent, workflowContent string, counters map[string]int) (newConcept, newEpistemic, newWorkflow string, nameToID map[string]string) {
	var extractedSections []string
	nameToID = make(map[string]string)

	process := func(content string) string {
		sections := docs.ParseSections(content)
		if len(sections) == 0 {
			return content
		}
		lines := strings.Split(content, "\n")
		newLines := append([]string{}, lines[:sections[0].StartLine]...)

		for _, sec := range sections {
			secLines := strings.Split(sec.Text, "\n")
			if !workflowFieldsRE.MatchString(sec.Text) {
				newLines = append(newLines, secLines...)
				continue
			}

			existingPrefix, _, hasID := docs.HeadingID(sec.Heading)
			if hasID && existingPrefix == "W" {
				extractedSections = append(extractedSections, strings.Join(secLines, "\n"))
				continue
			}

			var m []string
			if hasID {
				m = existingIDHeadingRE.FindStringSubmatch(sec.Heading)
			} else {
				m = v2HeadingRE.FindStringSubmatch(sec.Heading)
			}
			if m == nil {
				newLines = append(newLines, secLines...)
				continue
			}

			name := strings.TrimSpace(m[1])
			status := normalizeStatus(m[2], "workflows")

			next := counters["W"]
			if next == 0 {
				next = 1
			}
			entryID := docs.FormatID("W", next)
			counters["W"] = next + 1
			nameToID[name] = entryID

			secLines[0] = fmt.Sprintf("## %s: %s (%s)", entryID, name, status)
			extractedSections = append(extractedSections, strings.Join(secLines, "\n"))
		}

		return strings.Join(newLines, "\n")
	}

	newConcept = process(conceptContent)
	newEpistemic = process(epistemicContent)

	switch {
	case len(extractedSections) == 0:
		newWorkflow = workflowContent
	case strings.TrimRight(workflowContent, " \t\n") != "":
		newWorkflow = strings.TrimRight(workflowContent, " \t\n") + "\n\n" + strings.Join(extractedSections, "\n\n")
	default:
		newWorkflow = workflowContent + strings.Join(extractedSections, "\n")
	}
	return newConcept, newEpistemic, newWorkflow, nameToID
}

// rewriteCrossReferences replaces name-based references ("see <name>",
// "Supersedes: <name>", "Related concepts: <name>") with their stable-ID
// equivalent, processing longest names first to avoid partial matches.
func rewriteCrossReferences(content string, nameToID map[string]string) string {
	if len(nameToID) == 0 {
		return content
	}
	names := make([]string, 0, len(nameToID))
	for n := range nameToID {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })

	for _, name := range names {
		if idLikeNameRE.MatchString(name) {
			continue
		}
		entryID := nameToID[name]
		escaped := regexp.QuoteMeta(name)

		content = regexp.MustCompile(`\bsee\s+`+escaped+`\b`).ReplaceAllString(content, "see "+entryID)
		content = regexp.MustCompile(`(Supersedes:\s*.*?)\b`+escaped+`\b`).ReplaceAllString(content, "${1}"+entryID)
		content = regexp.MustCompile(`(Related concepts:\s*.*?)\b`+escaped+`\b`).ReplaceAllString(content, "${1}"+entryID)
	}
	return content
}

// initializeCounters scans every doc for the highest assigned ID per
// category and advances the store's counters to max+1, returning the
// resulting next-value state.
func initializeCounters(s *store.Store, contents map[string]string) (map[string]int, error) {
	maxIDs := map[string]int{"C": 0, "E": 0, "W": 0}
	for _, content := range contents {
		for _, sec := range docs.ParseSections(content) {
			if prefix, num, ok := docs.HeadingID(sec.Heading); ok && num > maxIDs[prefix] {
				maxIDs[prefix] = num
			}
		}
	}
	next := map[string]int{"C": maxIDs["C"] + 1, "E": maxIDs["E"] + 1, "W": maxIDs["W"] + 1}
	if err := store.NewAllocator(s).PreAssign(next); err != nil {
		return nil, fmt.Errorf("initialize counters: %w", err)
	}
	return next, nil
}

// Result summarizes a completed migration pass.
type Result struct {
	Lint     lint.Result
	Counters map[string]int
}

// Migrate runs the full v2-to-v3 living-doc migration pipeline for
// projectRoot against s's counter state, optionally setting foldFrom as the
// forward-fold continuation marker. Idempotent: running it again against
// already-migrated docs only re-validates.
func Migrate(projectRoot string, cfg config.Config, s *store.Store, foldFrom *time.Time) (Result, error) {
	paths := config.ResolveDocPaths(cfg, projectRoot)

	docContents := make(map[string]string, 4)
	for _, key := range []string{"timeline", "concepts", "epistemic", "workflows"} {
		path := docPathByKey(paths, key)
		if content, ok := readFile(path); ok {
			docContents[key] = content
		} else {
			docContents[key] = docs.LivingDocHeaders[key]
		}
	}

	for _, key := range []string{"concept_graveyard", "epistemic_graveyard"} {
		path := graveyardPathByKey(paths, key)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return Result{}, fmt.Errorf("migrate: create graveyard dir: %w", err)
		}
		header := docs.GraveyardHeaders["concepts"]
		if key == "epistemic_graveyard" {
			header = docs.GraveyardHeaders["epistemic"]
		}
		if err := os.WriteFile(path, []byte(header), 0644); err != nil {
			return Result{}, fmt.Errorf("migrate: write graveyard header: %w", err)
		}
	}

	counters := map[string]int{"C": 1, "E": 1, "W": 1}
	for _, key := range []string{"concepts", "epistemic", "workflows"} {
		for _, sec := range docs.ParseSections(docContents[key]) {
			if prefix, num, ok := docs.HeadingID(sec.Heading); ok && num >= counters[prefix] {
				counters[prefix] = num + 1
			}
		}
	}

	allNameToID := make(map[string]string)

	for _, key := range []string{"concepts", "epistemic"} {
		newContent, nameMap := backfillIDs(docContents[key], key, counters)
		docContents[key] = newContent
		for n, id := range nameMap {
			allNameToID[n] = id
		}
	}

	newConcept, newEpistemic, newWorkflow, wfNameMap := extractWorkflows(
		docContents["concepts"], docContents["epistemic"], docContents["workflows"], counters,
	)
	docContents["concepts"] = newConcept
	docContents["epistemic"] = newEpistemic
	docContents["workflows"] = newWorkflow
	for n, id := range wfNameMap {
		allNameToID[n] = id
	}

	newWorkflowDoc, wfExistingMap := backfillIDs(docContents["workflows"], "workflows", counters)
	docContents["workflows"] = newWorkflowDoc
	for n, id := range wfExistingMap {
		allNameToID[n] = id
	}

	for _, pair := range []struct{ docType, gyKey string }{
		{"concepts", "concept_graveyard"}, {"epistemic", "epistemic_graveyard"},
	} {
		gyPath := graveyardPathByKey(paths, pair.gyKey)
		newContent, _, err := compact.CompactLivingDoc(docContents[pair.docType], pair.docType, gyPath)
		if err != nil {
			return Result{}, fmt.Errorf("migrate: graveyard bootstrap (%s): %w", pair.docType, err)
		}
		docContents[pair.docType] = newContent
	}

	for key, content := range docContents {
		docContents[key] = rewriteCrossReferences(content, allNameToID)
	}

	for _, key := range []string{"timeline", "concepts", "epistemic", "workflows"} {
		path := docPathByKey(paths, key)
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return Result{}, fmt.Errorf("migrate: create doc dir: %w", err)
		}
		if err := os.WriteFile(path, []byte(docContents[key]), 0644); err != nil {
			return Result{}, fmt.Errorf("migrate: write %s: %w", key, err)
		}
	}

	allContents := make(map[string]string, len(docContents)+2)
	for k, v := range docContents {
		allContents[k] = v
	}
	for _, key := range []string{"concept_graveyard", "epistemic_graveyard"} {
		path := graveyardPathByKey(paths, key)
		if content, ok := readFile(path); ok {
			allContents[key] = content
		}
	}
	counterState, err := initializeCounters(s, allContents)
	if err != nil {
		return Result{}, err
	}

	if foldFrom != nil {
		if err := s.SetFoldFrom(foldFrom.Format("2006-01-02")); err != nil {
			return Result{}, fmt.Errorf("migrate: set fold marker: %w", err)
		}
	}

	livingDocs := map[string]string{
		"timeline": docContents["timeline"], "concepts": docContents["concepts"],
		"epistemic": docContents["epistemic"], "workflows": docContents["workflows"],
	}
	graveyardDocs := make(map[string]string)
	for _, key := range []string{"concept_graveyard", "epistemic_graveyard"} {
		path := graveyardPathByKey(paths, key)
		if content, ok := readFile(path); ok {
			graveyardDocs[key] = content
		}
	}

	return Result{Lint: lint.Lint(livingDocs, graveyardDocs), Counters: counterState}, nil
}

func docPathByKey(paths config.DocPaths, key string) string {
	switch key {
	case "timeline":
		return paths.Timeline
	case "concepts":
		return paths.Concepts
	case "epistemic":
		return paths.Epistemic
	case "workflows":
		return paths.Workflows
	}
	return ""
}

func graveyardPathByKey(paths config.DocPaths, key string) string {
	switch key {
	case "concept_graveyard":
		return paths.ConceptGraveyard
	case "epistemic_graveyard":
		return paths.EpistemicGraveyard
	}
	return ""
}

func readFile(path string) (string, bool) {
	data, err := os.ReadFile(path) // #nosec G304 - project-controlled doc path
	if err != nil {
		return "", false
	}
	return string(data), true
}
