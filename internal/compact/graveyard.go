package compact

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rajeshgoli/engram/internal/docs"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// graveyardStatuses lists the section statuses that trigger a move to the
// graveyard for each doc type, grounded on
// compact/graveyard.py's _GRAVEYARD_STATUSES.
var graveyardStatuses = map[string]map[string]bool{
	"concepts":  {"dead": true, "evolved": true},
	"epistemic": {"refuted": true},
}

var headingNameStatusRE = regexp.MustCompile(`^[CEW]\d{3,}:\s+(.+?)\s*\(([^)]+)\)`)

// GenerateStub renders a one-line STUB heading pointing at a
// graveyard-bound entry's archived location, grounded on
// compact/graveyard.py's generate_stub.
func GenerateStub(section docs.Section, graveyardFilename string) (string, error) {
	prefix, num, ok := docs.HeadingID(section.Heading)
	if !ok {
		return "", fmt.Errorf("generate stub: no stable ID in heading %q", section.Heading)
	}
	id := docs.FormatID(prefix, num)

	m := headingNameStatusRE.FindStringSubmatch(section.Heading)
	if m == nil {
		return "", fmt.Errorf("generate stub: cannot parse heading %q", section.Heading)
	}
	name, status := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])

	return fmt.Sprintf("## %s: %s (%s) → %s#%s", id, name, status, graveyardFilename, id), nil
}

// MoveToGraveyard appends a section's full text to the graveyard file
// (append-only) and returns a STUB line referencing the archived entry;
// CompactLivingDoc removes the entry from the living doc without
// inserting the stub there. Grounded on
// compact/graveyard.py's move_to_graveyard.
func MoveToGraveyard(section docs.Section, docType, graveyardPath string) (string, error) {
	eligible, ok := graveyardStatuses[docType]
	if !ok {
		return "", fmt.Errorf("move to graveyard: unknown doc type %q", docType)
	}
	if !eligible[section.Status] {
		return "", fmt.Errorf("move to graveyard: section status %q is not a graveyard status for %s", section.Status, docType)
	}

	stub, err := GenerateStub(section, filepathBase(graveyardPath))
	if err != nil {
		return "", err
	}

	entryText := strings.TrimRight(section.Text, "\n")
	if err := appendToGraveyard(graveyardPath, entryText); err != nil {
		return "", err
	}
	return stub, nil
}

// AppendCorrectionBlock records a graveyard misclassification correction
// (e.g. an entry marked DEAD was actually EVOLVED) without disturbing the
// original archived entry, grounded on
// compact/graveyard.py's append_correction_block.
func AppendCorrectionBlock(graveyardPath, entryID, oldStatus, newStatus, target string, correctionDate time.Time) error {
	if correctionDate.IsZero() {
		correctionDate = time.Now().UTC()
	}
	dateStr := correctionDate.Format("2006-01-02")

	reclassified := oldStatus + " → " + newStatus
	if target != "" {
		reclassified += " → " + target
	}

	livingDoc := map[string]string{"C": "concept_registry.md", "E": "epistemic_state.md", "W": "workflow_registry.md"}[entryPrefix(entryID)]
	if livingDoc == "" {
		livingDoc = "unknown"
	}
	seeTarget := target
	if seeTarget == "" {
		seeTarget = entryID
	}

	block := fmt.Sprintf("## %s CORRECTION (%s)\nReclassified: %s\nOriginal entry above is superseded. See %s in %s.",
		entryID, dateStr, reclassified, seeTarget, livingDoc)

	return appendToGraveyard(graveyardPath, block)
}

func entryPrefix(id string) string {
	if id == "" {
		return ""
	}
	return id[:1]
}

func appendToGraveyard(path, text string) error {
	separator := ""
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		separator = "\n\n"
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("append to graveyard %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(separator + text + "\n"); err != nil {
		return fmt.Errorf("append to graveyard %s: %w", path, err)
	}
	return nil
}

func filepathBase(path string) string {
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return path
	}
	return path[i+1:]
}

// CompactLivingDoc scans a living doc for graveyard-eligible entries,
// moves each to the graveyard file, and removes it from the living doc
// (already-present STUBs are dropped outright, since the graveyard already
// holds their full text). Grounded on
// compact/graveyard.py's compact_living_doc.
func CompactLivingDoc(content, docType, graveyardPath string) (string, int, error) {
	if _, ok := graveyardStatuses[docType]; !ok {
		return "", 0, fmt.Errorf("compact living doc: unknown doc type %q", docType)
	}

	sections := docs.ParseSections(content)
	if len(sections) == 0 {
		return content, 0, nil
	}

	eligible := graveyardStatuses[docType]
	lines := strings.Split(content, "\n")
	preamble := strings.Join(lines[:sections[0].StartLine], "\n")

	parts := []string{preamble}
	charsSaved := 0

	for _, sec := range sections {
		if docs.IsStub(sec.Heading) {
			charsSaved += len(sec.Text)
			continue
		}
		if eligible[sec.Status] {
			if _, err := MoveToGraveyard(sec, docType, graveyardPath); err != nil {
				return "", 0, err
			}
			charsSaved += len(sec.Text)
			continue
		}
		parts = append(parts, sec.Text)
	}

	return strings.Join(parts, "\n"), charsSaved, nil
}

var defaultSourcePatterns = []string{
	`(?:src|tests|lib|engram|frontend)/[\w/._-]+\.(?:py|ts|tsx|js|html|go)`,
}

var codeFieldValueRE = regexp.MustCompile(`\*?\*?Code\*?\*?:\s*(.+)`)

// OrphanedConcept is an ACTIVE concept whose every referenced source file
// is missing.
type OrphanedConcept struct {
	ID    string
	Name  string
	Paths []string
}

var nonActiveStatuses = map[string]bool{
	"dead": true, "refuted": true, "evolved": true, "superseded": true, "merged": true,
}

// FindOrphanedConcepts scans a concept registry for ACTIVE entries whose
// Code: field names only files that no longer exist on disk under
// projectRoot, grounded on compact/graveyard.py's find_orphaned_concepts.
func FindOrphanedConcepts(registryContent, projectRoot string, sourcePatterns []string) ([]OrphanedConcept, error) {
	exists := func(relPath string) bool {
		_, err := os.Stat(joinPath(projectRoot, relPath))
		return err == nil
	}
	return findOrphanedConcepts(registryContent, sourcePatterns, exists)
}

// FindOrphanedConceptsAtCommit is FindOrphanedConcepts's historical
// variant: instead of checking the working tree, a path is considered
// present if it was tracked at the given commit. Used when re-deriving
// orphan status as of a past point in history (e.g. during a forward-fold
// replay), grounded on the same compact/graveyard.py logic generalized to
// spec.md §9's commit-addressable source-of-truth requirement.
func FindOrphanedConceptsAtCommit(registryContent string, repo vcs.Repo, commit string, sourcePatterns []string) ([]OrphanedConcept, error) {
	tracked, err := repo.TrackedFiles(commit)
	if err != nil {
		return nil, fmt.Errorf("find orphaned concepts at commit: %w", err)
	}
	exists := func(relPath string) bool {
		return tracked[strings.ToLower(relPath)]
	}
	return findOrphanedConcepts(registryContent, sourcePatterns, exists)
}

func findOrphanedConcepts(registryContent string, sourcePatterns []string, exists func(string) bool) ([]OrphanedConcept, error) {
	if len(sourcePatterns) == 0 {
		sourcePatterns = defaultSourcePatterns
	}
	combined, err := regexp.Compile(strings.Join(sourcePatterns, "|"))
	if err != nil {
		return nil, fmt.Errorf("find orphaned concepts: compile source patterns: %w", err)
	}

	var orphans []OrphanedConcept
	for _, sec := range docs.ParseSections(registryContent) {
		if nonActiveStatuses[sec.Status] || docs.IsStub(sec.Heading) {
			continue
		}
		codeMatch := codeFieldValueRE.FindStringSubmatch(sec.Text)
		if codeMatch == nil {
			continue
		}
		fieldValue := strings.SplitN(codeMatch[1], "\n", 2)[0]
		paths := combined.FindAllString(fieldValue, -1)
		if len(paths) == 0 {
			continue
		}

		missing := make([]string, 0, len(paths))
		for _, p := range paths {
			if !exists(p) {
				missing = append(missing, p)
			}
		}
		if len(missing) == len(paths) {
			id := "unknown"
			if prefix, num, ok := docs.HeadingID(sec.Heading); ok {
				id = docs.FormatID(prefix, num)
			}
			name := sec.Heading
			if m := headingNameStatusRE.FindStringSubmatch(sec.Heading); m != nil {
				name = strings.TrimSpace(m[1])
			}
			sort.Strings(missing)
			orphans = append(orphans, OrphanedConcept{ID: id, Name: name, Paths: missing})
		}
	}
	return orphans, nil
}

func joinPath(root, rel string) string {
	if root == "" {
		return rel
	}
	return strings.TrimRight(root, "/") + "/" + strings.TrimLeft(rel, "/")
}
