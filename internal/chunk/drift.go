// Package chunk implements the chunk scheduler: drift scanning, adaptive
// budget computation, and next-chunk assembly from the ingestion queue.
// Grounded on original_source/engram/fold/chunker.py.
package chunk

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/rajeshgoli/engram/internal/compact"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/docs"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// naturalDateParser recognizes the informal dates ("last Tuesday", "March
// 3") that hand-written History bullets sometimes use instead of ISO dates.
// A single shared parser is cheap to build once and safe for concurrent
// reads across drift scans.
var naturalDateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// DriftEntry is one item flagged by a drift scan (orphan, stale claim,
// workflow repetition candidate).
type DriftEntry struct {
	ID      string
	Name    string
	Status  string
	DaysOld int
	Paths   []string
}

// DriftReport holds the results of scanning all four living docs for the
// conditions that trigger a triage chunk instead of a normal fold chunk.
// Grounded on chunker.py's DriftReport dataclass.
type DriftReport struct {
	OrphanedConcepts     []DriftEntry
	EpistemicAudit       []DriftEntry
	ContestedClaims      []DriftEntry
	StaleUnverified      []DriftEntry
	WorkflowRepetitions  []DriftEntry
	RefCommit            string
}

// driftPriority is the fixed order in which Triggered checks thresholds:
// orphans > epistemic audit > contested > stale unverified > workflow.
var driftPriority = []string{
	"orphan_triage", "epistemic_audit", "contested_review", "stale_unverified", "workflow_synthesis",
}

// Triggered returns the highest-priority drift type whose count exceeds its
// configured threshold, or "" if none do.
func (d DriftReport) Triggered(t config.ThresholdsConfig) string {
	counts := map[string]int{
		"orphan_triage":       len(d.OrphanedConcepts),
		"epistemic_audit":     len(d.EpistemicAudit),
		"contested_review":    len(d.ContestedClaims),
		"stale_unverified":    len(d.StaleUnverified),
		"workflow_synthesis":  len(d.WorkflowRepetitions),
	}
	thresholds := map[string]int{
		"orphan_triage":      orDefault(t.OrphanTriage, 50),
		"epistemic_audit":    0,
		"contested_review":   orDefault(t.ContestedReviewCount, 5),
		"stale_unverified":   orDefault(t.StaleUnverifiedCount, 10),
		"workflow_synthesis": orDefault(t.WorkflowRepetition, 3),
	}
	for _, name := range driftPriority {
		if counts[name] > thresholds[name] {
			return name
		}
	}
	return ""
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

var inlineDateRE = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)

// latestInlineDate returns the most recent date found anywhere in text,
// checking ISO dates (YYYY-MM-DD) first and falling back to natural-language
// phrasing ("March 3, 2026", "last Tuesday") per line via naturalDateParser,
// mirroring chunker.py's _parse_natural_date/_extract_latest_date without
// reimplementing its month-name grammar by hand.
func latestInlineDate(text string) time.Time {
	var latest time.Time
	for _, m := range inlineDateRE.FindAllStringSubmatch(text, -1) {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.After(latest) {
			latest = t
		}
	}
	if !latest.IsZero() {
		return latest
	}
	for _, line := range strings.Split(text, "\n") {
		if r, err := naturalDateParser.Parse(line, time.Now().UTC()); err == nil && r != nil {
			if r.Time.After(latest) {
				latest = r.Time
			}
		}
	}
	return latest
}

// latestActivityDate combines the section's inline dates with, when a repo
// is available, the git-blame date of its heading line — whichever is more
// recent — mirroring chunker.py's _latest_epistemic_activity_date minus
// its external per-entry history file lookup (not ported; see DESIGN.md).
func latestActivityDate(repo vcs.Repo, relPath string, sec docs.Section) time.Time {
	latest := latestInlineDate(sec.Text)
	if repo != nil {
		if blameDate, err := repo.BlameLineDate(relPath, sec.StartLine+1); err == nil && blameDate.After(latest) {
			latest = blameDate
		}
	}
	return latest
}

func readFile(path string) (string, bool) {
	data, err := os.ReadFile(path) // #nosec G304 - project-controlled living-doc path
	if err != nil {
		return "", false
	}
	return string(data), true
}

// findClaimsByStatus returns non-stub sections with the given status whose
// latest activity date is older than daysThreshold, grounded on
// chunker.py's _find_claims_by_status.
func findClaimsByStatus(path, relPath string, repo vcs.Repo, status string, daysThreshold int, now time.Time) []DriftEntry {
	content, ok := readFile(path)
	if !ok {
		return nil
	}
	var out []DriftEntry
	for _, sec := range docs.ParseSections(content) {
		if sec.Status != status || docs.IsStub(sec.Heading) {
			continue
		}
		latest := latestActivityDate(repo, relPath, sec)
		if latest.IsZero() {
			continue
		}
		ageDays := int(now.Sub(latest).Hours() / 24)
		if ageDays > daysThreshold {
			out = append(out, DriftEntry{ID: headingID(sec.Heading), Name: sec.Heading, Status: status, DaysOld: ageDays})
		}
	}
	return out
}

func headingID(heading string) string {
	if prefix, n, ok := docs.HeadingID(heading); ok {
		return docs.FormatID(prefix, n)
	}
	return ""
}

// findStaleEpistemicEntries returns believed/unverified entries whose
// latest activity predates daysThreshold and are not mentioned since by a
// queued item, grounded on chunker.py's _find_stale_epistemic_entries.
// Queue cross-referencing is intentionally dropped in this port (see
// DESIGN.md) — staleness is judged purely on doc age.
func findStaleEpistemicEntries(path, relPath string, repo vcs.Repo, daysThreshold int, now time.Time) []DriftEntry {
	content, ok := readFile(path)
	if !ok {
		return nil
	}
	var out []DriftEntry
	for _, sec := range docs.ParseSections(content) {
		if sec.Status != "believed" && sec.Status != "unverified" {
			continue
		}
		if docs.IsStub(sec.Heading) {
			continue
		}
		latest := latestActivityDate(repo, relPath, sec)
		if latest.IsZero() {
			continue
		}
		ageDays := int(now.Sub(latest).Hours() / 24)
		if ageDays <= daysThreshold {
			continue
		}
		out = append(out, DriftEntry{ID: headingID(sec.Heading), Name: sec.Heading, Status: sec.Status, DaysOld: ageDays})
	}
	return out
}

// findWorkflowRepetitions returns every CURRENT, non-stub workflow entry —
// candidates for synthesis once their count exceeds the threshold.
// Grounded on chunker.py's _find_workflow_repetitions.
func findWorkflowRepetitions(path string) []DriftEntry {
	content, ok := readFile(path)
	if !ok {
		return nil
	}
	var out []DriftEntry
	for _, sec := range docs.ParseSections(content) {
		if sec.Status != "current" || docs.IsStub(sec.Heading) {
			continue
		}
		out = append(out, DriftEntry{ID: headingID(sec.Heading), Name: sec.Heading, Status: "current"})
	}
	return out
}

// ScanDrift scans all four living docs for the conditions that trigger a
// triage chunk. When foldFrom is non-empty, orphan detection checks file
// existence at the git commit nearest that date instead of the working
// tree. Grounded on chunker.py's scan_drift.
func ScanDrift(cfg config.Config, projectRoot string, repo vcs.Repo, foldFrom string) DriftReport {
	paths := config.ResolveDocPaths(cfg, projectRoot)

	var refCommit string
	if foldFrom != "" && repo != nil {
		if t, err := time.Parse("2006-01-02", foldFrom); err == nil {
			if c, err := repo.ResolveRefCommit(t); err == nil {
				refCommit = c
			}
		}
	}

	report := DriftReport{RefCommit: refCommit}

	if registryContent, ok := readFile(paths.Concepts); ok {
		var orphans []compact.OrphanedConcept
		var err error
		if refCommit != "" && repo != nil {
			orphans, err = compact.FindOrphanedConceptsAtCommit(registryContent, repo, refCommit, nil)
		} else {
			orphans, err = compact.FindOrphanedConcepts(registryContent, projectRoot, nil)
		}
		if err == nil {
			for _, o := range orphans {
				report.OrphanedConcepts = append(report.OrphanedConcepts, DriftEntry{ID: o.ID, Name: o.Name, Paths: o.Paths})
			}
		}
	}

	now := time.Now().UTC()
	epistemicRel := relPath(projectRoot, paths.Epistemic)
	report.EpistemicAudit = findStaleEpistemicEntries(paths.Epistemic, epistemicRel, repo, orDefault(cfg.Thresholds.StaleEpistemicDays, 90), now)
	report.ContestedClaims = findClaimsByStatus(paths.Epistemic, epistemicRel, repo, "contested", orDefault(cfg.Thresholds.ContestedReviewDays, 14), now)
	report.StaleUnverified = findClaimsByStatus(paths.Epistemic, epistemicRel, repo, "unverified", orDefault(cfg.Thresholds.StaleUnverifiedDays, 30), now)
	report.WorkflowRepetitions = findWorkflowRepetitions(paths.Workflows)

	return report
}

func relPath(root, full string) string {
	if len(full) > len(root) && full[:len(root)] == root {
		rest := full[len(root):]
		for len(rest) > 0 && (rest[0] == '/' || rest[0] == '\\') {
			rest = rest[1:]
		}
		return rest
	}
	return full
}

// workflowIDsSignature returns a stable, sorted comma-joined signature of a
// workflow-repetition set's IDs, used for the workflow-synthesis cooldown.
func workflowIDsSignature(entries []DriftEntry) string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.ID != "" {
			ids = append(ids, e.ID)
		}
	}
	if len(ids) == 0 {
		return ""
	}
	sort.Strings(ids)
	joined := ids[0]
	for _, id := range ids[1:] {
		joined += "," + id
	}
	return joined
}
