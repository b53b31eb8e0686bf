package compact

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rajeshgoli/engram/internal/docs"
)

// DefaultTimelineThresholdChars is the document size (in characters) above
// which timeline compaction engages.
const DefaultTimelineThresholdChars = 50_000

// DefaultTimelineAgeMonths is how old (in months, relative to the
// reference date) a phase's end date must be before it is collapsed.
const DefaultTimelineAgeMonths = 6

var (
	phaseRE       = regexp.MustCompile(`^Phase:`)
	dateRangeRE   = regexp.MustCompile(`\(([^)]+)\)\s*$`)
	monthYearRE   = regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\w*\s+(\d{4})`)
	isoDateRE     = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	yearMonthRE   = regexp.MustCompile(`(\d{4})-(\d{2})`)
	monthPrefixRE = regexp.MustCompile(`(?i)(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\w*`)
)

var monthNumbers = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// parsePhaseEndDate extracts the end date from a phase heading's trailing
// date range, trying ISO, YYYY-MM, and "Month YYYY" forms in that order.
// Returns the zero time if no recognizable date is present.
func parsePhaseEndDate(heading string) time.Time {
	m := dateRangeRE.FindStringSubmatch(heading)
	if m == nil {
		return time.Time{}
	}
	dateText := m[1]

	if isoMatches := isoDateRE.FindAllStringSubmatch(dateText, -1); len(isoMatches) > 0 {
		last := isoMatches[len(isoMatches)-1]
		y, _ := strconv.Atoi(last[1])
		mo, _ := strconv.Atoi(last[2])
		d, _ := strconv.Atoi(last[3])
		return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	}
	if ymMatches := yearMonthRE.FindAllStringSubmatch(dateText, -1); len(ymMatches) > 0 {
		last := ymMatches[len(ymMatches)-1]
		y, _ := strconv.Atoi(last[1])
		mo, _ := strconv.Atoi(last[2])
		return time.Date(y, time.Month(mo), 1, 0, 0, 0, 0, time.UTC)
	}
	if myMatches := monthYearRE.FindAllStringSubmatch(dateText, -1); len(myMatches) > 0 {
		last := myMatches[len(myMatches)-1]
		year, _ := strconv.Atoi(last[2])
		monthMatches := monthPrefixRE.FindAllString(dateText, -1)
		if len(monthMatches) == 0 {
			return time.Time{}
		}
		monthName := strings.ToLower(monthMatches[len(monthMatches)-1])
		if len(monthName) > 3 {
			monthName = monthName[:3]
		}
		if mo, ok := monthNumbers[monthName]; ok {
			return time.Date(year, time.Month(mo), 1, 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Time{}
}

// summarizePhase collapses a phase section to a single paragraph
// (≤~300 chars), preserving every ID referenced in the original body by
// appending any that the summary text itself dropped.
func summarizePhase(sectionText, heading string) string {
	ids := docs.ExtractReferencedIDs(sectionText)

	lines := strings.Split(sectionText, "\n")
	var bodyLines []string
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) != "" {
			bodyLines = append(bodyLines, l)
		}
	}

	var summaryParts []string
	charCount := 0
	for _, line := range bodyLines {
		if strings.HasPrefix(line, "#") {
			continue
		}
		cleaned := strings.TrimLeft(strings.TrimSpace(line), "- ")
		summaryParts = append(summaryParts, cleaned)
		charCount += len(cleaned)
		if charCount > 300 {
			break
		}
	}

	summary := strings.Join(summaryParts, " ")
	if len(summary) > 300 {
		truncated := summary[:300]
		if idx := strings.LastIndex(truncated, " "); idx > 0 {
			truncated = truncated[:idx]
		}
		summary = truncated + "..."
	}

	keptIDs := make(map[string]bool)
	for _, id := range docs.ExtractReferencedIDs(summary) {
		keptIDs[id] = true
	}
	var missing []string
	seenMissing := make(map[string]bool)
	for _, id := range ids {
		if !keptIDs[id] && !seenMissing[id] {
			seenMissing[id] = true
			missing = append(missing, id)
		}
	}

	suffix := ""
	if len(missing) > 0 {
		sort.Strings(missing)
		suffix = fmt.Sprintf(" (refs: %s)", strings.Join(missing, ", "))
	}

	return heading + "\n" + summary + suffix
}

// CompactTimeline collapses phases older than ageMonths (relative to
// referenceDate) in timeline.md to single-paragraph summaries, but only
// once the document exceeds thresholdChars. Grounded on
// compact/timeline.py's compact_timeline.
func CompactTimeline(content string, thresholdChars, ageMonths int, referenceDate time.Time) (string, int) {
	if len(content) < thresholdChars {
		return content, 0
	}
	if referenceDate.IsZero() {
		referenceDate = time.Now().UTC()
	}
	cutoff := referenceDate.AddDate(0, 0, -ageMonths*30)

	sections := docs.ParseSections(content)
	if len(sections) == 0 {
		return content, 0
	}

	lines := strings.Split(content, "\n")
	preamble := strings.Join(lines[:sections[0].StartLine], "\n")

	parts := []string{preamble}
	charsSaved := 0

	for _, sec := range sections {
		isPhase := phaseRE.MatchString(sec.Heading)
		if isPhase {
			end := parsePhaseEndDate(sec.Heading)
			if !end.IsZero() && end.Before(cutoff) {
				summary := summarizePhase(sec.Text, "## "+sec.Heading)
				parts = append(parts, summary+"\n")
				charsSaved += len(sec.Text) - len(summary) - 1
				continue
			}
		}
		parts = append(parts, sec.Text)
	}

	if charsSaved == 0 {
		return content, 0
	}
	return strings.Join(parts, "\n"), charsSaved
}
