// Package docs implements the parsing primitives shared by every Engram
// component that reads a living document: splitting markdown into H2
// sections, extracting stable IDs, and deriving per-section status tokens.
//
// The heading grammar is frozen by the specification (regexes are the
// specification, not an implementation detail); SectionParser exists so a
// hand-rolled state machine can stand in for the regex-driven scanner
// without callers noticing.
package docs

import (
	"regexp"
	"strings"
)

// Section is one H2-delimited slice of a living document.
type Section struct {
	Heading    string // verbatim heading line, without the leading "## "
	Status     string // lower-cased first parenthesized word, or "" if none
	StartLine  int    // 0-indexed, inclusive
	EndLine    int    // 0-indexed, exclusive
	Text       string // verbatim section text, heading line through EndLine-1
}

// headingRE captures the H2 heading line itself.
var headingRE = regexp.MustCompile(`^## (.+)$`)

// statusRE pulls the first parenthesized modifier off a heading, e.g.
// "C001: foo (ACTIVE)" -> "ACTIVE", "E002: bar (refuted → E005)" -> "refuted".
var statusRE = regexp.MustCompile(`\(([A-Za-z][A-Za-z_-]*)`)

// StableIDPrefixRE matches an ID at the start of a heading's entry label,
// e.g. the "C001" in "## C001: foo (ACTIVE)".
var StableIDPrefixRE = regexp.MustCompile(`^([CEW])(\d{3,}):`)

// StableIDRE matches any stable ID occurring anywhere in text, used for
// reference extraction. Per DESIGN.md Open Question 3, this follows
// spec.md's explicit \d{3,} grammar, not the original source's
// inconsistent \d{3} in fold/parse.py.
var StableIDRE = regexp.MustCompile(`\b([CEW])(\d{3,})\b`)

// stubRE matches "## <prefix><digits>: <name> (<status>) → <target>".
var stubRE = regexp.MustCompile(`^[CEW]\d{3,}:\s*.+\s+\([^)]+\)\s*(→|->)\s*\S+`)

// SectionParser splits a document into H2 sections. ParseSections is the
// default, regex-driven implementation; it is exposed as an interface so a
// future hand-rolled scanner can be swapped in without touching callers.
type SectionParser interface {
	Parse(content string) []Section
}

type regexSectionParser struct{}

// DefaultParser is the regex-driven SectionParser used throughout Engram.
var DefaultParser SectionParser = regexSectionParser{}

func (regexSectionParser) Parse(content string) []Section {
	return ParseSections(content)
}

// ParseSections splits content into H2 sections. Lines before the first H2
// heading (a document preamble, e.g. a title) are not returned as a
// section — callers that need the preamble should slice content
// themselves using the first section's StartLine. Parsing is lossless
// against line count: every line of content belongs to exactly one
// section's [StartLine, EndLine) range, or to the discarded preamble.
func ParseSections(content string) []Section {
	lines := strings.Split(content, "\n")

	var sections []Section
	var cur *Section

	flush := func(endLine int) {
		if cur == nil {
			return
		}
		cur.EndLine = endLine
		cur.Text = strings.Join(lines[cur.StartLine:cur.EndLine], "\n")
		sections = append(sections, *cur)
		cur = nil
	}

	for i, line := range lines {
		if m := headingRE.FindStringSubmatch(line); m != nil {
			flush(i)
			heading := m[1]
			cur = &Section{
				Heading:   heading,
				Status:    deriveStatus(heading),
				StartLine: i,
			}
		}
	}
	flush(len(lines))

	return sections
}

// deriveStatus returns the lower-cased first parenthesized word of a
// heading, or "" if the heading carries no recognized status modifier.
func deriveStatus(heading string) string {
	m := statusRE.FindStringSubmatch(heading)
	if m == nil {
		return ""
	}
	return strings.ToLower(m[1])
}

// IsStub reports whether a heading is a one-line stub pointer of the form
// "<prefix><digits>: <name> (<status>) → <target>".
func IsStub(heading string) bool {
	return stubRE.MatchString(heading)
}

// HeadingID extracts the stable ID prefixing a heading's entry label, if
// any. Returns ("", 0, false) for headings with no leading ID (e.g. a
// timeline phase heading).
func HeadingID(heading string) (prefix string, number int, ok bool) {
	m := StableIDPrefixRE.FindStringSubmatch(heading)
	if m == nil {
		return "", 0, false
	}
	return m[1], atoiSafe(m[2]), true
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// ExtractReferencedIDs returns every C###/E###/W### occurrence in text, in
// the order it appears, including duplicates.
func ExtractReferencedIDs(text string) []string {
	matches := StableIDRE.FindAllString(text, -1)
	return matches
}

// FormatID renders a stable ID with at least three digits, e.g. FormatID("C", 1) == "C001".
func FormatID(prefix string, n int) string {
	s := itoa(n)
	for len(s) < 3 {
		s = "0" + s
	}
	return prefix + s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf []byte
	for n > 0 {
		buf = append([]byte{byte('0' + n%10)}, buf...)
		n /= 10
	}
	if neg {
		buf = append([]byte{'-'}, buf...)
	}
	return string(buf)
}
