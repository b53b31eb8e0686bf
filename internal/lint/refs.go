package lint

import (
	"fmt"
	"sort"

	"github.com/rajeshgoli/engram/internal/docs"
)

// ValidateNoDuplicateIDs checks that no stable ID appears more than once
// across its home registry and graveyard, grounded on
// refs.py's validate_no_duplicate_ids.
func ValidateNoDuplicateIDs(contents map[string]string) []Violation {
	groups := map[string][][2]string{"C": nil, "E": nil, "W": nil}

	addIfPresent := func(prefix, docType string) {
		if content, ok := contents[docType]; ok {
			groups[prefix] = append(groups[prefix], [2]string{docType, content})
		}
	}
	addIfPresent("C", "concepts")
	addIfPresent("E", "epistemic")
	addIfPresent("W", "workflows")
	addIfPresent("C", "concept_graveyard")
	addIfPresent("E", "epistemic_graveyard")

	var out []Violation
	for prefix, pairs := range groups {
		seen := make(map[string]string) // id -> first doc_type
		for _, pair := range pairs {
			docType, content := pair[0], pair[1]
			for _, section := range docs.ParseSections(content) {
				p, num, ok := docs.HeadingID(section.Heading)
				if !ok || p != prefix {
					continue
				}
				id := docs.FormatID(p, num)
				if first, dup := seen[id]; dup {
					out = append(out, Violation{docType, id, fmt.Sprintf("Duplicate ID %q — also in %s", id, first)})
				} else {
					seen[id] = docType
				}
			}
		}
	}
	return out
}

var homeDoc = map[string]string{"C": "concepts", "E": "epistemic", "W": "workflows"}

// ValidateCrossReferences checks that every C###/E###/W### reference found
// anywhere in contents resolves to an existing heading somewhere in
// contents, grounded on refs.py's validate_cross_references.
func ValidateCrossReferences(contents map[string]string) []Violation {
	defined := make(map[string]bool)
	for _, content := range contents {
		for _, section := range docs.ParseSections(content) {
			if prefix, num, ok := docs.HeadingID(section.Heading); ok {
				defined[docs.FormatID(prefix, num)] = true
			}
		}
	}

	docTypes := make([]string, 0, len(contents))
	for dt := range contents {
		docTypes = append(docTypes, dt)
	}
	sort.Strings(docTypes)

	var out []Violation
	for _, docType := range docTypes {
		referenced := docs.ExtractReferencedIDs(contents[docType])
		seen := make(map[string]bool)
		var unique []string
		for _, id := range referenced {
			if !seen[id] {
				seen[id] = true
				unique = append(unique, id)
			}
		}
		sort.Strings(unique)
		for _, id := range unique {
			if defined[id] {
				continue
			}
			expectedHome := homeDoc[id[:1]]
			if expectedHome == "" {
				expectedHome = "unknown"
			}
			out = append(out, Violation{docType, "", fmt.Sprintf("Unresolved reference %q — not found in %s or its graveyard", id, expectedHome)})
		}
	}
	return out
}
