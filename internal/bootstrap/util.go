package bootstrap

import (
	"os"

	"github.com/rajeshgoli/engram/internal/config"
)

func readFile(path string) (string, bool) {
	data, err := os.ReadFile(path) // #nosec G304 - project-controlled doc/prompt path
	if err != nil {
		return "", false
	}
	return string(data), true
}

// readDocs reads each named living/graveyard doc at its resolved path,
// returning "" for any that don't exist yet. Grounded on dispatch.py's
// read_docs (duplicated here, as internal/dispatch's own copy is
// unexported, rather than introducing a shared-package dependency for one
// small helper).
func readDocs(paths config.DocPaths, keys []string) map[string]string {
	resolved := map[string]string{
		"timeline": paths.Timeline, "concepts": paths.Concepts,
		"epistemic": paths.Epistemic, "workflows": paths.Workflows,
		"concept_graveyard": paths.ConceptGraveyard, "epistemic_graveyard": paths.EpistemicGraveyard,
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		path, ok := resolved[k]
		if !ok {
			continue
		}
		if content, ok := readFile(path); ok {
			out[k] = content
		} else {
			out[k] = ""
		}
	}
	return out
}
