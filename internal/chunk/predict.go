package chunk

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/docs"
	"github.com/rajeshgoli/engram/internal/queue"
)

// PredictTouchedIDs is a cheap planning pass: it previews the first
// maxItems queue entries and collects every stable ID mentioned in their
// rendered text, capped at maxIDsPerType per prefix and sorted
// numerically. Grounded on chunker.py's _predict_touched_ids.
func PredictTouchedIDs(items []queue.Entry, projectRoot string, maxItems, maxIDsPerType int) map[string][]string {
	if maxItems < 1 {
		maxItems = 1
	}
	preview := items
	if len(preview) > maxItems {
		preview = preview[:maxItems]
	}

	predicted := map[string]map[string]bool{"C": {}, "E": {}, "W": {}}
	for _, item := range preview {
		text := readQueueEntryText(projectRoot, item)
		if text == "" {
			continue
		}
		for _, m := range docs.StableIDRE.FindAllStringSubmatch(text, -1) {
			prefix := strings.ToUpper(m[1])
			n, _ := strconv.Atoi(m[2])
			bucket, ok := predicted[prefix]
			if !ok {
				continue
			}
			bucket[docs.FormatID(prefix, n)] = true
		}
	}

	result := make(map[string][]string)
	for _, prefix := range []string{"C", "E", "W"} {
		ids := make([]string, 0, len(predicted[prefix]))
		for id := range predicted[prefix] {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			ni, _ := strconv.Atoi(ids[i][1:])
			nj, _ := strconv.Atoi(ids[j][1:])
			return ni < nj
		})
		if maxIDsPerType > 0 && len(ids) > maxIDsPerType {
			ids = ids[:maxIDsPerType]
		}
		if len(ids) > 0 {
			result[prefix] = ids
		}
	}
	return result
}

func readQueueEntryText(projectRoot string, item queue.Entry) string {
	itemPath := filepath.Join(projectRoot, item.Path)
	data, err := os.ReadFile(itemPath) // #nosec G304 - queue-controlled project-relative path
	if err != nil {
		return ""
	}
	if item.Type == "issue" {
		var issue queue.Issue
		if err := json.Unmarshal(data, &issue); err != nil {
			return ""
		}
		return queue.RenderIssueMarkdown(issue)
	}
	return string(data)
}

// docCurrentDir maps a living-doc stem to its "current/" per-ID directory,
// e.g. "docs/decisions/concept_registry.md" -> ".../concept_registry/current".
func docCurrentDir(docPath string) string {
	ext := filepath.Ext(docPath)
	return strings.TrimSuffix(docPath, ext) + "/current"
}

// CollectContextPack collects existing per-ID "current" snapshot files for
// the predicted IDs, stopping once maxChars would be exceeded, so the
// adaptive budget calculation can account for their size up front.
// Grounded on chunker.py's _collect_context_pack.
func CollectContextPack(paths config.DocPaths, predictedIDs map[string][]string, maxIDsPerType, maxChars int) ([]string, int, map[string][]string) {
	roots := map[string]string{
		"C": docCurrentDir(paths.Concepts),
		"E": docCurrentDir(paths.Epistemic),
		"W": docCurrentDir(paths.Workflows),
	}

	var files []string
	chars := 0
	included := make(map[string][]string)

	for _, prefix := range []string{"C", "E", "W"} {
		ids := predictedIDs[prefix]
		if maxIDsPerType > 0 && len(ids) > maxIDsPerType {
			ids = ids[:maxIDsPerType]
		}
		for _, id := range ids {
			candidate := filepath.Join(roots[prefix], id+".md")
			content, ok := readFile(candidate)
			if !ok {
				continue
			}
			if maxChars > 0 && chars+len(content) > maxChars {
				return files, chars, included
			}
			files = append(files, candidate)
			chars += len(content)
			included[prefix] = append(included[prefix], id)
		}
	}
	return files, chars, included
}
