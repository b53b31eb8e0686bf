// Package bootstrap seeds a project's living documents from a point-in-time
// repository snapshot, and folds forward from that point to the present.
// Grounded on original_source/engram/bootstrap/seed.py and
// original_source/engram/bootstrap/fold.py.
//
// Two paths:
//   - SeedCurrent (Path B): seed from today's repo state.
//   - SeedAtDate (Path A): check out an ephemeral detached worktree at the
//     commit nearest a target date, seed from that snapshot, then run
//     ForwardFold to bring the living docs up to the present.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rajeshgoli/engram/internal/agent"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/docs"
	"github.com/rajeshgoli/engram/internal/queue"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// seedIDBudget is how many stable IDs to pre-assign for the seed round,
// matching seed.py's _SEED_ID_BUDGET.
var seedIDBudget = struct{ C, E, W int }{C: 30, E: 20, W: 10}

// AgentTimeout is the seed agent's subprocess timeout, matching seed.py's
// 600-second ceiling (the same value as agent.DefaultTimeout).
const AgentTimeout = agent.DefaultTimeout

// maxSnapshotDocs/maxSnapshotIssues bound how much of the repo the seed
// snapshot includes, matching _collect_repo_snapshot's max_docs=20 and
// issue_files[:30].
const (
	maxSnapshotDocs       = 20
	maxSnapshotIssues     = 30
	readmeTruncateChars   = 10_000
	configFileTruncate    = 5_000
	snapshotDocTruncate   = 8_000
	snapshotIssueTruncate = 3_000
)

// Seeder drives the bootstrap seed and forward-fold flow for one project.
type Seeder struct {
	ProjectRoot string
	Config      config.Config
	Store       *store.Store
	Repo        vcs.Repo
	Agent       agent.Invoker
	Logf        func(format string, args ...any)
}

func (s *Seeder) logf(format string, args ...any) {
	if s.Logf != nil {
		s.Logf(format, args...)
	}
}

// SeedCurrent runs Path B: seed the living docs from the project's current
// working-tree state, with no forward fold afterward.
func (s *Seeder) SeedCurrent(ctx context.Context) (bool, error) {
	return s.seed(ctx, s.ProjectRoot)
}

// SeedAtDate runs Path A: check out an ephemeral detached worktree at the
// commit nearest fromDate, seed from that snapshot, then fold forward from
// fromDate to the present. The worktree is removed when SeedAtDate
// returns, after the forward fold.
func (s *Seeder) SeedAtDate(ctx context.Context, fromDate time.Time) (bool, error) {
	commit, err := s.Repo.ResolveRefCommit(fromDate)
	if err != nil {
		return false, fmt.Errorf("seed at date: resolve commit: %w", err)
	}

	dir, err := os.MkdirTemp("", "engram-seed-")
	if err != nil {
		return false, fmt.Errorf("seed at date: create worktree dir: %w", err)
	}
	if err := os.Remove(dir); err != nil {
		return false, fmt.Errorf("seed at date: clear worktree placeholder: %w", err)
	}

	worktree, err := s.Repo.CreateDetachedWorktree(dir, commit)
	if err != nil {
		return false, fmt.Errorf("seed at date: create worktree: %w", err)
	}
	shortCommit := commit
	if len(shortCommit) > 8 {
		shortCommit = shortCommit[:8]
	}
	s.logf("seeding from snapshot at %s (commit %s)", fromDate.Format("2006-01-02"), shortCommit)

	defer func() {
		_ = s.Repo.RemoveWorktree(worktree)
		_ = os.RemoveAll(worktree)
		s.logf("removed worktree %s", worktree)
	}()

	ok, err := s.seed(ctx, worktree)
	if err != nil || !ok {
		return ok, err
	}

	s.logf("seed complete, folding forward from %s to today", fromDate.Format("2006-01-02"))
	f := &Folder{
		ProjectRoot: s.ProjectRoot,
		Config:      s.Config,
		Store:       s.Store,
		Repo:        s.Repo,
		Agent:       s.Agent,
		Logf:        s.Logf,
	}
	foldOK, err := f.ForwardFold(ctx, fromDate)
	if err != nil {
		return false, err
	}
	if !foldOK {
		s.logf("forward fold had failures (seed itself succeeded)")
	}
	return foldOK, nil
}

// seed collects a snapshot from sourceRoot, ensures the living docs exist,
// and dispatches the seed agent to populate them.
func (s *Seeder) seed(ctx context.Context, sourceRoot string) (bool, error) {
	if err := s.ensureLivingDocs(); err != nil {
		return false, fmt.Errorf("seed: ensure living docs: %w", err)
	}

	snapshot := s.collectRepoSnapshot(sourceRoot)
	return s.dispatchSeedAgent(ctx, snapshot)
}

// ensureLivingDocs creates any missing living-doc or graveyard file with
// its schema header, matching seed.py's _ensure_living_docs.
func (s *Seeder) ensureLivingDocs() error {
	paths := config.ResolveDocPaths(s.Config, s.ProjectRoot)
	living := map[string]string{
		"timeline":  paths.Timeline,
		"concepts":  paths.Concepts,
		"epistemic": paths.Epistemic,
		"workflows": paths.Workflows,
	}
	for key, path := range living {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(docs.LivingDocHeaders[key]), 0644); err != nil {
			return err
		}
	}

	graveyard := map[string]string{
		"concepts":  paths.ConceptGraveyard,
		"epistemic": paths.EpistemicGraveyard,
	}
	for key, path := range graveyard {
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return err
		}
		if err := os.WriteFile(path, []byte(docs.GraveyardHeaders[key]), 0644); err != nil {
			return err
		}
	}
	return nil
}

// collectRepoSnapshot renders a textual snapshot of sourceRoot: its
// directory tree, README, key config files, configured docs, and local
// issue cache. Grounded on seed.py's _collect_repo_snapshot.
func (s *Seeder) collectRepoSnapshot(sourceRoot string) string {
	var parts []string

	if tree := renderDirectoryTree(sourceRoot); tree != "" {
		parts = append(parts, "## Repository Structure\n\n```\n"+tree+"\n```\n")
	}

	for _, name := range []string{"README.md", "readme.md", "README.rst", "README"} {
		path := filepath.Join(sourceRoot, name)
		data, err := os.ReadFile(path) // #nosec G304 - seed snapshot of a controlled worktree/project root
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s\n", name, truncate(string(data), readmeTruncateChars)))
		break
	}

	for _, name := range []string{"pyproject.toml", "package.json", "Cargo.toml", "go.mod", "CLAUDE.md", ".claude/CLAUDE.md"} {
		path := filepath.Join(sourceRoot, name)
		data, err := os.ReadFile(path) // #nosec G304
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n```\n%s\n```\n", name, truncate(string(data), configFileTruncate)))
	}

	parts = append(parts, s.collectSnapshotDocs(sourceRoot)...)

	if issuesPart := s.collectSnapshotIssues(sourceRoot); issuesPart != "" {
		parts = append(parts, issuesPart)
	}

	return strings.Join(parts, "\n\n---\n\n")
}

func (s *Seeder) collectSnapshotDocs(sourceRoot string) []string {
	var parts []string
	collected := 0
	for _, docDirRel := range s.Config.Sources.Docs {
		docDir := filepath.Join(sourceRoot, docDirRel)
		matches, _ := filepath.Glob(filepath.Join(docDir, "*.md"))
		sort.Strings(matches)
		for _, docPath := range matches {
			if collected >= maxSnapshotDocs {
				return parts
			}
			data, err := os.ReadFile(docPath) // #nosec G304 - bounded glob of a configured docs dir
			if err != nil {
				continue
			}
			rel, err := filepath.Rel(sourceRoot, docPath)
			if err != nil {
				rel = docPath
			}
			parts = append(parts, fmt.Sprintf("## Doc: %s\n\n%s\n", rel, truncate(string(data), snapshotDocTruncate)))
			collected++
		}
	}
	return parts
}

func (s *Seeder) collectSnapshotIssues(sourceRoot string) string {
	issuesDir := filepath.Join(sourceRoot, s.Config.Sources.Issues)
	matches, _ := filepath.Glob(filepath.Join(issuesDir, "*.json"))
	sort.Strings(matches)
	if len(matches) > maxSnapshotIssues {
		matches = matches[:maxSnapshotIssues]
	}

	var issueParts []string
	for _, f := range matches {
		data, err := os.ReadFile(f) // #nosec G304 - bounded glob of the configured issues cache
		if err != nil {
			continue
		}
		var issue queue.Issue
		if err := json.Unmarshal(data, &issue); err != nil {
			continue
		}
		rendered := truncate(queue.RenderIssueMarkdown(issue), snapshotIssueTruncate)
		issueParts = append(issueParts, fmt.Sprintf("### Issue #%d: %s\n\n%s\n", issue.Number, issue.Title, rendered))
	}
	if len(issueParts) == 0 {
		return ""
	}
	return "## Issues\n\n" + strings.Join(issueParts, "\n")
}

var excludedTreeDirs = map[string]bool{
	".git": true, "node_modules": true, "venv": true, "__pycache__": true,
}

// renderDirectoryTree walks sourceRoot up to 3 levels deep, skipping the
// usual VCS/dependency/cache directories, matching seed.py's depth-limited
// `find` invocation.
func renderDirectoryTree(sourceRoot string) string {
	var lines []string
	var walk func(dir string, depth int)
	walk = func(dir string, depth int) {
		if depth > 3 {
			return
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		sort.Strings(names)
		for _, name := range names {
			if excludedTreeDirs[name] {
				continue
			}
			full := filepath.Join(dir, name)
			rel, err := filepath.Rel(sourceRoot, full)
			if err != nil {
				continue
			}
			lines = append(lines, "./"+rel)
			if info, err := os.Stat(full); err == nil && info.IsDir() {
				walk(full, depth+1)
			}
		}
	}
	walk(sourceRoot, 1)
	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// dispatchSeedAgent pre-assigns a seed ID budget, renders the seed input
// and agent prompt, writes both to .engram/, and invokes the fold agent.
// Grounded on seed.py's _dispatch_seed_agent.
func (s *Seeder) dispatchSeedAgent(ctx context.Context, snapshot string) (bool, error) {
	engramDir := filepath.Join(s.ProjectRoot, ".engram")
	if err := os.MkdirAll(engramDir, 0750); err != nil {
		return false, fmt.Errorf("dispatch seed agent: create .engram: %w", err)
	}
	docPaths := config.ResolveDocPaths(s.Config, s.ProjectRoot)

	allocator := store.NewAllocator(s.Store)
	preAssigned, err := allocator.PreAssignForChunk(nil, seedIDBudget.C, seedIDBudget.E, seedIDBudget.W)
	if err != nil {
		return false, fmt.Errorf("dispatch seed agent: pre-assign ids: %w", err)
	}

	inputPath := filepath.Join(engramDir, "seed_input.md")
	inputContent := renderSeedInput(docPaths, preAssigned) + "\n\n---\n\n# Repository Snapshot\n\n" + snapshot
	if err := os.WriteFile(inputPath, []byte(inputContent), 0644); err != nil {
		return false, fmt.Errorf("dispatch seed agent: write seed input: %w", err)
	}

	prompt := renderSeedPrompt(docPaths, inputPath)
	promptPath := filepath.Join(engramDir, "seed_prompt.txt")
	if err := os.WriteFile(promptPath, []byte(prompt), 0644); err != nil {
		return false, fmt.Errorf("dispatch seed agent: write seed prompt: %w", err)
	}

	s.logf("dispatching seed agent...")
	runCtx, cancel := context.WithTimeout(ctx, AgentTimeout)
	defer cancel()
	ok, err := s.Agent.Invoke(runCtx, prompt)
	if err != nil {
		return false, fmt.Errorf("dispatch seed agent: invoke: %w", err)
	}
	if !ok {
		s.logf("seed agent failed")
		return false, nil
	}
	s.logf("seed agent completed successfully")
	return true, nil
}

// renderSeedInput renders the seed_input.md system-instructions header
// (everything before the repository snapshot), grounded on
// fold/prompt.py's render_seed_prompt template.
func renderSeedInput(paths config.DocPaths, preAssigned map[string][]string) string {
	var b strings.Builder
	b.WriteString("# Bootstrap Seed Instructions\n\n")
	b.WriteString("Populate the living documents below from the repository snapshot that follows this section.\n")
	b.WriteString("Extract concepts, epistemic claims, timeline events, and workflows evident in the snapshot.\n\n")
	b.WriteString("## Living documents\n\n")
	fmt.Fprintf(&b, "- timeline: %s\n", paths.Timeline)
	fmt.Fprintf(&b, "- concepts: %s\n", paths.Concepts)
	fmt.Fprintf(&b, "- epistemic: %s\n", paths.Epistemic)
	fmt.Fprintf(&b, "- workflows: %s\n\n", paths.Workflows)
	b.WriteString("## Pre-assigned IDs for this seed round\n\n")
	b.WriteString(formatIDList(preAssigned))
	b.WriteString("\n")
	return b.String()
}

// renderSeedPrompt renders the agent-facing seed_prompt.txt, grounded on
// seed.py's _dispatch_seed_agent prompt text (the Jinja template backing
// fold/prompt.py's render_seed_prompt wasn't part of the retrieval pack —
// this reproduces its content directly, in the same style as
// internal/chunk/render.go's renderAgentPrompt, per DESIGN.md).
func renderSeedPrompt(paths config.DocPaths, inputPath string) string {
	var b strings.Builder
	b.WriteString("You are bootstrapping a project's knowledge base.\n\n")
	b.WriteString("IMPORTANT CONSTRAINTS:\n")
	b.WriteString("- Do NOT use the Task tool or spawn sub-agents. Do all work directly.\n")
	b.WriteString("- Do NOT use Write to overwrite entire files. Use Edit for surgical updates only.\n")
	b.WriteString("- Be SUCCINCT. High information density, no filler.\n\n")
	fmt.Fprintf(&b, "Read the input file at %s — it contains seed instructions\n", inputPath)
	b.WriteString("and a snapshot of the repository.\n\n")
	b.WriteString("Follow the instructions. Populate these 4 living documents:\n\n")
	fmt.Fprintf(&b, "1. %s\n2. %s\n3. %s\n4. %s\n\n", paths.Timeline, paths.Concepts, paths.Epistemic, paths.Workflows)
	b.WriteString("Graveyard files (append-only):\n\n")
	fmt.Fprintf(&b, "- %s\n- %s\n\n", paths.ConceptGraveyard, paths.EpistemicGraveyard)
	b.WriteString("Read each living doc first, then make surgical edits to populate entries.\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Use ONLY pre-assigned IDs for new entries (listed in the input file)\n")
	b.WriteString("- Extract concepts, claims, timeline events, workflows from the snapshot\n")
	b.WriteString("- Be succinct: 5 lines per entry ideal, 10 max\n")
	return b.String()
}

func formatIDList(ids map[string][]string) string {
	if len(ids) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, prefix := range []string{"C", "E", "W"} {
		if list := ids[prefix]; len(list) > 0 {
			fmt.Fprintf(&b, "- %s: %s\n", prefix, strings.Join(list, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
