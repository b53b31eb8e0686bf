package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/migrate"
	"github.com/rajeshgoli/engram/internal/store"
)

func setupMigrateProject(t *testing.T) (string, config.Config, *store.Store) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Defaults()
	paths := config.ResolveDocPaths(cfg, root)

	if err := os.MkdirAll(filepath.Dir(paths.Concepts), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Concepts, []byte(
		"# Concept Registry\n\n"+
			"## Widget cache (ACTIVE)\n- Code: internal/widget/cache.go\n\n"+
			"## Stale loader (DEAD)\n- Code: internal/widget/loader.go\nReplaced by the cache.\n",
	), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Epistemic, []byte(
		"# Epistemic State\n\n"+
			"## Cache invalidation is cheap (believed)\n- Evidence: benchmark shows <1ms\n",
	), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Workflows, []byte("# Workflow Registry\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(paths.Timeline, []byte("# Timeline\n\n"), 0644); err != nil {
		t.Fatal(err)
	}

	engramDir := filepath.Join(root, ".engram")
	if err := os.MkdirAll(engramDir, 0755); err != nil {
		t.Fatal(err)
	}
	s, err := store.Open(filepath.Join(engramDir, "engram.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	return root, cfg, s
}

func TestMigrateBackfillsIDsAndMovesDeadToGraveyard(t *testing.T) {
	root, cfg, s := setupMigrateProject(t)

	result, err := migrate.Migrate(root, cfg, s, nil)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !result.Lint.Passed {
		t.Errorf("expected migration to leave docs lint-clean, got violations: %v", result.Lint.Violations)
	}

	paths := config.ResolveDocPaths(cfg, root)
	concepts, err := os.ReadFile(paths.Concepts)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(concepts), "## C001: Widget cache (ACTIVE)") {
		t.Errorf("expected C001 assigned to Widget cache, got:\n%s", concepts)
	}
	if strings.Contains(string(concepts), "Stale loader") {
		t.Error("expected DEAD entry moved out of living doc")
	}

	graveyard, err := os.ReadFile(paths.ConceptGraveyard)
	if err != nil {
		t.Fatalf("read graveyard: %v", err)
	}
	if !strings.Contains(string(graveyard), "Stale loader") {
		t.Error("expected DEAD entry archived in graveyard")
	}

	epistemic, err := os.ReadFile(paths.Epistemic)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(epistemic), "## E001:") {
		t.Errorf("expected E001 assigned in epistemic doc, got:\n%s", epistemic)
	}

	if result.Counters["C"] < 2 || result.Counters["E"] < 2 {
		t.Errorf("expected counters advanced past assigned IDs, got %v", result.Counters)
	}
}

func TestMigrateExtractsWorkflowEntries(t *testing.T) {
	root, cfg, s := setupMigrateProject(t)
	paths := config.ResolveDocPaths(cfg, root)

	if err := os.WriteFile(paths.Concepts, []byte(
		"# Concept Registry\n\n"+
			"## Release process (CURRENT)\n"+
			"- Context: cutting a release\n"+
			"- Trigger: version bump merged\n",
	), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := migrate.Migrate(root, cfg, s, nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	concepts, err := os.ReadFile(paths.Concepts)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(concepts), "Release process") {
		t.Error("expected workflow-shaped entry extracted out of concepts")
	}

	workflows, err := os.ReadFile(paths.Workflows)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(workflows), "## W001: Release process (CURRENT)") {
		t.Errorf("expected W001 assigned to extracted workflow, got:\n%s", workflows)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	root, cfg, s := setupMigrateProject(t)

	if _, err := migrate.Migrate(root, cfg, s, nil); err != nil {
		t.Fatalf("first migrate: %v", err)
	}
	paths := config.ResolveDocPaths(cfg, root)
	firstConcepts, err := os.ReadFile(paths.Concepts)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := migrate.Migrate(root, cfg, s, nil); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	secondConcepts, err := os.ReadFile(paths.Concepts)
	if err != nil {
		t.Fatal(err)
	}

	if string(firstConcepts) != string(secondConcepts) {
		t.Errorf("expected second migration pass to be a no-op:\nfirst:\n%s\nsecond:\n%s", firstConcepts, secondConcepts)
	}
}
