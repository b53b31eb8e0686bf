package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/migrate"
	"github.com/rajeshgoli/engram/internal/queue"
	"github.com/rajeshgoli/engram/internal/store"
)

var migrateFoldFrom string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade v2 living docs (no stable IDs) to v3 format",
	Long: `migrate backfills stable IDs onto headings that lack them, extracts
workflow-shaped entries out of the concept/epistemic docs into the workflow
registry, bootstraps the graveyard files from DEAD/refuted entries,
rewrites name-based cross-references to stable-ID references, initializes
the ID counters, and runs a final lint pass. Safe to run more than once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}

		s, err := store.Open(filepath.Join(engramDir(root), "engram.db"))
		if err != nil {
			return fmt.Errorf("migrate: open store: %w", err)
		}
		defer s.Close()

		var foldFrom *time.Time
		if migrateFoldFrom != "" {
			t, err := queue.ParseDate(migrateFoldFrom)
			if err != nil {
				return fmt.Errorf("migrate: invalid --fold-from: %w", err)
			}
			foldFrom = &t
		}

		result, err := migrate.Migrate(root, cfg, s, foldFrom)
		if err != nil {
			return err
		}

		fmt.Printf("counters: %+v\n", result.Counters)
		if !result.Lint.Passed {
			fmt.Printf("migration left %d lint violation(s):\n", len(result.Lint.Violations))
			for _, v := range result.Lint.Violations {
				fmt.Printf("  %s %s: %s\n", v.DocType, v.EntryID, v.Message)
			}
			return fmt.Errorf("migrate: post-migration lint failed")
		}
		fmt.Println("migration complete, docs are lint-clean")
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFoldFrom, "fold-from", "", "set the fold continuation marker to this date after migrating")
	rootCmd.AddCommand(migrateCmd)
}
