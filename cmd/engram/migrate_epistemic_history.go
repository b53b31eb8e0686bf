package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/migrate"
)

var migrateEpistemicHistoryCmd = &cobra.Command{
	Use:   "migrate-epistemic-history",
	Short: "Move inline History fields out of the epistemic doc into per-entry files",
	Long: `migrate-epistemic-history externalizes each epistemic entry's inline
History field into docs/.../epistemic_state/history/<ID>.md, leaving the living
document's own History field removed. Stub and refuted entries are left
alone. Safe to run more than once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}
		paths := config.ResolveDocPaths(cfg, root)

		result, err := migrate.ExternalizeEpistemicHistory(paths.Epistemic)
		if err != nil {
			return err
		}
		fmt.Printf("migrated %d entries, created %d history files, appended %d blocks\n",
			result.MigratedEntries, result.CreatedFiles, result.AppendedBlocks)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateEpistemicHistoryCmd)
}
