package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/chunk"
	"github.com/rajeshgoli/engram/internal/vcs"
)

var clearActiveChunkCmd = &cobra.Command{
	Use:   "clear-active-chunk",
	Short: "Force-release the active-chunk lock left by a killed next-chunk/fold run",
	Long: `clear-active-chunk removes .engram/active_chunk.yaml and best-effort
cleans up any worktree it recorded. Only use this once you've confirmed no
other engram process is still processing the chunk it names (e.g. a
next-chunk invocation that crashed mid-run) — clearing a lock out from
under a live process reintroduces the race it exists to prevent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		repo := vcs.NewGitRepo(root)
		cleared, err := chunk.ClearActiveChunk(engramDir(root), repo)
		if err != nil {
			return fmt.Errorf("clear-active-chunk: %w", err)
		}
		if !cleared {
			fmt.Println("no active chunk lock held")
			return nil
		}
		_ = os.Remove(filepath.Join(engramDir(root), ".chunk.lock"))
		fmt.Println("active chunk lock cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(clearActiveChunkCmd)
}
