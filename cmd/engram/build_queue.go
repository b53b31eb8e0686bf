package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/queue"
	"github.com/rajeshgoli/engram/internal/vcs"
)

var buildQueueCmd = &cobra.Command{
	Use:   "build-queue",
	Short: "Scan docs, issues, and sessions into .engram/queue.jsonl",
	Long: `build-queue walks the configured doc directories, the local issue
cache, and the session-history adapter, and writes .engram/queue.jsonl and
.engram/item_sizes.json in chronological order. Re-running it replaces the
existing queue from scratch.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}
		repo := vcs.NewGitRepo(root)

		entries, err := queue.BuildQueue(cfg, root, "", repo)
		if err != nil {
			return err
		}
		fmt.Printf("queued %d items\n", len(entries))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(buildQueueCmd)
}
