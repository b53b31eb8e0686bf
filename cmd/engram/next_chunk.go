package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/chunk"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

var nextChunkCmd = &cobra.Command{
	Use:   "next-chunk",
	Short: "Cut the next chunk from the queue for the fold agent",
	Long: `next-chunk pops the next batch of queued items (or a drift-triggered
triage batch) into .engram/chunks/chunk_NNN_input.md and a matching
_prompt.txt, recording the chunk in chunks_manifest.yaml. Only one
next-chunk/fold can run at a time per project; a concurrent invocation
fails fast instead of racing on queue.jsonl and the ID counters.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}

		lock, ok, err := chunk.AcquireActiveChunkLock(engramDir(root))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("next-chunk: another chunk operation is already in progress")
		}
		defer lock.Release()

		s, err := store.Open(filepath.Join(engramDir(root), "engram.db"))
		if err != nil {
			return fmt.Errorf("next-chunk: open store: %w", err)
		}
		defer s.Close()

		foldFrom, err := s.GetFoldFrom()
		if err != nil {
			return fmt.Errorf("next-chunk: read fold marker: %w", err)
		}

		repo := vcs.NewGitRepo(root)
		result, err := chunk.NextChunk(cfg, root, repo, s, foldFrom)
		if err != nil {
			return err
		}

		fmt.Printf("chunk %d (%s): %d item(s), %d/%d chars\n",
			result.ChunkID, result.ChunkType, result.ItemsCount, result.ChunkChars, result.Budget)
		fmt.Printf("input:  %s\n", result.InputPath)
		fmt.Printf("prompt: %s\n", result.PromptPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(nextChunkCmd)
}
