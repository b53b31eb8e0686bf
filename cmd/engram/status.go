package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/server"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show buffer fill, pending items, and recent dispatches",
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
			return fmt.Errorf("status: open store: %w", err)
		}
		defer s.Close()

		repo := vcs.NewGitRepo(root)
		st, err := server.GetStatus(cfg, root, s, repo)
		if err != nil {
			return err
		}

		fmt.Printf("buffer:  %d/%d chars (%.1f%%), %d items pending\n",
			st.Fill.BufferChars, st.Fill.Budget, st.Fill.FillPct*100, st.PendingItems)
		if st.ServerState.LastPollCommit != "" {
			fmt.Printf("last poll commit: %s\n", st.ServerState.LastPollCommit)
		}
		if st.ServerState.L0Stale {
			fmt.Println("L0 briefing: stale")
		}
		if st.HasLastDispatch {
			fmt.Printf("last dispatch: chunk input %s, state %s\n", st.LastDispatch.InputPath, st.LastDispatch.State)
		} else {
			fmt.Println("last dispatch: none")
		}
		if len(st.RecentDispatches) > 0 {
			fmt.Println("recent dispatches:")
			for _, d := range st.RecentDispatches {
				fmt.Printf("  %s  %s  retries=%d\n", d.InputPath, d.State, d.RetryCount)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
