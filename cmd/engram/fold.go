package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/agent"
	"github.com/rajeshgoli/engram/internal/bootstrap"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/queue"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

var foldFromDate string

var foldCmd = &cobra.Command{
	Use:   "fold",
	Short: "Forward-fold: catch the living docs up from --from to the repo's current state",
	Long: `fold builds the queue for the range starting at --from, drives it
through next-chunk/dispatch/lint-correct cycles until the queue is
exhausted, and validates the result. Use this to backfill a project's
history in one pass instead of waiting for the server to dispatch chunks
incrementally.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if foldFromDate == "" {
			return fmt.Errorf("fold: --from is required")
		}
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}
		fromDate, err := queue.ParseDate(foldFromDate)
		if err != nil {
			return fmt.Errorf("fold: invalid --from: %w", err)
		}

		s, err := store.Open(filepath.Join(engramDir(root), "engram.db"))
		if err != nil {
			return fmt.Errorf("fold: open store: %w", err)
		}
		defer s.Close()

		logger := newLogger()
		repo := vcs.NewGitRepo(root)
		folder := &bootstrap.Folder{
			ProjectRoot: root,
			Config:      cfg,
			Store:       s,
			Repo:        repo,
			Agent:       &agent.CommandInvoker{AgentCommand: cfg.AgentCommand, Model: cfg.Model, ProjectRoot: root, Logger: logger},
			Briefing:    &agent.CommandBriefingInvoker{ProjectRoot: root, Logger: logger},
			Logf:        logger.Printf,
		}

		ok, err := folder.ForwardFold(context.Background(), fromDate)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("fold: did not complete cleanly, see log above")
		}
		fmt.Println("fold complete")
		return nil
	},
}

func init() {
	foldCmd.Flags().StringVar(&foldFromDate, "from", "", "fold forward starting from this date (required)")
	rootCmd.AddCommand(foldCmd)
}
