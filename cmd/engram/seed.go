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

var seedFromDate string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Bootstrap the living docs from a snapshot of the current (or a past) repo state",
	Long: `seed dispatches a single agent call with a snapshot of the repo (its
directory tree, doc contents, and cached issues) and asks it to populate the
living documents from scratch. Without --from-date, it seeds from the
repo's current state; with --from-date, it checks out a detached worktree
at the nearest commit on or before that date and seeds from there.`,
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
			return fmt.Errorf("seed: open store: %w", err)
		}
		defer s.Close()

		logger := newLogger()
		repo := vcs.NewGitRepo(root)
		seeder := &bootstrap.Seeder{
			ProjectRoot: root,
			Config:      cfg,
			Store:       s,
			Repo:        repo,
			Agent:       &agent.CommandInvoker{AgentCommand: cfg.AgentCommand, Model: cfg.Model, ProjectRoot: root, Logger: logger},
			Logf:        logger.Printf,
		}

		ctx := context.Background()
		var ok bool
		if seedFromDate != "" {
			fromDate, err := queue.ParseDate(seedFromDate)
			if err != nil {
				return fmt.Errorf("seed: invalid --from-date: %w", err)
			}
			ok, err = seeder.SeedAtDate(ctx, fromDate)
			if err != nil {
				return err
			}
		} else {
			ok, err = seeder.SeedCurrent(ctx)
			if err != nil {
				return err
			}
		}

		if !ok {
			return fmt.Errorf("seed: agent dispatch failed, living docs left untouched")
		}
		fmt.Println("seed complete")
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedFromDate, "from-date", "", "seed from a detached worktree at the nearest commit on or before this date")
	rootCmd.AddCommand(seedCmd)
}
