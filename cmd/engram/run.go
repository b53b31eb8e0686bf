package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rajeshgoli/engram/internal/agent"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/server"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

var runUseAPI bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the always-on server: watch for changes and dispatch fold chunks",
	Long: `run starts the file watcher, git poller, and session poller, and ticks
on the configured poll interval to decide when the accumulated context
buffer warrants dispatching a fold chunk to the agent. Blocks until
interrupted (SIGINT/SIGTERM).`,
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
			return fmt.Errorf("run: open store: %w", err)
		}
		defer s.Close()

		// Rotated so a long-lived server doesn't grow engram.log without bound.
		logWriter := &lumberjack.Logger{
			Filename:   filepath.Join(engramDir(root), "engram.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		defer logWriter.Close()
		logger := log.New(logWriter, "", log.LstdFlags)

		repo := vcs.NewGitRepo(root)

		var inv agent.Invoker
		var briefingInv agent.BriefingInvoker
		if runUseAPI {
			apiInv, err := agent.NewAPIInvoker("", cfg.Model, logger)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			inv = apiInv
			briefingInv = apiInv
		} else {
			inv = &agent.CommandInvoker{AgentCommand: cfg.AgentCommand, Model: cfg.Model, ProjectRoot: root, Logger: logger}
			briefingInv = &agent.CommandBriefingInvoker{ProjectRoot: root, Logger: logger}
		}

		srv := &server.Server{
			Config:      cfg,
			ProjectRoot: root,
			Store:       s,
			Repo:        repo,
			Agent:       inv,
			Briefing:    briefingInv,
			Logger:      logger,
		}

		fmt.Printf("engram server running for %s (log: %s)\n", root, logWriter.Filename)
		return srv.Run(context.Background())
	},
}

func init() {
	runCmd.Flags().BoolVar(&runUseAPI, "api", false, "call the Anthropic API directly instead of shelling out to an agent CLI")
	rootCmd.AddCommand(runCmd)
}
