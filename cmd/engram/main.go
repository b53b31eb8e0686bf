// Command engram drives the living-documentation substrate described by
// internal/config, internal/chunk, internal/server and friends: building
// the ingestion queue, cutting chunks for a fold agent, running the
// always-on server, and the one-time v2->v3 doc migrations.
//
// Unlike the teacher's cmd/bd, there is no daemon/RPC split here — every
// subcommand opens its own store handle and operates directly.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var projectRoot string

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "Persistent memory substrate for AI coding agents",
	Long: `engram maintains a set of living documents (concepts, epistemic
state, workflows, timeline) that summarize what a codebase's history has
taught an AI coding agent, and a background server that keeps them fresh
as new commits, docs, issues, and agent sessions accumulate.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&projectRoot, "project-root", ".", "project root directory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolvedProjectRoot returns projectRoot as an absolute path, so every
// subcommand's internal package calls see a stable root regardless of how
// the process was invoked.
func resolvedProjectRoot() (string, error) {
	abs, err := filepath.Abs(projectRoot)
	if err != nil {
		return "", fmt.Errorf("resolve project root: %w", err)
	}
	return abs, nil
}

// engramDir is <project-root>/.engram, the home for all persistent state.
func engramDir(root string) string {
	return filepath.Join(root, ".engram")
}

// newLogger builds a stderr logger shared across subcommands that want
// timestamped progress output without pulling in a full logging library
// for one-shot CLI invocations.
func newLogger() *log.Logger {
	return log.New(os.Stderr, "", log.LstdFlags)
}
