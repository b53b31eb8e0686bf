package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/lint"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate living documents against the heading grammar and cross-reference invariants",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}

		result, err := lint.LintFromPaths(root, cfg)
		if err != nil {
			return err
		}
		for _, v := range result.Violations {
			fmt.Printf("%s %s: %s\n", v.DocType, v.EntryID, v.Message)
		}
		if !result.Passed {
			fmt.Printf("%d violation(s)\n", len(result.Violations))
			os.Exit(1)
		}
		fmt.Println("lint passed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(lintCmd)
}
