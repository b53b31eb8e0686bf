package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/docs"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold .engram/config.yaml and the living documents",
	Long: `init creates .engram/config.yaml (if missing), writes the four living
documents and two graveyard files with their schema banners (if missing),
and writes .engram/.gitignore so local state doesn't get committed.

Safe to run against an already-initialized project: existing files are
left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolvedProjectRoot()
		if err != nil {
			return err
		}
		return runInit(root)
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(root string) error {
	dir := engramDir(root)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		data, err := yaml.Marshal(config.Defaults())
		if err != nil {
			return fmt.Errorf("init: marshal default config: %w", err)
		}
		if err := os.WriteFile(configPath, data, 0644); err != nil {
			return fmt.Errorf("init: write config.yaml: %w", err)
		}
		fmt.Printf("wrote %s\n", configPath)
	} else {
		fmt.Printf("%s already exists, leaving it alone\n", configPath)
	}

	cfg, err := config.Load(root)
	if err != nil {
		cfg = config.Defaults()
	}
	paths := config.ResolveDocPaths(cfg, root)

	living := map[string]string{
		"timeline":  paths.Timeline,
		"concepts":  paths.Concepts,
		"epistemic": paths.Epistemic,
		"workflows": paths.Workflows,
	}
	for docType, path := range living {
		if err := writeIfMissing(path, docs.LivingDocHeaders[docType]); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}

	graveyard := map[string]string{
		"concepts":  paths.ConceptGraveyard,
		"epistemic": paths.EpistemicGraveyard,
	}
	for docType, path := range graveyard {
		if err := writeIfMissing(path, docs.GraveyardHeaders[docType]); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}

	gitignorePath := filepath.Join(dir, ".gitignore")
	if _, err := os.Stat(gitignorePath); os.IsNotExist(err) {
		content := "engram.db\nengram.db-*\nqueue.jsonl\nitem_sizes.json\nchunks/\nchunks_manifest.yaml\nactive_chunk.yaml\n.chunk.lock\nsessions/\n"
		if err := os.WriteFile(gitignorePath, []byte(content), 0644); err != nil {
			return fmt.Errorf("init: write .gitignore: %w", err)
		}
	}

	fmt.Println("engram initialized")
	return nil
}

func writeIfMissing(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)
	return nil
}
