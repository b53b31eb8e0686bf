// Package config loads and validates .engram/config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// SessionConfig describes the session-history source.
type SessionConfig struct {
	Format       string   `yaml:"format" mapstructure:"format"`
	Path         string   `yaml:"path" mapstructure:"path"`
	ProjectMatch []string `yaml:"project_match" mapstructure:"project_match"`
}

// SourcesConfig describes ingestible artifact roots for the queue builder.
type SourcesConfig struct {
	Issues   string        `yaml:"issues" mapstructure:"issues"`
	Docs     []string      `yaml:"docs" mapstructure:"docs"`
	Sessions SessionConfig `yaml:"sessions" mapstructure:"sessions"`
}

// ThresholdsConfig configures drift triggers and cooldowns (§4.6.3-4.6.4).
type ThresholdsConfig struct {
	OrphanTriage                    int `yaml:"orphan_triage" mapstructure:"orphan_triage"`
	ContestedReviewDays             int `yaml:"contested_review_days" mapstructure:"contested_review_days"`
	ContestedReviewCount            int `yaml:"contested_review" mapstructure:"contested_review"`
	StaleUnverifiedDays             int `yaml:"stale_unverified_days" mapstructure:"stale_unverified_days"`
	StaleUnverifiedCount            int `yaml:"stale_unverified" mapstructure:"stale_unverified"`
	StaleEpistemicDays              int `yaml:"stale_epistemic_days" mapstructure:"stale_epistemic_days"`
	WorkflowRepetition              int `yaml:"workflow_repetition" mapstructure:"workflow_repetition"`
	WorkflowSynthesisCooldownChunks int `yaml:"workflow_synthesis_cooldown_chunks" mapstructure:"workflow_synthesis_cooldown_chunks"`
	WorkflowNewIDSynthesisCooldown  int `yaml:"workflow_new_id_synthesis_cooldown_chunks" mapstructure:"workflow_new_id_synthesis_cooldown_chunks"`
	MinPreassignConcepts            int `yaml:"min_preassign_concepts" mapstructure:"min_preassign_concepts"`
	MinPreassignEpistemic           int `yaml:"min_preassign_epistemic" mapstructure:"min_preassign_epistemic"`
	MinPreassignWorkflows           int `yaml:"min_preassign_workflows" mapstructure:"min_preassign_workflows"`
}

// BudgetConfig controls chunk sizing (§4.6.1).
type BudgetConfig struct {
	ContextLimitChars     int    `yaml:"context_limit_chars" mapstructure:"context_limit_chars"`
	InstructionsOverhead  int    `yaml:"instructions_overhead" mapstructure:"instructions_overhead"`
	MaxChunkChars         int    `yaml:"max_chunk_chars" mapstructure:"max_chunk_chars"`
	LivingDocsBudgetMode  string `yaml:"living_docs_budget_mode" mapstructure:"living_docs_budget_mode"` // "index" | "index_headings" (headings-only basis); anything else counts docs in full
	AdaptiveContextPack   bool   `yaml:"adaptive_context_budgeting" mapstructure:"adaptive_context_budgeting"`
	PlanningPreviewItems  int    `yaml:"planning_preview_items" mapstructure:"planning_preview_items"`
}

// BriefingConfig locates the L0 briefing section (§4.8).
type BriefingConfig struct {
	File    string `yaml:"file" mapstructure:"file"`
	Section string `yaml:"section" mapstructure:"section"`
}

// LivingDocsConfig locates the four living documents, relative to the project root.
type LivingDocsConfig struct {
	Timeline  string `yaml:"timeline" mapstructure:"timeline"`
	Concepts  string `yaml:"concepts" mapstructure:"concepts"`
	Epistemic string `yaml:"epistemic" mapstructure:"epistemic"`
	Workflows string `yaml:"workflows" mapstructure:"workflows"`
}

// GraveyardConfig locates the two graveyard files.
type GraveyardConfig struct {
	Concepts  string `yaml:"concepts" mapstructure:"concepts"`
	Epistemic string `yaml:"epistemic" mapstructure:"epistemic"`
}

// Config is the full, defaults-merged Engram configuration.
type Config struct {
	LivingDocs    LivingDocsConfig `yaml:"living_docs" mapstructure:"living_docs"`
	Graveyard     GraveyardConfig  `yaml:"graveyard" mapstructure:"graveyard"`
	Briefing      BriefingConfig   `yaml:"briefing" mapstructure:"briefing"`
	Sources       SourcesConfig    `yaml:"sources" mapstructure:"sources"`
	Thresholds    ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Budget        BudgetConfig     `yaml:"budget" mapstructure:"budget"`
	Model         string           `yaml:"model" mapstructure:"model"`
	AgentCommand  string           `yaml:"agent_command" mapstructure:"agent_command"`
	ProjectStart  string           `yaml:"project_start" mapstructure:"project_start"`
	PollInterval  int              `yaml:"poll_interval" mapstructure:"poll_interval"`
}

// supportedSessionFormats lists the session adapters the registry actually
// implements. config validation is intentionally stricter than the adapter
// registry (which also carries a "codex" stub returning no entries) — this
// mirrors the original source's own discrepancy rather than papering over it.
var supportedSessionFormats = map[string]bool{
	"claude-code": true,
}

const DefaultPollInterval = 60 // seconds, matches DEFAULT_POLL_INTERVAL

// ErrConfig is returned for invalid or missing configuration.
type ErrConfig struct{ msg string }

func (e *ErrConfig) Error() string { return e.msg }

func configError(format string, args ...any) error {
	return &ErrConfig{msg: fmt.Sprintf(format, args...)}
}

// Defaults returns the built-in default configuration, equivalent to
// original_source/engram/config.py's DEFAULTS mapping.
func Defaults() Config {
	return Config{
		LivingDocs: LivingDocsConfig{
			Timeline:  "docs/decisions/timeline.md",
			Concepts:  "docs/decisions/concept_registry.md",
			Epistemic: "docs/decisions/epistemic_state.md",
			Workflows: "docs/decisions/workflow_registry.md",
		},
		Graveyard: GraveyardConfig{
			Concepts:  "docs/decisions/concept_graveyard.md",
			Epistemic: "docs/decisions/epistemic_graveyard.md",
		},
		Briefing: BriefingConfig{
			File:    "CLAUDE.md",
			Section: "## Project Knowledge Briefing",
		},
		Sources: SourcesConfig{
			Issues: "local_data/issues/",
			Docs:   []string{"docs/working/", "docs/archive/", "docs/specs/"},
			Sessions: SessionConfig{
				Format:       "claude-code",
				Path:         "~/.claude/history.jsonl",
				ProjectMatch: nil,
			},
		},
		Thresholds: ThresholdsConfig{
			OrphanTriage:                     50,
			ContestedReviewDays:              14,
			ContestedReviewCount:             5,
			StaleUnverifiedDays:              30,
			StaleUnverifiedCount:             10,
			StaleEpistemicDays:               30,
			WorkflowRepetition:               3,
			WorkflowSynthesisCooldownChunks:  5,
			WorkflowNewIDSynthesisCooldown:   3,
		},
		Budget: BudgetConfig{
			ContextLimitChars:    600_000,
			InstructionsOverhead: 10_000,
			MaxChunkChars:        200_000,
			LivingDocsBudgetMode: "full",
			PlanningPreviewItems: 5,
		},
		Model:        "sonnet",
		PollInterval: DefaultPollInterval,
	}
}

// Load reads .engram/config.yaml under projectRoot via Viper, merges it over
// Defaults(), and validates required sections. This is the only place
// Viper is used; cmd/engram calls Load, and every other package under
// internal/ takes an already-resolved Config.
func Load(projectRoot string) (Config, error) {
	cfg := Defaults()
	configPath := filepath.Join(projectRoot, ".engram", "config.yaml")

	if _, err := os.Stat(configPath); err != nil {
		return Config{}, configError("config not found: %s", configPath)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}

	raw, err := os.ReadFile(configPath) // #nosec G304 - path built from trusted project root
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}
	var overlay Config
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return Config{}, configError("config must be a YAML mapping: %v", err)
	}

	cfg = mergeConfig(cfg, overlay, raw)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// mergeConfig overlays non-zero fields of overlay onto base. YAML unmarshal
// already leaves unset fields at their zero value, so a present-but-empty
// overlay field is indistinguishable from absent; this mirrors the
// original's dict-level deep merge closely enough for the option set in
// SPEC_FULL.md (no config key legitimately needs an explicit empty string
// override of a non-empty default).
func mergeConfig(base, overlay Config, raw []byte) Config {
	var rawMap map[string]any
	_ = yaml.Unmarshal(raw, &rawMap)

	if _, ok := rawMap["living_docs"]; ok {
		if overlay.LivingDocs.Timeline != "" {
			base.LivingDocs.Timeline = overlay.LivingDocs.Timeline
		}
		if overlay.LivingDocs.Concepts != "" {
			base.LivingDocs.Concepts = overlay.LivingDocs.Concepts
		}
		if overlay.LivingDocs.Epistemic != "" {
			base.LivingDocs.Epistemic = overlay.LivingDocs.Epistemic
		}
		if overlay.LivingDocs.Workflows != "" {
			base.LivingDocs.Workflows = overlay.LivingDocs.Workflows
		}
	}
	if _, ok := rawMap["graveyard"]; ok {
		if overlay.Graveyard.Concepts != "" {
			base.Graveyard.Concepts = overlay.Graveyard.Concepts
		}
		if overlay.Graveyard.Epistemic != "" {
			base.Graveyard.Epistemic = overlay.Graveyard.Epistemic
		}
	}
	if _, ok := rawMap["briefing"]; ok {
		if overlay.Briefing.File != "" {
			base.Briefing.File = overlay.Briefing.File
		}
		if overlay.Briefing.Section != "" {
			base.Briefing.Section = overlay.Briefing.Section
		}
	}
	if _, ok := rawMap["sources"]; ok {
		if overlay.Sources.Issues != "" {
			base.Sources.Issues = overlay.Sources.Issues
		}
		if len(overlay.Sources.Docs) > 0 {
			base.Sources.Docs = overlay.Sources.Docs
		}
		if overlay.Sources.Sessions.Format != "" {
			base.Sources.Sessions.Format = overlay.Sources.Sessions.Format
		}
		if overlay.Sources.Sessions.Path != "" {
			base.Sources.Sessions.Path = overlay.Sources.Sessions.Path
		}
		if len(overlay.Sources.Sessions.ProjectMatch) > 0 {
			base.Sources.Sessions.ProjectMatch = overlay.Sources.Sessions.ProjectMatch
		}
	}
	if _, ok := rawMap["thresholds"]; ok {
		t, o := &base.Thresholds, overlay.Thresholds
		if o.OrphanTriage != 0 {
			t.OrphanTriage = o.OrphanTriage
		}
		if o.ContestedReviewDays != 0 {
			t.ContestedReviewDays = o.ContestedReviewDays
		}
		if o.ContestedReviewCount != 0 {
			t.ContestedReviewCount = o.ContestedReviewCount
		}
		if o.StaleUnverifiedDays != 0 {
			t.StaleUnverifiedDays = o.StaleUnverifiedDays
		}
		if o.StaleUnverifiedCount != 0 {
			t.StaleUnverifiedCount = o.StaleUnverifiedCount
		}
		if o.StaleEpistemicDays != 0 {
			t.StaleEpistemicDays = o.StaleEpistemicDays
		}
		if o.WorkflowRepetition != 0 {
			t.WorkflowRepetition = o.WorkflowRepetition
		}
		if o.WorkflowSynthesisCooldownChunks != 0 {
			t.WorkflowSynthesisCooldownChunks = o.WorkflowSynthesisCooldownChunks
		}
		if o.WorkflowNewIDSynthesisCooldown != 0 {
			t.WorkflowNewIDSynthesisCooldown = o.WorkflowNewIDSynthesisCooldown
		}
		if o.MinPreassignConcepts != 0 {
			t.MinPreassignConcepts = o.MinPreassignConcepts
		}
		if o.MinPreassignEpistemic != 0 {
			t.MinPreassignEpistemic = o.MinPreassignEpistemic
		}
		if o.MinPreassignWorkflows != 0 {
			t.MinPreassignWorkflows = o.MinPreassignWorkflows
		}
	}
	if _, ok := rawMap["budget"]; ok {
		b, o := &base.Budget, overlay.Budget
		if o.ContextLimitChars != 0 {
			b.ContextLimitChars = o.ContextLimitChars
		}
		if o.InstructionsOverhead != 0 {
			b.InstructionsOverhead = o.InstructionsOverhead
		}
		if o.MaxChunkChars != 0 {
			b.MaxChunkChars = o.MaxChunkChars
		}
		if o.LivingDocsBudgetMode != "" {
			b.LivingDocsBudgetMode = o.LivingDocsBudgetMode
		}
		if o.PlanningPreviewItems != 0 {
			b.PlanningPreviewItems = o.PlanningPreviewItems
		}
		b.AdaptiveContextPack = o.AdaptiveContextPack
	}
	if overlay.Model != "" {
		base.Model = overlay.Model
	}
	if overlay.AgentCommand != "" {
		base.AgentCommand = overlay.AgentCommand
	}
	if overlay.ProjectStart != "" {
		base.ProjectStart = overlay.ProjectStart
	}
	if overlay.PollInterval != 0 {
		base.PollInterval = overlay.PollInterval
	}
	return base
}

func validate(cfg Config) error {
	if cfg.LivingDocs.Timeline == "" || cfg.LivingDocs.Concepts == "" ||
		cfg.LivingDocs.Epistemic == "" || cfg.LivingDocs.Workflows == "" {
		return configError("'living_docs' missing required keys")
	}
	if cfg.Graveyard.Concepts == "" || cfg.Graveyard.Epistemic == "" {
		return configError("'graveyard' missing required keys")
	}
	format := cfg.Sources.Sessions.Format
	if format == "" {
		format = "claude-code"
	}
	if !supportedSessionFormats[format] {
		return configError("unsupported session format %q; built-in: claude-code", format)
	}
	return nil
}

// DocPaths is the flat path map every in-scope component consumes.
type DocPaths struct {
	Timeline          string
	Concepts          string
	Epistemic         string
	Workflows         string
	ConceptGraveyard  string
	EpistemicGraveyard string
}

// ResolveDocPaths resolves all living-doc and graveyard paths relative to
// projectRoot, equivalent to original_source/engram/config.py's
// resolve_doc_paths.
func ResolveDocPaths(cfg Config, projectRoot string) DocPaths {
	return DocPaths{
		Timeline:           filepath.Join(projectRoot, cfg.LivingDocs.Timeline),
		Concepts:           filepath.Join(projectRoot, cfg.LivingDocs.Concepts),
		Epistemic:          filepath.Join(projectRoot, cfg.LivingDocs.Epistemic),
		Workflows:          filepath.Join(projectRoot, cfg.LivingDocs.Workflows),
		ConceptGraveyard:   filepath.Join(projectRoot, cfg.Graveyard.Concepts),
		EpistemicGraveyard: filepath.Join(projectRoot, cfg.Graveyard.Epistemic),
	}
}
