package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// BotConfig is cmd/araliyad's own configuration shape: a thin
// yaml.v3 loader for the static wiring the bus/agent/memory/cron
// core depends on (work dir, identity, model, enabled agents/tools),
// not a general settings system.
type BotConfig struct {
	WorkDir      string            `yaml:"work_dir"`
	IdentityDir  string            `yaml:"identity_dir"`
	TalentsDir   string            `yaml:"talents_dir"`
	LogLevel     string            `yaml:"log_level"`
	BusBuffer    int               `yaml:"bus_buffer"`
	Anthropic    AnthropicConfig   `yaml:"anthropic"`
	Models       ModelsConfig      `yaml:"models"`
	LLMTimeout   int               `yaml:"llm_timeout_seconds"`
	EnabledTools []string          `yaml:"enabled_tools"`
	MaxToolRound int               `yaml:"max_tool_rounds"`
	Agents       []BotAgentConfig  `yaml:"agents"`
	DefaultAgent string            `yaml:"default_agent"`
	ChannelMap   map[string]string `yaml:"channel_map"`
	ModelRates   ModelRatesConfig  `yaml:"model_rates"`
	DocsAgent    DocsAgentConfig   `yaml:"docs_agent"`
	KGDocstore   KGDocstoreConfig  `yaml:"kg_docstore"`
	Search       SearchConfig      `yaml:"search"`
	ShellExec    ShellExecConfig   `yaml:"shell_exec"`
}

// SearchConfig selects and configures the web-search tool backends.
// Primary names which registered provider answers plain "search"
// calls; a provider with an empty key/URL is left unregistered.
type SearchConfig struct {
	Primary    string `yaml:"primary"` // "brave" or "searxng"
	BraveKey   string `yaml:"brave_api_key"`
	SearXNGURL string `yaml:"searxng_url"`
}

// ShellExecConfig mirrors tools.ShellExecConfig's tunables for YAML
// override; Enabled defaults to false, matching
// tools.DefaultShellExecConfig's safety-first default.
type ShellExecConfig struct {
	Enabled     bool     `yaml:"enabled"`
	AllowedCmds []string `yaml:"allowed_cmds"`
	DeniedCmds  []string `yaml:"denied_cmds"`
}

// BotAgentConfig declares one registered agent instance: its id, the
// pluggable kind backing it, whether it starts enabled, and (for chat
// agents) the role-layer text layered into its prompt.
type BotAgentConfig struct {
	ID        string `yaml:"id"`
	Kind      string `yaml:"kind"` // "echo", "chat", "docs"
	Enabled   bool   `yaml:"enabled"`
	RoleLayer string `yaml:"role_layer"`
	UseKG     bool   `yaml:"use_kg"`
}

// ModelRatesConfig is the YAML shape for memory.ModelRates, priced
// per million tokens.
type ModelRatesConfig struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
	CachedPerMillion float64 `yaml:"cached_per_million"`
}

// PricingEntry prices one model per million tokens, used by
// internal/usage's ComputeCost tool helper — a general per-model rate
// table distinct from the chat/docs agents' single-rate
// ModelRatesConfig, since the usage tool reports spend across every
// model a session may have touched, not just the configured default.
type PricingEntry struct {
	InputPerMillion  float64 `yaml:"input_per_million"`
	OutputPerMillion float64 `yaml:"output_per_million"`
}

// AnthropicConfig carries the Anthropic API credential.
// createLLMClient only needs to know whether to layer an Anthropic
// provider onto the multi-provider llm.Client.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// ModelsConfig is the YAML shape feeding both createLLMClient (which
// provider backs each named model) and internal/router's scoring
// config (model selection by complexity/cost/quality).
type ModelsConfig struct {
	Default    string         `yaml:"default"`
	OllamaURL  string         `yaml:"ollama_url"`
	LocalFirst bool           `yaml:"local_first"`
	Available  []ModelEntry   `yaml:"available"`
}

// ModelEntry describes one selectable model, mirroring
// internal/router.Model's fields in their YAML-friendly form.
type ModelEntry struct {
	Name          string `yaml:"name"`
	Provider      string `yaml:"provider"`
	SupportsTools bool   `yaml:"supports_tools"`
	ContextWindow int    `yaml:"context_window"`
	Speed         int    `yaml:"speed"`
	Quality       int    `yaml:"quality"`
	CostTier      int    `yaml:"cost_tier"`
	MinComplexity string `yaml:"min_complexity"` // "simple", "moderate", "complex"
}

// DocsAgentConfig carries tuning knobs not covered by BotAgentConfig.
type DocsAgentConfig struct {
	IndexDocument string `yaml:"index_document"`
}

// KGDocstoreConfig mirrors kgdocstore.Config's tunables for YAML
// override; zero values fall back to kgdocstore.DefaultConfig.
type KGDocstoreConfig struct {
	MinEntityMentions int     `yaml:"min_entity_mentions"`
	MaxSeeds          int     `yaml:"max_seeds"`
	MaxChunks         int     `yaml:"max_chunks"`
	BFSMaxDepth       int     `yaml:"bfs_max_depth"`
	EdgeWeightThresh  float64 `yaml:"edge_weight_threshold"`
	FTSShare          float64 `yaml:"fts_share"`
}

// DefaultBotConfig returns the zero-config defaults cmd/araliyad runs
// with when no config path is given — an echo agent only, no LLM
// provider, no tools — so the supervisor still boots end to end.
func DefaultBotConfig() *BotConfig {
	return &BotConfig{
		WorkDir:      defaultWorkDir(),
		BusBuffer:    64,
		LLMTimeout:   60,
		MaxToolRound: 8,
		DefaultAgent: "echo",
		Agents: []BotAgentConfig{
			{ID: "echo", Kind: "echo", Enabled: true},
		},
		ModelRates: ModelRatesConfig{},
	}
}

func defaultWorkDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".araliya")
	}
	return ".araliya"
}

// LoadBotConfig reads and parses a BotConfig from path, filling
// unset fields from DefaultBotConfig. An empty path returns the
// defaults unchanged.
func LoadBotConfig(path string) (*BotConfig, error) {
	cfg := DefaultBotConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bot config %s: %w", path, err)
	}
	loaded := &BotConfig{}
	if err := yaml.Unmarshal(data, loaded); err != nil {
		return nil, fmt.Errorf("parse bot config %s: %w", path, err)
	}
	applyBotDefaults(loaded)
	return loaded, nil
}

// applyBotDefaults fills zero-value fields of loaded from
// DefaultBotConfig.
func applyBotDefaults(loaded *BotConfig) {
	defaults := DefaultBotConfig()
	if loaded.WorkDir == "" {
		loaded.WorkDir = defaults.WorkDir
	}
	if loaded.BusBuffer == 0 {
		loaded.BusBuffer = defaults.BusBuffer
	}
	if loaded.LLMTimeout == 0 {
		loaded.LLMTimeout = defaults.LLMTimeout
	}
	if loaded.MaxToolRound == 0 {
		loaded.MaxToolRound = defaults.MaxToolRound
	}
	if loaded.DefaultAgent == "" {
		loaded.DefaultAgent = defaults.DefaultAgent
	}
	if len(loaded.Agents) == 0 {
		loaded.Agents = defaults.Agents
	}
}
