// Package main is the entry point for araliyad, the Araliya
// supervisor daemon: it wires the bus, identity, memory, LLM, tool
// and agent subsystems together and runs them until a shutdown
// signal arrives.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/araliya/araliya-bot/internal/agents"
	"github.com/araliya/araliya-bot/internal/buildinfo"
	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/config"
	"github.com/araliya/araliya-bot/internal/cron"
	"github.com/araliya/araliya-bot/internal/fetch"
	"github.com/araliya/araliya-bot/internal/identity"
	"github.com/araliya/araliya-bot/internal/llm"
	"github.com/araliya/araliya-bot/internal/llmsvc"
	"github.com/araliya/araliya-bot/internal/memory"
	"github.com/araliya/araliya-bot/internal/memory/stores/kgdocstore"
	"github.com/araliya/araliya-bot/internal/opstate"
	"github.com/araliya/araliya-bot/internal/paths"
	"github.com/araliya/araliya-bot/internal/router"
	"github.com/araliya/araliya-bot/internal/scheduler"
	"github.com/araliya/araliya-bot/internal/search"
	"github.com/araliya/araliya-bot/internal/supervisor"
	"github.com/araliya/araliya-bot/internal/talents"
	"github.com/araliya/araliya-bot/internal/toolexec"
	"github.com/araliya/araliya-bot/internal/tools"
	"github.com/araliya/araliya-bot/internal/usage"
	defaulttalents "github.com/araliya/araliya-bot/talents"

	_ "modernc.org/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to araliyad config file")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath)
			return
		case "init":
			runInit(logger, *configPath)
			return
		case "version":
			fmt.Println(buildinfo.String())
			for k, v := range buildinfo.BuildInfo() {
				fmt.Printf("  %-12s %s\n", k+":", v)
			}
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
	}

	fmt.Println("araliyad - personal assistant supervisor")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve     Start the supervisor (bus, agents, cron)")
	fmt.Println("  init      Seed the talents directory with the shipped defaults")
	fmt.Println("  version   Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// runInit seeds the configured talents directory with the shipped
// default talent files. Safe to re-run: existing files are never
// overwritten.
func runInit(logger *slog.Logger, configPath string) {
	cfg, err := config.LoadBotConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	dir := cfg.TalentsDir
	if dir == "" {
		dir = filepath.Join(cfg.WorkDir, "talents")
	}
	if err := talents.Seed(defaulttalents.FS, dir); err != nil {
		logger.Error("failed to seed talents", "dir", dir, "error", err)
		os.Exit(1)
	}
	fmt.Printf("talents seeded in %s\n", dir)
	if cfg.TalentsDir == "" {
		fmt.Printf("set talents_dir: %s in your config to use them\n", dir)
	}
}

func runServe(logger *slog.Logger, configPath string) {
	logger.Info("starting araliyad", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, err := config.LoadBotConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			logger.Error("invalid log_level in config", "error", err)
			os.Exit(1)
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:       level,
			ReplaceAttr: config.ReplaceLogLevelNames,
		}))
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		logger.Error("failed to create work dir", "path", cfg.WorkDir, "error", err)
		os.Exit(1)
	}

	// Identity: derives bot_id, the bot's own work-dir subtree.
	ident, err := identity.Setup(cfg.WorkDir, cfg.IdentityDir)
	if err != nil {
		logger.Error("identity setup failed", "error", err)
		os.Exit(1)
	}
	logger = logger.With("bot_id", ident.BotID)
	logger.Info("identity loaded", "identity_dir", ident.IdentityDir)

	memoryRoot := filepath.Join(ident.IdentityDir, "memory")
	botSessions, err := memory.NewSystem(filepath.Join(memoryRoot, "sessions"))
	if err != nil {
		logger.Error("memory system init failed", "error", err)
		os.Exit(1)
	}

	rates := memory.ModelRates{
		RateIn:       cfg.ModelRates.InputPerMillion,
		RateOut:      cfg.ModelRates.OutputPerMillion,
		RateCachedIn: cfg.ModelRates.CachedPerMillion,
	}

	llmClient := createLLMClient(cfg, logger)
	rtr := buildRouter(cfg, logger)

	busCore := bus.New(cfg.BusBuffer)
	handle := busCore.Handle()

	sup := supervisor.New(logger, ident.BotID)

	defaultProvider := "ollama"
	for _, m := range cfg.Models.Available {
		if m.Name == cfg.Models.Default && m.Provider != "" {
			defaultProvider = m.Provider
		}
	}

	llmTimeout := time.Duration(cfg.LLMTimeout) * time.Second
	llmSub := llmsvc.New(llmClient, rtr, logger, defaultProvider, cfg.Models.Default, llmTimeout)
	if err := sup.Register(llmSub); err != nil {
		logger.Error("register llm subsystem failed", "error", err)
		os.Exit(1)
	}

	toolRegistry := tools.NewRegistry(buildTaskScheduler(cfg, ident, handle, logger))
	wireSearchAndFetchTools(cfg, toolRegistry)
	wireWorkspaceTools(cfg, toolRegistry)
	wireUsageTools(cfg, toolRegistry, memoryRoot, logger)

	toolSub := toolexec.New(toolRegistry, logger)
	toolSub.SetContentResolver(buildContentResolver(cfg, ident, logger))
	if err := sup.Register(toolSub); err != nil {
		logger.Error("register tools subsystem failed", "error", err)
		os.Exit(1)
	}

	registry := agents.NewRegistry(cfg.DefaultAgent)
	for _, ac := range cfg.Agents {
		a, err := buildAgent(ac, cfg)
		if err != nil {
			logger.Error("agent construction failed", "id", ac.ID, "kind", ac.Kind, "error", err)
			os.Exit(1)
		}
		registry.Register(a, ac.Enabled)
	}
	for channelID, agentID := range cfg.ChannelMap {
		registry.MapChannel(channelID, agentID)
	}

	shared := agents.NewSharedState(handle, botSessions, memoryRoot, rates, cfg.EnabledTools, logger)
	agentsSub := agents.New(registry, shared, logger)
	if err := sup.Register(agentsSub); err != nil {
		logger.Error("register agents subsystem failed", "error", err)
		os.Exit(1)
	}

	cronSvc := cron.New(handle, logger)
	cronSub := cron.NewSubsystem(cronSvc)
	if err := sup.Register(cronSub); err != nil {
		logger.Error("register cron subsystem failed", "error", err)
		os.Exit(1)
	}

	docstoreMgr := memory.NewDocstoreManager(logger, shared.AgentIdentityDirs)

	sup.SetBus(handle)
	sup.SetHealthConfig(supervisor.HealthConfig{
		LLMProvider:       defaultProvider,
		LLMModel:          cfg.Models.Default,
		LLMTimeoutSeconds: int64(cfg.LLMTimeout),
		EnabledTools:      cfg.EnabledTools,
		MaxToolRounds:     cfg.MaxToolRound,
		SessionCount: func() int {
			sessions, err := botSessions.List()
			if err != nil {
				return 0
			}
			return len(sessions)
		},
		QRPngBase64: func() string {
			png, err := ident.QRPNG(256)
			if err != nil {
				return ""
			}
			return base64.StdEncoding.EncodeToString(png)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go busCore.Run(ctx, sup)
	go cronSvc.Run(ctx)
	go docstoreMgr.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("araliyad running", "agents", len(registry.Agents()), "work_dir", cfg.WorkDir)

	<-sigCh
	logger.Info("shutdown signal received")
	cancel()
}

// createLLMClient builds the multi-provider client: Ollama is always
// the fallback provider, Anthropic is layered in when an API key is
// configured, and every configured model is mapped to its provider.
func createLLMClient(cfg *config.BotConfig, logger *slog.Logger) llm.Client {
	ollamaURL := cfg.Models.OllamaURL
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}

	ollamaClient := llm.NewOllamaClient(ollamaURL, logger)
	multi := llm.NewMultiClient(ollamaClient)
	multi.AddProvider("ollama", ollamaClient)

	if cfg.Anthropic.APIKey != "" {
		anthropicClient := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
		multi.AddProvider("anthropic", anthropicClient)
		logger.Info("anthropic provider configured")
	}

	for _, m := range cfg.Models.Available {
		provider := m.Provider
		if provider == "" {
			provider = "ollama"
		}
		multi.AddModel(m.Name, provider)
	}

	return multi
}

func buildRouter(cfg *config.BotConfig, logger *slog.Logger) *router.Router {
	routerCfg := router.Config{
		DefaultModel: cfg.Models.Default,
		LocalFirst:   cfg.Models.LocalFirst,
		MaxAuditLog:  1000,
	}
	for _, m := range cfg.Models.Available {
		minComp := router.ComplexitySimple
		switch m.MinComplexity {
		case "moderate":
			minComp = router.ComplexityModerate
		case "complex":
			minComp = router.ComplexityComplex
		}
		routerCfg.Models = append(routerCfg.Models, router.Model{
			Name:          m.Name,
			Provider:      m.Provider,
			SupportsTools: m.SupportsTools,
			ContextWindow: m.ContextWindow,
			Speed:         m.Speed,
			Quality:       m.Quality,
			CostTier:      m.CostTier,
			MinComplexity: minComp,
		})
	}
	rtr := router.NewRouter(logger, routerCfg)
	logger.Info("model router initialized", "models", len(routerCfg.Models), "default", routerCfg.DefaultModel)
	return rtr
}

// buildAgent constructs one configured agent by kind. The kind set
// is closed; an unknown kind is a startup-time wiring error.
func buildAgent(ac config.BotAgentConfig, cfg *config.BotConfig) (agents.Agent, error) {
	switch ac.Kind {
	case "echo":
		return &agents.EchoAgent{}, nil
	case "chat":
		chatAgent := agents.NewChatAgent(ac.ID, ac.RoleLayer)
		if cfg.TalentsDir != "" {
			chatAgent.SetTalentsDir(cfg.TalentsDir)
		}
		return chatAgent, nil
	case "docs":
		docsAgent := agents.NewDocsAgent(ac.ID, ac.RoleLayer, ac.UseKG)
		if kgCfg, ok := kgConfigFromYAML(cfg.KGDocstore); ok {
			docsAgent.SetKGConfig(kgCfg)
		}
		if cfg.TalentsDir != "" {
			docsAgent.SetTalentsDir(cfg.TalentsDir)
		}
		indexPath := cfg.DocsAgent.IndexDocument
		if indexPath == "" {
			indexPath = "index.md"
		}
		docsAgent.SetIndexDocument(func() (string, error) {
			data, err := os.ReadFile(indexPath)
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
		return docsAgent, nil
	default:
		return nil, fmt.Errorf("unknown agent kind %q", ac.Kind)
	}
}

// kgConfigFromYAML converts the YAML tuning knobs to kgdocstore.Config,
// reporting false when the section was left at its zero value so
// callers fall back to kgdocstore.DefaultConfig instead of zeroing
// every tunable out.
func kgConfigFromYAML(y config.KGDocstoreConfig) (kgdocstore.Config, bool) {
	if y == (config.KGDocstoreConfig{}) {
		return kgdocstore.Config{}, false
	}
	cfg := kgdocstore.DefaultConfig()
	if y.MinEntityMentions != 0 {
		cfg.MinEntityMentions = y.MinEntityMentions
	}
	if y.MaxSeeds != 0 {
		cfg.MaxSeeds = y.MaxSeeds
	}
	if y.MaxChunks != 0 {
		cfg.MaxChunks = y.MaxChunks
	}
	if y.BFSMaxDepth != 0 {
		cfg.BFSMaxDepth = y.BFSMaxDepth
	}
	if y.EdgeWeightThresh != 0 {
		cfg.EdgeWeightThreshold = y.EdgeWeightThresh
	}
	if y.FTSShare != 0 {
		cfg.FTSShare = y.FTSShare
	}
	return cfg, true
}

// buildContentResolver wires the generic temp:LABEL content resolver the
// toolexec subsystem expands bare tool-argument references through
// before dispatch.
// Tempfiles are tracked via a dedicated opstate store under the
// identity dir. Returns nil (a no-op resolver) on setup failure.
func buildContentResolver(cfg *config.BotConfig, ident *identity.Identity, logger *slog.Logger) *tools.ContentResolver {
	stateDir := filepath.Join(ident.IdentityDir, "opstate")
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		logger.Error("opstate dir creation failed, content resolution disabled", "error", err)
		return nil
	}
	opstateStore, err := opstate.NewStore(filepath.Join(stateDir, "tempfiles.db"))
	if err != nil {
		logger.Error("opstate store init failed, content resolution disabled", "error", err)
		return nil
	}
	tempFiles := tools.NewTempFileStore(filepath.Join(ident.IdentityDir, "tempfiles"), opstateStore, logger)

	var pathResolver *paths.Resolver
	if cfg.WorkDir != "" {
		pathResolver = paths.New(map[string]string{"workspace": cfg.WorkDir})
	}

	return tools.NewContentResolver(pathResolver, tempFiles, logger)
}

// buildTaskScheduler constructs the schedule_task/list_tasks/cancel_task
// builtin tools' backing store. A fired wake task re-enters the agent
// pipeline as an "agents" notification; this scheduler answers the
// agent-facing natural-language "in 30 minutes" convenience tools
// against its own store, while cron/schedule (see internal/cron)
// remains the bus-level timer surface. Returns nil on any setup
// failure, logged and non-fatal like the other optional tool wiring.
func buildTaskScheduler(cfg *config.BotConfig, ident *identity.Identity, handle bus.Handle, logger *slog.Logger) *scheduler.Scheduler {
	dbPath := filepath.Join(ident.IdentityDir, "scheduler.db")
	store, err := scheduler.NewStore(dbPath)
	if err != nil {
		logger.Error("task scheduler store init failed, schedule_task tool disabled", "error", err)
		return nil
	}
	sched := scheduler.New(logger, store, func(ctx context.Context, task *scheduler.Task, execution *scheduler.Execution) error {
		logger.Info("scheduled task fired", "task_id", task.ID, "name", task.Name)
		if task.Payload.Kind != scheduler.PayloadWake {
			return nil
		}
		message, _ := task.Payload.Data["message"].(string)
		if message == "" {
			return nil
		}
		// Re-enter the agent pipeline as a notification; a full bus
		// drops it (logged) rather than blocking the timer goroutine.
		if err := handle.Notify("agents", bus.CommsMessage{
			ChannelID: "scheduler:" + task.ID,
			Content:   message,
		}); err != nil {
			logger.Warn("scheduled wake dropped", "task_id", task.ID, "error", err)
		}
		return nil
	})
	if err := sched.Start(context.Background()); err != nil {
		logger.Error("task scheduler start failed, schedule_task tool disabled", "error", err)
		return nil
	}
	return sched
}

// wireSearchAndFetchTools registers web_search and web_fetch. web_fetch
// needs no configuration; web_search's provider fails closed at call
// time when cfg.Search names no configured backend.
func wireSearchAndFetchTools(cfg *config.BotConfig, registry *tools.Registry) {
	registry.SetFetcher(fetch.New())

	mgr := search.NewManager(cfg.Search.Primary)
	if cfg.Search.BraveKey != "" {
		mgr.Register(search.NewBrave(cfg.Search.BraveKey))
	}
	if cfg.Search.SearXNGURL != "" {
		mgr.Register(search.NewSearXNG(cfg.Search.SearXNGURL))
	}
	registry.SetSearchManager(mgr)
}

// wireWorkspaceTools registers the file read/write/list tools and the
// shell_exec tool, scoped to the configured work directory. Shell
// execution stays disabled unless explicitly turned on in config,
// matching tools.DefaultShellExecConfig's safety-first default.
func wireWorkspaceTools(cfg *config.BotConfig, registry *tools.Registry) {
	registry.SetFileTools(tools.NewFileTools(cfg.WorkDir, nil))

	shellCfg := tools.DefaultShellExecConfig()
	shellCfg.Enabled = cfg.ShellExec.Enabled
	shellCfg.WorkingDir = cfg.WorkDir
	if len(cfg.ShellExec.AllowedCmds) > 0 {
		shellCfg.AllowedCmds = cfg.ShellExec.AllowedCmds
	}
	if len(cfg.ShellExec.DeniedCmds) > 0 {
		shellCfg.DeniedCmds = cfg.ShellExec.DeniedCmds
	}
	registry.SetShellExec(tools.NewShellExec(shellCfg))
}

// wireUsageTools registers the cost_summary tool backed by the
// mattn/go-sqlite3 usage ledger under memoryRoot. A store-open failure
// is logged and the tool is left unregistered rather than aborting
// startup.
func wireUsageTools(cfg *config.BotConfig, registry *tools.Registry, memoryRoot string, logger *slog.Logger) {
	usageStore, err := usage.NewStore(filepath.Join(memoryRoot, "usage.db"))
	if err != nil {
		logger.Error("usage store init failed, cost_summary tool disabled", "error", err)
		return
	}
	registry.SetUsageStore(usageStore)
}
