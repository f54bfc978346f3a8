package agents

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/identity"
	"github.com/araliya/araliya-bot/internal/memory"
	"github.com/araliya/araliya-bot/internal/memory/stores/basicsession"
	"github.com/araliya/araliya-bot/internal/memory/stores/docstore"
	"github.com/araliya/araliya-bot/internal/memory/stores/kgdocstore"
)

// SharedState is the only thing agents hold besides their own
// configuration. It is read-only after
// initialization except for startup-time rate injection; agents never
// reach past it to the raw bus, memory root, or tool registry.
type SharedState struct {
	busHandle    bus.Handle
	botSessions  *memory.System
	rates        memory.ModelRates
	enabledTools []string
	logger       *slog.Logger

	// memoryRoot is the bot's own memory root, {identity_dir}/memory.
	// Agent-scoped state lives under memoryRoot/agents/{agent_id}/.
	memoryRoot string

	mu            sync.Mutex
	agentDirs     map[string]string
	agentIdentity map[string]*identity.Identity
	agentMemory   map[string]*memory.System
}

// NewSharedState creates the shared state every agent receives.
// botSessions is the bot-global session system (for session-aware
// chat agents that don't need their own scoped store); memoryRoot is
// the directory agent-scoped state is created under.
func NewSharedState(h bus.Handle, botSessions *memory.System, memoryRoot string, rates memory.ModelRates, enabledTools []string, logger *slog.Logger) *SharedState {
	return &SharedState{
		busHandle:     h,
		botSessions:   botSessions,
		memoryRoot:    memoryRoot,
		rates:         rates,
		enabledTools:  enabledTools,
		logger:        logger,
		agentDirs:     make(map[string]string),
		agentIdentity: make(map[string]*identity.Identity),
		agentMemory:   make(map[string]*memory.System),
	}
}

// Rates returns the LLM pricing used for spend accounting.
func (s *SharedState) Rates() memory.ModelRates { return s.rates }

// EnabledTools returns the tool names available to prompt assembly
// and to ExecuteTool's allow-list check.
func (s *SharedState) EnabledTools() []string { return append([]string(nil), s.enabledTools...) }

func (s *SharedState) toolEnabled(name string) bool {
	for _, t := range s.enabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// BotSessions returns the bot-wide session system.
func (s *SharedState) BotSessions() *memory.System { return s.botSessions }

// Logger returns the shared logger agents should use for non-fatal,
// log-and-continue failures (e.g. a spend ledger write that failed).
func (s *SharedState) Logger() *slog.Logger { return s.logger }

// CompleteViaLLM routes a completion request through the llm
// subsystem over the bus — agents never hold an llm.Client directly.
func (s *SharedState) CompleteViaLLM(ctx context.Context, channelID, content, system string) (string, memory.Usage, error) {
	payload, busErr, err := s.busHandle.Request(ctx, "llm/complete", bus.LlmRequest{
		ChannelID: channelID,
		Content:   content,
		System:    system,
	})
	if err != nil {
		return "", memory.Usage{}, err
	}
	if busErr != nil {
		return "", memory.Usage{}, busErr
	}
	msg, ok := payload.(bus.CommsMessage)
	if !ok {
		return "", memory.Usage{}, fmt.Errorf("llm/complete: unexpected reply type %T", payload)
	}
	var usage memory.Usage
	if msg.Usage != nil {
		usage = memory.Usage{
			InputTokens:       msg.Usage.InputTokens,
			OutputTokens:      msg.Usage.OutputTokens,
			CachedInputTokens: msg.Usage.CachedInputTokens,
		}
	}
	return msg.Content, usage, nil
}

// ExecuteTool routes a tool invocation through the tools subsystem.
// Refuses tools not in the enabled list without making a bus round
// trip.
func (s *SharedState) ExecuteTool(ctx context.Context, tool, action, argsJSON, channelID, sessionID string) (bus.ToolResponse, error) {
	if !s.toolEnabled(tool) {
		return bus.ToolResponse{Tool: tool, Action: action, OK: false, Error: "tool not enabled: " + tool}, nil
	}
	payload, busErr, err := s.busHandle.Request(ctx, "tools/execute", bus.ToolRequest{
		Tool:      tool,
		Action:    action,
		ArgsJSON:  argsJSON,
		ChannelID: channelID,
		SessionID: sessionID,
	})
	if err != nil {
		return bus.ToolResponse{}, err
	}
	if busErr != nil {
		return bus.ToolResponse{Tool: tool, Action: action, OK: false, Error: busErr.Message}, nil
	}
	resp, ok := payload.(bus.ToolResponse)
	if !ok {
		return bus.ToolResponse{}, fmt.Errorf("tools/execute: unexpected reply type %T", payload)
	}
	return resp, nil
}

// agentDir returns (creating if necessary) the identity directory for
// agentID: memoryRoot/agents/{agentID}. Generates an ed25519 keypair
// on first use via internal/identity. The directory
// is named by agent id alone rather than "{agent_id}-{short_key}": the
// short key can only be computed after the keypair exists, and the
// agent id is already a unique key within the registry, so the suffix
// would add no further disambiguation here.
func (s *SharedState) agentDir(agentID string) (string, *identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir, ok := s.agentDirs[agentID]; ok {
		return dir, s.agentIdentity[agentID], nil
	}

	dir := filepath.Join(s.memoryRoot, "agents", agentID)
	id, err := identity.Setup("", dir)
	if err != nil {
		return "", nil, fmt.Errorf("agent %s: identity setup: %w", agentID, err)
	}
	s.agentDirs[agentID] = dir
	s.agentIdentity[agentID] = id
	return dir, id, nil
}

// AgentIdentityDir resolves (creating if necessary) the on-disk
// identity directory for agentID.
func (s *SharedState) AgentIdentityDir(agentID string) (string, error) {
	dir, _, err := s.agentDir(agentID)
	return dir, err
}

// AgentIdentityDirs snapshots the identity directories created so far
// for agents that have handled at least one request. Used as the
// memory.DocstoreManager's roots() source: an agent's docstore/
// kg_docstore only exists once its directory has been created on
// first use.
func (s *SharedState) AgentIdentityDirs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	dirs := make([]string, 0, len(s.agentDirs))
	for _, dir := range s.agentDirs {
		dirs = append(dirs, dir)
	}
	return dirs
}

// GetOrCreateSubagent resolves (creating if necessary) a child
// identity directory under the parent agent's subagents/ folder,
// keypair included. Subagent state nests under the parent rather
// than appearing as a registry-level agent: a subagent cannot be
// routed to from the bus, only reached through its parent.
func (s *SharedState) GetOrCreateSubagent(parentID, subagentID string) (string, *identity.Identity, error) {
	parentDir, _, err := s.agentDir(parentID)
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := parentID + "/" + subagentID
	if dir, ok := s.agentDirs[key]; ok {
		return dir, s.agentIdentity[key], nil
	}

	dir := filepath.Join(parentDir, "subagents", subagentID)
	id, err := identity.Setup("", dir)
	if err != nil {
		return "", nil, fmt.Errorf("subagent %s of %s: identity setup: %w", subagentID, parentID, err)
	}
	s.agentDirs[key] = dir
	s.agentIdentity[key] = id
	return dir, id, nil
}

// AgentSessions returns the agent-scoped session system rooted under
// that agent's own identity directory.
func (s *SharedState) AgentSessions(agentID string) (*memory.System, error) {
	dir, _, err := s.agentDir(agentID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sys, ok := s.agentMemory[agentID]; ok {
		return sys, nil
	}
	sys, err := memory.NewSystem(dir)
	if err != nil {
		return nil, err
	}
	s.agentMemory[agentID] = sys
	return sys, nil
}

// OpenDocstore opens the plain docstore rooted under agentID's
// identity directory.
func (s *SharedState) OpenDocstore(agentID string) (*docstore.Store, error) {
	dir, _, err := s.agentDir(agentID)
	if err != nil {
		return nil, err
	}
	return docstore.Open(filepath.Join(dir, "docstore"))
}

// OpenKGDocstore opens the KG-augmented docstore rooted under
// agentID's identity directory.
func (s *SharedState) OpenKGDocstore(agentID string) (*kgdocstore.Store, error) {
	dir, _, err := s.agentDir(agentID)
	if err != nil {
		return nil, err
	}
	return kgdocstore.Open(dir)
}

const agentKVCap = basicsession.DefaultKVCap

// AgentKVGet reads one entry from an agent's own top-level kv.json
// (distinct from any per-session kv.json), used for persistent
// agent-level state like the docs agent's active_session_id.
func (s *SharedState) AgentKVGet(agentID, key string) (string, bool, error) {
	dir, err := s.ensureAgentKV(agentID)
	if err != nil {
		return "", false, err
	}
	return basicsession.New(agentKVCap, 0).KVGet(dir, key)
}

// AgentKVSet writes one entry to an agent's top-level kv.json.
func (s *SharedState) AgentKVSet(agentID, key, value string) error {
	dir, err := s.ensureAgentKV(agentID)
	if err != nil {
		return err
	}
	return basicsession.New(agentKVCap, 0).KVSet(dir, key, value)
}

func (s *SharedState) ensureAgentKV(agentID string) (string, error) {
	dir, _, err := s.agentDir(agentID)
	if err != nil {
		return "", err
	}
	if _, _, err := basicsession.New(agentKVCap, 0).KVGet(dir, "__probe__"); err != nil {
		// kv.json does not exist yet for this agent root: initialize it.
		// Init also (re)writes transcript.md, which the agent root does
		// not use, but it keeps this a single well-tested code path
		// rather than a bespoke kv-only initializer.
		if initErr := basicsession.New(agentKVCap, 0).Init(dir); initErr != nil {
			return "", initErr
		}
	}
	return dir, nil
}
