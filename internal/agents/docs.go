package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/memory"
	"github.com/araliya/araliya-bot/internal/memory/stores/kgdocstore"
	"github.com/araliya/araliya-bot/internal/talents"
)

// maxFallbackIndexBytes caps how much of the fallback index
// document is folded into the prompt when retrieval finds nothing.
const maxFallbackIndexBytes = 200 * 1024

const activeSessionKVKey = "active_session_id"

// DocsAgent answers questions against a personal knowledge base,
// optionally KG-augmented. It keeps one persistent session across
// turns (recorded in its own agent KV under
// "active_session_id") rather than one per request.
type DocsAgent struct {
	id         string
	roleLayer  string
	useKG      bool
	cfg        kgdocstore.Config
	timeout    time.Duration
	talents    *talents.Loader
	indexDocFn func() (string, error)
}

// NewDocsAgent creates a DocsAgent. When useKG is true, queries run
// through kgdocstore.SearchWithKG (itself falling back to plain FTS
// when the graph is empty); otherwise queries always use the plain
// docstore's SearchByText.
func NewDocsAgent(id, roleLayer string, useKG bool) *DocsAgent {
	if id == "" {
		id = "docs"
	}
	return &DocsAgent{id: id, roleLayer: roleLayer, useKG: useKG, cfg: kgdocstore.DefaultConfig(), timeout: 60 * time.Second}
}

// SetKGConfig overrides the kgdocstore tuning config used by
// SearchWithKG, e.g. from YAML. Call before the agent is registered;
// it is not safe to change once requests are in flight.
func (a *DocsAgent) SetKGConfig(cfg kgdocstore.Config) {
	a.cfg = cfg
}

// SetTalentsDir mirrors ChatAgent.SetTalentsDir: a directory of
// Markdown talent files folded into the system prompt's identity
// layer.
func (a *DocsAgent) SetTalentsDir(dir string) {
	a.talents = talents.NewLoader(dir)
}

func (a *DocsAgent) talentsLayer() string {
	if a.talents == nil {
		return talents.Defaults()
	}
	text, err := a.talents.Load()
	if err != nil || text == "" {
		return talents.Defaults()
	}
	return text
}

// SetIndexDocument overrides how the agent reads its configured
// fallback index document (default index.md). readIndexDoc is
// called only when a query produces no FTS hits and no KG seed.
func (a *DocsAgent) SetIndexDocument(readIndexDoc func() (string, error)) {
	a.indexDocFn = readIndexDoc
}

func (a *DocsAgent) ID() string { return a.id }

func (a *DocsAgent) RequiredStoreTypes() []memory.StoreType {
	if a.useKG {
		return []memory.StoreType{memory.StoreBasicSession, memory.StoreKGDocstore}
	}
	return []memory.StoreType{memory.StoreBasicSession, memory.StoreDocstore}
}

func (a *DocsAgent) Handle(req AgentRequest, shared *SharedState, reply chan<- bus.Result) {
	switch req.Action {
	case "", "ask":
		go a.ask(req, shared, reply)
	case "health":
		a.health(shared, reply)
	default:
		bus.Reply(reply, nil, bus.NotFound("agents/"+a.id+"/"+req.Action))
	}
}

func (a *DocsAgent) health(shared *SharedState, reply chan<- bus.Result) {
	status := map[string]any{"status": "ok", "kg_enabled": a.useKG}

	var openErr error
	if a.useKG {
		_, openErr = shared.OpenKGDocstore(a.id)
	} else {
		_, openErr = shared.OpenDocstore(a.id)
	}
	if openErr != nil {
		status["status"] = "degraded"
		status["error"] = openErr.Error()
	}

	data, err := json.Marshal(status)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("marshal docs health: "+err.Error()))
		return
	}
	bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)
}

func (a *DocsAgent) ask(req AgentRequest, shared *SharedState, reply chan<- bus.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	sessionID, handle := a.activeSession(shared)

	var history []memory.TranscriptEntry
	if handle != nil {
		if hist, err := handle.TranscriptReadLast(chatHistoryWindow); err == nil {
			history = hist
		}
		if err := handle.TranscriptAppend("user", req.Content); err != nil {
			shared.Logger().Warn("docs agent: append user turn failed", "agent", a.id, "error", err)
		}
	}

	docsContext, usedKG, seeds, err := a.retrieve(shared, req.Content)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("docs agent retrieval failed: "+err.Error()))
		return
	}

	if docsContext == "" {
		docsContext = a.indexDocumentFallback()
	}

	prompt := fmt.Sprintf("%s\n\nRetrieved context:\n%s", layeredPrompt(a.id, a.roleLayer, a.talentsLayer(), shared.EnabledTools(), history, req.Content), docsContext)

	answer, usage, err := shared.CompleteViaLLM(ctx, req.ChannelID, prompt, a.roleLayer)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("docs agent completion failed: "+err.Error()))
		return
	}

	if handle != nil {
		if err := handle.TranscriptAppend("assistant", answer); err != nil {
			shared.Logger().Warn("docs agent: append assistant turn failed", "agent", a.id, "error", err)
		}
		if _, err := handle.AccumulateSpend(usage, shared.Rates()); err != nil {
			shared.Logger().Warn("docs agent: spend ledger update failed", "agent", a.id, "error", err)
		}
	}

	if usedKG {
		shared.Logger().Debug("docs agent: kg-augmented retrieval", "agent", a.id, "seeds", seeds)
	}
	bus.Reply(reply, bus.CommsMessage{ChannelID: req.ChannelID, Content: answer, SessionID: sessionID}, nil)
}

// activeSession loads the agent's one persistent session, creating it
// (and recording its id in agent KV) the first time this agent is
// ever asked anything. A KV or session failure degrades to a nil
// handle rather than failing the request — the agent just answers
// without transcript history that turn.
func (a *DocsAgent) activeSession(shared *SharedState) (string, *memory.Handle) {
	sys, err := shared.AgentSessions(a.id)
	if err != nil {
		shared.Logger().Warn("docs agent: agent session system unavailable", "agent", a.id, "error", err)
		return "", nil
	}

	if id, ok, err := shared.AgentKVGet(a.id, activeSessionKVKey); err == nil && ok {
		if h, err := sys.Load(id, a.id); err == nil {
			return id, h
		}
	}

	h, err := sys.Create([]memory.StoreType{memory.StoreBasicSession})
	if err != nil {
		shared.Logger().Warn("docs agent: session create failed", "agent", a.id, "error", err)
		return "", nil
	}
	if err := shared.AgentKVSet(a.id, activeSessionKVKey, h.SessionID()); err != nil {
		shared.Logger().Warn("docs agent: persisting active session id failed", "agent", a.id, "error", err)
	}
	return h.SessionID(), h
}

func (a *DocsAgent) retrieve(shared *SharedState, query string) (string, bool, []string, error) {
	if a.useKG {
		kg, err := shared.OpenKGDocstore(a.id)
		if err != nil {
			return "", false, nil, err
		}
		result, err := kg.SearchWithKG(query, a.cfg)
		if err != nil {
			return "", false, nil, err
		}
		return result.Context, result.UsedKG, result.SeedEntities, nil
	}

	ds, err := shared.OpenDocstore(a.id)
	if err != nil {
		return "", false, nil, err
	}
	results, err := ds.SearchByText(query, a.cfg.MaxChunks)
	if err != nil {
		return "", false, nil, err
	}
	if len(results) == 0 {
		return "", false, nil, nil
	}

	passages := ""
	for _, r := range results {
		passages += fmt.Sprintf("[%s] %s\n", r.DocMetadata.Title, r.Chunk.Text)
	}
	return passages, false, nil, nil
}

// indexDocumentFallback reads the configured index document when a
// query produced no FTS hits and no KG seed, truncated to a 200KB
// hard cap. With no index-document source
// configured, it degrades to a plain notice rather than failing the
// turn.
func (a *DocsAgent) indexDocumentFallback() string {
	if a.indexDocFn == nil {
		return "No matching passages were found in the knowledge base, and no index document is configured."
	}
	content, err := a.indexDocFn()
	if err != nil {
		return "No matching passages were found in the knowledge base; the index document could not be read."
	}
	if len(content) > maxFallbackIndexBytes {
		content = content[:maxFallbackIndexBytes]
	}
	return content
}
