package agents

import (
	"context"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/memory"
	"github.com/araliya/araliya-bot/internal/talents"
)

// chatHistoryWindow is how many prior transcript entries (excluding
// the turn just appended) are folded into the prompt.
const chatHistoryWindow = 20

// ChatAgent is the general-purpose conversational agent: it keeps a
// persistent session transcript and spend ledger, falling back to a
// stateless completion if session storage is unavailable rather than
// failing the whole turn.
type ChatAgent struct {
	id        string
	roleLayer string
	talents   *talents.Loader
	timeout   time.Duration
}

// NewChatAgent creates a ChatAgent under the given id, with roleLayer
// as the prompt's agent-role layer (e.g. persona/instructions text).
func NewChatAgent(id, roleLayer string) *ChatAgent {
	if id == "" {
		id = "chat"
	}
	return &ChatAgent{id: id, roleLayer: roleLayer, timeout: 60 * time.Second}
}

// SetTalentsDir points the agent at a directory of Markdown talent
// files (behavioral guidance) folded into every prompt's identity
// layer. Call before the agent is registered.
func (a *ChatAgent) SetTalentsDir(dir string) {
	a.talents = talents.NewLoader(dir)
}

func (a *ChatAgent) talentsLayer() string {
	if a.talents == nil {
		return talents.Defaults()
	}
	text, err := a.talents.Load()
	if err != nil || text == "" {
		return talents.Defaults()
	}
	return text
}

func (a *ChatAgent) ID() string { return a.id }

func (a *ChatAgent) RequiredStoreTypes() []memory.StoreType {
	return []memory.StoreType{memory.StoreBasicSession}
}

func (a *ChatAgent) Handle(req AgentRequest, shared *SharedState, reply chan<- bus.Result) {
	go a.handle(req, shared, reply)
}

func (a *ChatAgent) handle(req AgentRequest, shared *SharedState, reply chan<- bus.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	handle, err := a.acquireSession(shared, req.SessionID)
	if err != nil {
		shared.Logger().Warn("chat agent: session unavailable, answering statelessly", "agent", a.id, "error", err)
		a.statelessReply(ctx, req, shared, reply)
		return
	}

	var history []memory.TranscriptEntry
	if hist, err := handle.TranscriptReadLast(chatHistoryWindow); err == nil {
		history = hist
	} else {
		shared.Logger().Warn("chat agent: read history failed", "agent", a.id, "error", err)
	}

	if err := handle.TranscriptAppend("user", req.Content); err != nil {
		shared.Logger().Warn("chat agent: append user turn failed", "agent", a.id, "error", err)
	}

	prompt := layeredPrompt(a.id, a.roleLayer, a.talentsLayer(), shared.EnabledTools(), history, req.Content)

	answer, usage, err := shared.CompleteViaLLM(ctx, req.ChannelID, prompt, a.roleLayer)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("chat agent completion failed: "+err.Error()))
		return
	}

	if err := handle.TranscriptAppend("assistant", answer); err != nil {
		shared.Logger().Warn("chat agent: append assistant turn failed", "agent", a.id, "error", err)
	}
	if _, err := handle.AccumulateSpend(usage, shared.Rates()); err != nil {
		shared.Logger().Warn("chat agent: spend ledger update failed", "agent", a.id, "error", err)
	}

	bus.Reply(reply, bus.CommsMessage{
		ChannelID: req.ChannelID,
		Content:   answer,
		SessionID: handle.SessionID(),
	}, nil)
}

// acquireSession loads sessionID if given, otherwise creates a fresh
// basic_session-backed session.
func (a *ChatAgent) acquireSession(shared *SharedState, sessionID string) (*memory.Handle, error) {
	sys := shared.BotSessions()
	if sessionID != "" {
		if h, err := sys.Load(sessionID, a.id); err == nil {
			return h, nil
		}
	}
	return sys.Create(a.RequiredStoreTypes())
}

// statelessReply answers without touching any session store, used
// when session acquisition itself failed.
func (a *ChatAgent) statelessReply(ctx context.Context, req AgentRequest, shared *SharedState, reply chan<- bus.Result) {
	prompt := layeredPrompt(a.id, a.roleLayer, a.talentsLayer(), shared.EnabledTools(), nil, req.Content)
	answer, _, err := shared.CompleteViaLLM(ctx, req.ChannelID, prompt, a.roleLayer)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("chat agent completion failed: "+err.Error()))
		return
	}
	bus.Reply(reply, bus.CommsMessage{ChannelID: req.ChannelID, Content: answer}, nil)
}
