// Package agents implements the agent subsystem: method-grammar
// routing to a registry of pluggable agents, each of which speaks only
// through a SharedState carrying a private bus handle, the memory
// system, per-agent identities, and LLM/tool access, never the raw
// bus.
package agents

import (
	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/memory"
)

// AgentRequest is the normalized view of one inbound "agents/..."
// request after method-grammar parsing: the explicit or resolved
// action, plus the fields pulled out of the CommsMessage payload.
type AgentRequest struct {
	Action    string
	ChannelID string
	Content   string
	SessionID string
}

// Agent is implemented by every pluggable agent. Handle must behave
// like bus.Handler.HandleRequest: return promptly, moving reply into
// a spawned goroutine for anything that blocks on LLM/tool/disk I/O.
type Agent interface {
	ID() string
	Handle(req AgentRequest, shared *SharedState, reply chan<- bus.Result)
}

// RequiredStores is implemented by agents that need specific store
// types initialized on every session they acquire (chat-style agents
// need basic_session; a future archival agent might add docstore).
type RequiredStores interface {
	RequiredStoreTypes() []memory.StoreType
}
