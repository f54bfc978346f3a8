package agents

import (
	"github.com/araliya/araliya-bot/internal/bus"
)

// EchoAgent answers every request by reflecting the content back
// unchanged. It exists for wiring tests and as the minimal example of
// the Agent interface: no LLM call, no session, no tools.
type EchoAgent struct{}

func (EchoAgent) ID() string { return "echo" }

func (EchoAgent) Handle(req AgentRequest, shared *SharedState, reply chan<- bus.Result) {
	bus.Reply(reply, bus.CommsMessage{
		ChannelID: req.ChannelID,
		Content:   req.Content,
		SessionID: req.SessionID,
	}, nil)
}
