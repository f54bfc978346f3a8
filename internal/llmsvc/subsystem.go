// Package llmsvc exposes the configured LLM client(s) and model
// router over the bus under the "llm" prefix, so the agent subsystem
// never holds an llm.Client directly: it sends an LlmRequest and
// receives a CommsMessage carrying the completion plus token usage.
package llmsvc

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/llm"
	"github.com/araliya/araliya-bot/internal/router"
)

// Subsystem adapts an llm.Client plus a model router to bus.Handler
// under the "llm" prefix.
type Subsystem struct {
	client   llm.Client
	router   *router.Router
	logger   *slog.Logger
	timeout  time.Duration
	provider string
	model    string
}

// New creates a Subsystem. defaultModel is used when the router
// yields no candidate (e.g. no models configured), matching
// router.Router.MaxQuality's "safe default" philosophy.
func New(client llm.Client, r *router.Router, logger *slog.Logger, provider, defaultModel string, timeout time.Duration) *Subsystem {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Subsystem{client: client, router: r, logger: logger, timeout: timeout, provider: provider, model: defaultModel}
}

func (s *Subsystem) Prefix() string { return "llm" }

func (s *Subsystem) HandleRequest(method string, payload bus.Payload, reply chan<- bus.Result) {
	switch method {
	case "complete", "":
		req, ok := payload.(bus.LlmRequest)
		if !ok {
			bus.Reply(reply, nil, bus.BadRequest("expected LlmRequest payload"))
			return
		}
		go s.complete(req, reply)

	case "health":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		status := "ok"
		if err := s.client.Ping(ctx); err != nil {
			status = "degraded"
		}
		data, _ := json.Marshal(map[string]string{"status": status, "provider": s.provider, "model": s.model})
		bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)

	case "status":
		data, _ := json.Marshal(map[string]string{"provider": s.provider, "model": s.model})
		bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)

	default:
		bus.Reply(reply, nil, bus.NotFound("llm/"+method))
	}
}

func (s *Subsystem) complete(req bus.LlmRequest, reply chan<- bus.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	model := s.model
	if s.router != nil {
		routed, _ := s.router.Route(ctx, router.Request{
			Query:      req.Content,
			NeedsTools: false,
			Priority:   router.PriorityInteractive,
			Hints:      map[string]string{router.HintChannel: req.ChannelID},
		})
		if routed != "" {
			model = routed
		}
	}

	messages := []llm.Message{}
	if req.System != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Content})

	resp, err := s.client.Chat(ctx, model, messages, nil)
	if err != nil {
		s.logger.Warn("llm completion failed", "model", model, "error", err)
		bus.Reply(reply, nil, bus.Application("llm completion failed: "+err.Error()))
		return
	}

	bus.Reply(reply, bus.CommsMessage{
		ChannelID: req.ChannelID,
		Content:   resp.Message.Content,
		Usage: &bus.LlmUsage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		},
	}, nil)
}

func (s *Subsystem) HandleNotification(method string, payload bus.Payload) {}

func (s *Subsystem) ComponentInfo() bus.ComponentInfo {
	return bus.DefaultComponentInfo("llm")
}
