// Package toolexec exposes the agent tool registry over the bus under
// the "tools" prefix, translating the generic ToolRequest/ToolResponse
// envelope into the registry's by-name Execute call.
package toolexec

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/tools"
)

// Subsystem adapts a tools.Registry to bus.Handler under "tools".
type Subsystem struct {
	registry *tools.Registry
	resolver *tools.ContentResolver
	logger   *slog.Logger
	timeout  time.Duration
}

// New wraps registry for bus registration under the "tools" prefix.
func New(registry *tools.Registry, logger *slog.Logger) *Subsystem {
	return &Subsystem{registry: registry, logger: logger, timeout: 30 * time.Second}
}

// SetContentResolver attaches resolver so execute expands bare temp:/kb:
// argument references to file content before dispatch. A nil resolver
// disables expansion (its methods are nil-safe regardless).
func (s *Subsystem) SetContentResolver(resolver *tools.ContentResolver) {
	s.resolver = resolver
}

func (s *Subsystem) Prefix() string { return "tools" }

func (s *Subsystem) HandleRequest(method string, payload bus.Payload, reply chan<- bus.Result) {
	switch method {
	case "execute", "":
		req, ok := payload.(bus.ToolRequest)
		if !ok {
			bus.Reply(reply, nil, bus.BadRequest("expected ToolRequest payload"))
			return
		}
		go s.execute(req, reply)

	case "list":
		data, _ := json.Marshal(s.registry.AllToolNames())
		bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)

	case "health":
		bus.Reply(reply, bus.JSONResponse{Data: `{"status":"ok"}`}, nil)

	default:
		bus.Reply(reply, nil, bus.NotFound("tools/"+method))
	}
}

func (s *Subsystem) execute(req bus.ToolRequest, reply chan<- bus.Result) {
	if s.registry.Get(req.Tool) == nil {
		bus.Reply(reply, bus.ToolResponse{Tool: req.Tool, Action: req.Action, OK: false, Error: "unknown tool: " + req.Tool}, nil)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	ctx = tools.WithConversationID(ctx, req.SessionID)

	argsJSON := withAction(req.ArgsJSON, req.Action)
	if resolved, err := s.resolveArgsJSON(ctx, argsJSON); err != nil {
		s.logger.Warn("tool argument resolution failed", "tool", req.Tool, "error", err)
		bus.Reply(reply, bus.ToolResponse{Tool: req.Tool, Action: req.Action, OK: false, Error: err.Error()}, nil)
		return
	} else {
		argsJSON = resolved
	}
	result, err := s.registry.Execute(ctx, req.Tool, argsJSON)
	if err != nil {
		s.logger.Warn("tool execution failed", "tool", req.Tool, "action", req.Action, "error", err)
		bus.Reply(reply, bus.ToolResponse{Tool: req.Tool, Action: req.Action, OK: false, Error: err.Error()}, nil)
		return
	}
	bus.Reply(reply, bus.ToolResponse{Tool: req.Tool, Action: req.Action, OK: true, DataJSON: result}, nil)
}

// resolveArgsJSON expands bare temp:/kb: references in argsJSON to file
// content via s.resolver before the registry sees them. A nil resolver or
// empty argsJSON is a no-op.
func (s *Subsystem) resolveArgsJSON(ctx context.Context, argsJSON string) (string, error) {
	if s.resolver == nil || argsJSON == "" {
		return argsJSON, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return argsJSON, nil
	}
	if err := s.resolver.ResolveArgs(ctx, args); err != nil {
		return "", err
	}
	merged, err := json.Marshal(args)
	if err != nil {
		return argsJSON, nil
	}
	return string(merged), nil
}

// withAction merges a non-empty action into the args JSON under the
// "action" key, unless the caller already set one explicitly.
func withAction(argsJSON, action string) string {
	if action == "" {
		return argsJSON
	}
	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return argsJSON
		}
	}
	if args == nil {
		args = map[string]any{}
	}
	if _, ok := args["action"]; !ok {
		args["action"] = action
	}
	merged, err := json.Marshal(args)
	if err != nil {
		return argsJSON
	}
	return string(merged)
}

func (s *Subsystem) HandleNotification(method string, payload bus.Payload) {}

func (s *Subsystem) ComponentInfo() bus.ComponentInfo {
	toolNames := s.registry.AllToolNames()
	children := make([]bus.ComponentInfo, 0, len(toolNames))
	for _, name := range toolNames {
		children = append(children, bus.Leaf(name, name))
	}
	return bus.Running("tools", "Tools", children)
}
