package supervisor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/araliya/araliya-bot/internal/bus"
)

// HealthConfig carries the static fields the aggregated health body
// reports alongside the per-subsystem fan-out. It is set once at
// startup by cmd/araliyad, after the llm/tools/agents subsystems have
// been constructed.
type HealthConfig struct {
	LLMProvider       string
	LLMModel          string
	LLMTimeoutSeconds int64
	EnabledTools      []string
	MaxToolRounds     int
	SessionCount      func() int
	QRPngBase64       func() string
}

// SetHealthConfig installs the static health-body fields. Safe to call
// once during startup wiring, before Run begins processing traffic.
func (s *Supervisor) SetHealthConfig(cfg HealthConfig) {
	s.mu.Lock()
	s.health = cfg
	s.mu.Unlock()
}

// SetBus gives the supervisor a handle back onto its own bus, used to
// fan out "{prefix}/health" requests through the normal request path
// rather than calling handlers directly.
func (s *Supervisor) SetBus(h bus.Handle) {
	s.mu.Lock()
	s.busHandle = h
	s.mu.Unlock()
}

// treeNode is the JSON shape of one node in the "manage/tree" output,
// matching the wire contract exactly (field names are part of the
// management surface, not free to rename).
type treeNode struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	UptimeMs int64          `json:"uptime_ms,omitempty"`
	State    map[string]any `json:"state,omitempty"`
	Children []treeNode     `json:"children,omitempty"`
}

func fromComponentInfo(ci bus.ComponentInfo) treeNode {
	node := treeNode{ID: ci.ID, Name: ci.Label, Status: ci.Status, State: ci.Details}
	for _, child := range ci.Children {
		node.Children = append(node.Children, fromComponentInfo(child))
	}
	return node
}

func (s *Supervisor) handleManage(rest string, req *bus.Request) {
	switch rest {
	case "tree", "http/tree":
		s.replyTree(req)
	case "health/refresh", "http/get":
		s.replyHealth(req)
	default:
		bus.Reply(req.ReplyTo, nil, bus.NotFound("manage/"+rest))
	}
}

func (s *Supervisor) replyTree(req *bus.Request) {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	handlers := make(map[string]bus.Handler, len(s.handlers))
	for k, v := range s.handlers {
		handlers[k] = v
	}
	qrFn := s.health.QRPngBase64
	s.mu.Unlock()

	root := treeNode{
		ID:       "supervisor",
		Name:     "Supervisor",
		Status:   "running",
		UptimeMs: s.Uptime().Milliseconds(),
	}
	if qrFn != nil {
		if qr := qrFn(); qr != "" {
			root.State = map[string]any{"qr_png_base64": qr}
		}
	}
	for _, prefix := range order {
		h := handlers[prefix]
		if h == nil {
			continue
		}
		root.Children = append(root.Children, fromComponentInfo(h.ComponentInfo()))
	}

	data, err := json.Marshal(root)
	if err != nil {
		bus.Reply(req.ReplyTo, nil, bus.Application("marshal tree: "+err.Error()))
		return
	}
	bus.Reply(req.ReplyTo, bus.JSONResponse{Data: string(data)}, nil)
}

type subsystemHealth struct {
	ID      string         `json:"id"`
	Healthy bool           `json:"healthy"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

type mainProcessStatus struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	UptimeMs int64          `json:"uptime_ms"`
	Details  map[string]any `json:"details,omitempty"`
}

type healthBody struct {
	Status            string            `json:"status"`
	UptimeMs          int64             `json:"uptime_ms"`
	MainProcess       mainProcessStatus `json:"main_process"`
	Subsystems        []subsystemHealth `json:"subsystems"`
	BotID             string            `json:"bot_id"`
	LLMProvider       string            `json:"llm_provider"`
	LLMModel          string            `json:"llm_model"`
	LLMTimeoutSeconds int64             `json:"llm_timeout_seconds"`
	EnabledTools      []string          `json:"enabled_tools"`
	MaxToolRounds     int               `json:"max_tool_rounds"`
	SessionCount      int               `json:"session_count"`
}

func (s *Supervisor) replyHealth(req *bus.Request) {
	s.mu.Lock()
	order := append([]string(nil), s.order...)
	cfg := s.health
	busHandle := s.busHandle
	s.mu.Unlock()

	subsystems := make([]subsystemHealth, len(order))
	var wg sync.WaitGroup
	for i, prefix := range order {
		wg.Add(1)
		go func(i int, prefix string) {
			defer wg.Done()
			subsystems[i] = s.fetchSubsystemHealth(busHandle, prefix)
		}(i, prefix)
	}
	wg.Wait()

	overall := "ok"
	for _, sub := range subsystems {
		if !sub.Healthy {
			overall = "degraded"
			break
		}
	}

	cronDetails := s.cronDetails(busHandle)

	sessionCount := 0
	if cfg.SessionCount != nil {
		sessionCount = cfg.SessionCount()
	}

	body := healthBody{
		Status:   overall,
		UptimeMs: s.Uptime().Milliseconds(),
		MainProcess: mainProcessStatus{
			ID:       "supervisor",
			Name:     "Supervisor",
			Status:   "running",
			UptimeMs: s.Uptime().Milliseconds(),
			Details:  cronDetails,
		},
		Subsystems:        subsystems,
		BotID:             s.botID,
		LLMProvider:       cfg.LLMProvider,
		LLMModel:          cfg.LLMModel,
		LLMTimeoutSeconds: cfg.LLMTimeoutSeconds,
		EnabledTools:      cfg.EnabledTools,
		MaxToolRounds:     cfg.MaxToolRounds,
		SessionCount:      sessionCount,
	}

	data, err := json.Marshal(body)
	if err != nil {
		bus.Reply(req.ReplyTo, nil, bus.Application("marshal health: "+err.Error()))
		return
	}
	bus.Reply(req.ReplyTo, bus.JSONResponse{Data: string(data)}, nil)
}

// fetchSubsystemHealth invokes "{prefix}/health" through the bus with
// a 5s per-handler timeout.
func (s *Supervisor) fetchSubsystemHealth(h bus.Handle, prefix string) subsystemHealth {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	payload, busErr, err := h.Request(ctx, prefix+"/health", bus.Empty{})
	if err != nil || busErr != nil {
		msg := "health check failed"
		if err != nil {
			msg = err.Error()
		} else if busErr != nil {
			msg = busErr.Message
		}
		return subsystemHealth{ID: prefix, Healthy: false, Message: msg}
	}

	details := map[string]any{}
	if jr, ok := payload.(bus.JSONResponse); ok {
		json.Unmarshal([]byte(jr.Data), &details)
	}
	if status, ok := details["status"].(string); ok && status != "ok" {
		return subsystemHealth{ID: prefix, Healthy: false, Message: status, Details: details}
	}
	return subsystemHealth{ID: prefix, Healthy: true, Message: "ok", Details: details}
}

// cronDetails fetches the cron subsystem's active-schedule count for
// the main_process node, best-effort: a missing or unresponsive cron
// handler just means an empty details block.
func (s *Supervisor) cronDetails(h bus.Handle) map[string]any {
	s.mu.Lock()
	_, hasCron := s.handlers["cron"]
	s.mu.Unlock()
	if !hasCron {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	payload, busErr, err := h.Request(ctx, "cron/detailed_status", bus.Empty{})
	if err != nil || busErr != nil {
		return nil
	}
	jr, ok := payload.(bus.JSONResponse)
	if !ok {
		return nil
	}
	var parsed struct {
		ActiveSchedules int               `json:"active_schedules"`
		Entries         []bus.CronEntryInfo `json:"entries"`
	}
	if err := json.Unmarshal([]byte(jr.Data), &parsed); err != nil {
		return nil
	}
	return map[string]any{"cron_active": parsed.ActiveSchedules, "cron_schedules": parsed.Entries}
}
