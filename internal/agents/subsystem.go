// Package agents implements the "agents" bus prefix: method-grammar
// routing ("agents", "agents/{id}", "agents/{id}/{action}") to a
// Registry of pluggable Agent implementations, plus the introspection
// routes (status, sessions, kg_graph, ...) that answer from the
// registry and memory subsystem directly rather than being forwarded
// to any one agent.
package agents

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/araliya/araliya-bot/internal/bus"
	"github.com/araliya/araliya-bot/internal/memory"
)

// Subsystem adapts a Registry to bus.Handler under the "agents"
// prefix.
type Subsystem struct {
	registry *Registry
	shared   *SharedState
	logger   *slog.Logger
}

// New creates the agents subsystem. registry must already have every
// agent registered; shared is handed to every Agent.Handle call
// unchanged.
func New(registry *Registry, shared *SharedState, logger *slog.Logger) *Subsystem {
	return &Subsystem{registry: registry, shared: shared, logger: logger}
}

func (s *Subsystem) Prefix() string { return "agents" }

// globalIntrospection names the "agents/{route}" introspection routes
// that are answered here rather than forwarded to an agent.
var globalIntrospection = map[string]bool{
	"status":          true,
	"detailed_status": true,
	"health":          true,
	"list":            true,
	"sessions":        true,
	"sessions/detail": true,
	"sessions/memory": true,
	"sessions/files":  true,
	"kg_graph":        true,
}

func (s *Subsystem) HandleRequest(method string, payload bus.Payload, reply chan<- bus.Result) {
	if globalIntrospection[method] {
		s.handleGlobalIntrospection(method, payload, reply)
		return
	}

	segments := splitNonEmpty(method)
	if len(segments) > 2 {
		bus.Reply(reply, nil, bus.NotFound("agents/"+method))
		return
	}

	if len(segments) == 2 && (segments[1] == "status" || segments[1] == "detailed_status") {
		s.handleAgentIntrospection(segments[0], segments[1], reply)
		return
	}

	var explicitID, action string
	switch len(segments) {
	case 0:
		action = "handle"
	case 1:
		explicitID = segments[0]
		action = "handle"
	case 2:
		explicitID, action = segments[0], segments[1]
	}

	msg, ok := payload.(bus.CommsMessage)
	if !ok {
		bus.Reply(reply, nil, bus.BadRequest("expected CommsMessage payload"))
		return
	}

	agent, busErr := s.registry.Resolve(explicitID, msg.ChannelID)
	if busErr != nil {
		bus.Reply(reply, nil, busErr)
		return
	}

	agent.Handle(AgentRequest{
		Action:    action,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		SessionID: msg.SessionID,
	}, s.shared, reply)
}

func splitNonEmpty(method string) []string {
	if method == "" {
		return nil
	}
	return strings.Split(method, "/")
}

// handleGlobalIntrospection answers the "agents/{route}" routes that
// report on the registry or bot-wide session index as a whole, rather
// than being forwarded to one agent's Handle.
func (s *Subsystem) handleGlobalIntrospection(method string, payload bus.Payload, reply chan<- bus.Result) {
	switch method {
	case "status", "health":
		replyJSON(reply, map[string]any{"status": "ok", "agent_count": len(s.registry.Agents())})
	case "detailed_status":
		s.replyAgentList(reply, true)
	case "list":
		s.replyAgentList(reply, false)
	case "sessions":
		s.replySessionList(reply)
	case "sessions/detail":
		s.replySessionDetail(payload, reply)
	case "sessions/memory":
		s.replySessionKV(payload, reply)
	case "sessions/files":
		s.replySessionFiles(payload, reply)
	case "kg_graph":
		s.replyKGGraph(payload, reply)
	default:
		bus.Reply(reply, nil, bus.NotFound("agents/"+method))
	}
}

type agentSummary struct {
	ID      string   `json:"id"`
	Enabled bool     `json:"enabled"`
	Stores  []string `json:"stores,omitempty"`
}

func (s *Subsystem) replyAgentList(reply chan<- bus.Result, detailed bool) {
	summaries := make([]agentSummary, 0, len(s.registry.Agents()))
	for _, a := range s.registry.Agents() {
		sum := agentSummary{ID: a.ID(), Enabled: s.registry.isEnabled(a.ID())}
		if detailed {
			if rs, ok := a.(RequiredStores); ok {
				for _, st := range rs.RequiredStoreTypes() {
					sum.Stores = append(sum.Stores, string(st))
				}
			}
		}
		summaries = append(summaries, sum)
	}
	replyJSON(reply, summaries)
}

// sessionQuery pulls the session/agent id pair out of payload,
// tolerating a bare CommsMessage (SessionID only, no agent scoping)
// alongside the dedicated SessionQuery shape.
func sessionQuery(payload bus.Payload) bus.SessionQuery {
	switch p := payload.(type) {
	case bus.SessionQuery:
		return p
	case bus.CommsMessage:
		return bus.SessionQuery{SessionID: p.SessionID}
	default:
		return bus.SessionQuery{}
	}
}

func (s *Subsystem) replySessionList(reply chan<- bus.Result) {
	sessions, err := s.shared.BotSessions().List()
	if err != nil {
		bus.Reply(reply, nil, bus.Application("list sessions: "+err.Error()))
		return
	}
	replyJSON(reply, sessions)
}

// resolveSessionHandle loads the queried session, preferring the
// agent-scoped session system when an agent id is given (the same
// session id can exist independently in the bot-global and per-agent
// stores).
func (s *Subsystem) resolveSessionHandle(q bus.SessionQuery) (*memory.Handle, error) {
	if q.SessionID == "" {
		return nil, fmt.Errorf("session id required")
	}
	if q.AgentID != "" {
		sys, err := s.shared.AgentSessions(q.AgentID)
		if err != nil {
			return nil, err
		}
		return sys.Load(q.SessionID, q.AgentID)
	}
	return s.shared.BotSessions().Load(q.SessionID, "")
}

type sessionDetail struct {
	SessionID  string               `json:"session_id"`
	StoreTypes []memory.StoreType   `json:"store_types"`
	History    []memory.TranscriptEntry `json:"history,omitempty"`
	Spend      memory.SpendLedger   `json:"spend"`
}

func (s *Subsystem) replySessionDetail(payload bus.Payload, reply chan<- bus.Result) {
	q := sessionQuery(payload)
	handle, err := s.resolveSessionHandle(q)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("load session: "+err.Error()))
		return
	}
	history, _ := handle.TranscriptReadLast(chatHistoryWindow)
	spend, _ := handle.ReadSpend()
	replyJSON(reply, sessionDetail{
		SessionID:  handle.SessionID(),
		StoreTypes: handle.StoreTypes(),
		History:    history,
		Spend:      spend,
	})
}

func (s *Subsystem) replySessionKV(payload bus.Payload, reply chan<- bus.Result) {
	q := sessionQuery(payload)
	handle, err := s.resolveSessionHandle(q)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("load session: "+err.Error()))
		return
	}
	kv, err := handle.KVDoc()
	if err != nil {
		bus.Reply(reply, nil, bus.Application("read session kv: "+err.Error()))
		return
	}
	replyJSON(reply, kv)
}

func (s *Subsystem) replySessionFiles(payload bus.Payload, reply chan<- bus.Result) {
	q := sessionQuery(payload)
	handle, err := s.resolveSessionHandle(q)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("load session: "+err.Error()))
		return
	}
	files, err := handle.ListFiles()
	if err != nil {
		bus.Reply(reply, nil, bus.Application("list session files: "+err.Error()))
		return
	}
	replyJSON(reply, files)
}

func (s *Subsystem) replyKGGraph(payload bus.Payload, reply chan<- bus.Result) {
	q := sessionQuery(payload)
	if q.AgentID == "" {
		bus.Reply(reply, nil, bus.BadRequest("kg_graph requires agent_id"))
		return
	}
	kg, err := s.shared.OpenKGDocstore(q.AgentID)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("open kg docstore: "+err.Error()))
		return
	}
	graph, err := kg.ReadGraph()
	if err != nil {
		bus.Reply(reply, nil, bus.Application("read kg graph: "+err.Error()))
		return
	}
	replyJSON(reply, graph)
}

// handleAgentIntrospection answers "agents/{id}/status" and
// "agents/{id}/detailed_status" for one specific agent, independent
// of whether it is currently enabled.
func (s *Subsystem) handleAgentIntrospection(agentID, action string, reply chan<- bus.Result) {
	a, ok := s.registry.Get(agentID)
	if !ok {
		bus.Reply(reply, nil, bus.NotFound("agents/"+agentID+"/"+action))
		return
	}
	sum := agentSummary{ID: a.ID(), Enabled: s.registry.isEnabled(a.ID())}
	if action == "detailed_status" {
		if rs, ok := a.(RequiredStores); ok {
			for _, st := range rs.RequiredStoreTypes() {
				sum.Stores = append(sum.Stores, string(st))
			}
		}
	}
	replyJSON(reply, sum)
}

// HandleNotification runs the same method-grammar resolution as
// HandleRequest for fire-and-forget traffic. Only a CommsMessage
// payload is acted on (cmd/araliyad's schedule_task wake callback
// sends one); any other payload, including the bus.JSONResponse that
// the cron timer service emits, is logged and ignored. The agent still
// gets a reply channel because Agent.Handle requires one; its outcome
// is drained here and logged instead of delivered anywhere.
func (s *Subsystem) HandleNotification(method string, payload bus.Payload) {
	segments := splitNonEmpty(method)
	if len(segments) > 2 || globalIntrospection[method] {
		s.logger.Warn("agents notification ignored", "method", method)
		return
	}

	var explicitID, action string
	switch len(segments) {
	case 0:
		action = "handle"
	case 1:
		explicitID = segments[0]
		action = "handle"
	case 2:
		explicitID, action = segments[0], segments[1]
	}

	msg, ok := payload.(bus.CommsMessage)
	if !ok {
		s.logger.Warn("agents notification ignored", "method", method, "reason", "payload is not CommsMessage")
		return
	}

	agent, busErr := s.registry.Resolve(explicitID, msg.ChannelID)
	if busErr != nil {
		s.logger.Warn("agents notification unroutable", "method", method, "code", busErr.Code, "message", busErr.Message)
		return
	}

	discard := make(chan bus.Result, 1)
	agent.Handle(AgentRequest{
		Action:    action,
		ChannelID: msg.ChannelID,
		Content:   msg.Content,
		SessionID: msg.SessionID,
	}, s.shared, discard)
	go func() {
		res := <-discard
		if res.Err != nil {
			s.logger.Warn("agents notification handler failed",
				"method", method, "agent_id", agent.ID(), "code", res.Err.Code, "message", res.Err.Message)
		}
	}()
}

func (s *Subsystem) ComponentInfo() bus.ComponentInfo {
	children := make([]bus.ComponentInfo, 0, len(s.registry.Agents()))
	for _, a := range s.registry.Agents() {
		children = append(children, bus.Leaf(a.ID(), bus.Capitalise(a.ID())))
	}
	return bus.Running("agents", "Agents", children)
}

func replyJSON(reply chan<- bus.Result, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		bus.Reply(reply, nil, bus.Application("marshal response: "+err.Error()))
		return
	}
	bus.Reply(reply, bus.JSONResponse{Data: string(data)}, nil)
}
