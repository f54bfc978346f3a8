package agents

import (
	"fmt"

	"github.com/araliya/araliya-bot/internal/bus"
)

// Registry holds every registered agent plus the resolution policy:
// which agents are enabled, which agent a channel maps to, and which
// agent answers when no explicit id or channel mapping applies.
type Registry struct {
	agents     map[string]Agent
	order      []string
	enabled    map[string]bool
	channelMap map[string]string
	defaultID  string
}

// NewRegistry creates an empty registry. defaultID names the agent
// used when no explicit id or channel mapping resolves one; it need
// not already be registered at construction time.
func NewRegistry(defaultID string) *Registry {
	return &Registry{
		agents:     make(map[string]Agent),
		enabled:    make(map[string]bool),
		channelMap: make(map[string]string),
		defaultID:  defaultID,
	}
}

// Register adds an agent. Panics on a duplicate id — that is a wiring
// bug caught at startup, same as Supervisor.Register's prefix check
// but surfaced earlier since agents are registered directly by
// cmd/araliyad rather than through a fallible bus call.
func (r *Registry) Register(a Agent, enabled bool) {
	id := a.ID()
	if _, exists := r.agents[id]; exists {
		panic(fmt.Sprintf("agents: duplicate agent id %q", id))
	}
	r.agents[id] = a
	r.order = append(r.order, id)
	if enabled {
		r.enabled[id] = true
	}
}

// MapChannel routes channelID to agentID when no explicit agent is
// named in the method.
func (r *Registry) MapChannel(channelID, agentID string) {
	r.channelMap[channelID] = agentID
}

// Agents returns every registered agent in registration order.
func (r *Registry) Agents() []Agent {
	out := make([]Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id])
	}
	return out
}

// Get returns the agent registered under id, if any.
func (r *Registry) Get(id string) (Agent, bool) {
	a, ok := r.agents[id]
	return a, ok
}

// isEnabled reports whether id may be dispatched to. An empty enabled
// set means "no restriction": every registered agent is implicitly
// enabled. This resolves an ambiguity in the method-grammar spec,
// whose resolution rule 1 ("explicit agent must be in the enabled
// set") and rule 3 ("or the enabled set is empty, meaning no
// restriction") only cohere if "no restriction" is read uniformly
// across both rules rather than rule 3 alone.
func (r *Registry) isEnabled(id string) bool {
	if len(r.enabled) == 0 {
		return true
	}
	return r.enabled[id]
}

// Resolve applies the resolution order: explicit agent (if
// named) must be enabled; else the channel map; else the default
// agent; else a -32601 naming the disabled default.
func (r *Registry) Resolve(explicitID, channelID string) (Agent, *bus.Error) {
	if explicitID != "" {
		a, ok := r.agents[explicitID]
		if !ok || !r.isEnabled(explicitID) {
			return nil, bus.NotFound("agents/" + explicitID)
		}
		return a, nil
	}

	if mapped, ok := r.channelMap[channelID]; ok && r.isEnabled(mapped) {
		if a, ok := r.agents[mapped]; ok {
			return a, nil
		}
	}

	if r.isEnabled(r.defaultID) {
		if a, ok := r.agents[r.defaultID]; ok {
			return a, nil
		}
	}

	return nil, &bus.Error{Code: bus.ErrMethodNotFound, Message: fmt.Sprintf("default agent %s is not enabled", r.defaultID)}
}
