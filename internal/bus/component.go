package bus

import "strings"

// ComponentInfo is a snapshot of one node in the management component
// tree returned by "manage/tree". Handlers that manage sub-components
// (agents, tools, cron entries) populate Children; everyone else gets
// the single-leaf default.
type ComponentInfo struct {
	ID       string
	Label    string
	Status   string // "running" or "stopped"
	Children []ComponentInfo
	Details  map[string]any
}

// Leaf builds a running, childless component node.
func Leaf(id, label string) ComponentInfo {
	return ComponentInfo{ID: id, Label: label, Status: "running"}
}

// Running builds a running component node with children.
func Running(id, label string, children []ComponentInfo) ComponentInfo {
	return ComponentInfo{ID: id, Label: label, Status: "running", Children: children}
}

// Capitalise title-cases a prefix for use as a default label, e.g.
// "agents" -> "Agents".
func Capitalise(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// DefaultComponentInfo is what Handler.ComponentInfo should return
// when a subsystem has no sub-components worth reporting.
func DefaultComponentInfo(prefix string) ComponentInfo {
	return Leaf(prefix, Capitalise(prefix))
}
