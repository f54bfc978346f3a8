package agents

import (
	"fmt"
	"strings"

	"github.com/araliya/araliya-bot/internal/memory"
)

// defaultBody is the fallback body template used when an agent has no
// on-disk persona override. {{history}} and {{user_input}} are
// substituted literally rather than through text/template: the
// substitution set is small and fixed, so a templating engine buys
// nothing here.
const defaultBody = `{{history}}

User: {{user_input}}`

// layeredPrompt assembles the three-layer prompt: an identity layer
// naming the agent, a role layer supplied by the caller, and a
// memory-and-tools layer listing the tool names available this turn,
// followed by the body template with history and the current turn
// substituted in. talentsLayer, when non-empty, is folded into the
// identity layer as additional behavioral guidance.
func layeredPrompt(agentID, roleLayer, talentsLayer string, enabledTools []string, history []memory.TranscriptEntry, userInput string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are %s, one agent within a personal-assistant supervisor.\n\n", agentID)
	if talentsLayer != "" {
		b.WriteString(talentsLayer)
		b.WriteString("\n\n")
	}
	if roleLayer != "" {
		b.WriteString(roleLayer)
		b.WriteString("\n\n")
	}
	if len(enabledTools) > 0 {
		b.WriteString("Tools available this turn: ")
		b.WriteString(strings.Join(enabledTools, ", "))
		b.WriteString("\n\n")
	}

	body := strings.ReplaceAll(defaultBody, "{{history}}", renderHistory(history))
	body = strings.ReplaceAll(body, "{{user_input}}", userInput)
	b.WriteString(body)

	return b.String()
}

// renderHistory formats prior transcript entries as "Role: content"
// lines, one per entry, in chronological order.
func renderHistory(history []memory.TranscriptEntry) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i := range history {
		entry := history[i]
		if i > 0 {
			b.WriteByte('\n')
		}
		role := entry.Role
		if role == "" {
			role = "user"
		}
		fmt.Fprintf(&b, "%s: %s", capitalize(role), entry.Content)
	}
	return b.String()
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
