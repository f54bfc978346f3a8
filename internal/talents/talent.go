package talents

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Talent is one behavioral guidance document. Tags scope it to a
// capability group; an untagged talent is always included.
type Talent struct {
	Name    string
	Tags    []string
	Content string
}

// LoadAll reads every .md file from the talents directory, parses
// optional tag frontmatter, and returns the talents sorted by
// filename. A missing or unset directory yields nil, not an error.
func (l *Loader) LoadAll() ([]Talent, error) {
	if l.dir == "" {
		return nil, nil
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read talents dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []Talent
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(l.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read talent %s: %w", name, err)
		}
		tags, body := parseFrontmatter(string(raw))
		out = append(out, Talent{
			Name:    strings.TrimSuffix(name, ".md"),
			Tags:    tags,
			Content: body,
		})
	}
	return out, nil
}

// parseFrontmatter extracts a "tags: [a, b]" list from a leading
// "---" delimited frontmatter block. Anything malformed (no opening
// delimiter at the very start, no closing delimiter) returns the raw
// input untouched with nil tags.
func parseFrontmatter(raw string) ([]string, string) {
	if !strings.HasPrefix(raw, "---\n") {
		return nil, raw
	}
	rest := raw[len("---\n"):]
	end := strings.Index(rest, "\n---\n")
	var front, body string
	switch {
	case end >= 0:
		front = rest[:end]
		body = rest[end+len("\n---\n"):]
	case strings.HasSuffix(rest, "\n---"):
		front = strings.TrimSuffix(rest, "\n---")
		body = ""
	default:
		return nil, raw
	}

	var tags []string
	for _, line := range strings.Split(front, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "tags:") {
			continue
		}
		list := strings.TrimSpace(strings.TrimPrefix(line, "tags:"))
		list = strings.TrimPrefix(list, "[")
		list = strings.TrimSuffix(list, "]")
		for _, tag := range strings.Split(list, ",") {
			tag = strings.TrimSpace(tag)
			if tag != "" {
				tags = append(tags, tag)
			}
		}
		break
	}
	return tags, body
}

// FilterByTags joins the content of every talent that should be
// active given activeTags. A nil map means no filtering (everything
// is included); a non-nil map includes untagged talents plus any
// talent with at least one active tag.
func FilterByTags(all []Talent, activeTags map[string]bool) string {
	var parts []string
	for _, t := range all {
		if shouldIncludeTalent(t, activeTags) {
			parts = append(parts, t.Content)
		}
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func shouldIncludeTalent(t Talent, activeTags map[string]bool) bool {
	if len(t.Tags) == 0 || activeTags == nil {
		return true
	}
	for _, tag := range t.Tags {
		if activeTags[tag] {
			return true
		}
	}
	return false
}

// ManifestEntry describes one capability group for the generated
// capability manifest talent.
type ManifestEntry struct {
	Tag          string
	Description  string
	Tools        []string
	AlwaysActive bool
}

// GenerateManifest builds a synthetic untagged talent listing every
// capability group, so the model knows what it can ask for even when
// a group's own talents are filtered out. Returns nil when there are
// no entries.
func GenerateManifest(entries []ManifestEntry) *Talent {
	if len(entries) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("# Capabilities\n\n")
	for _, e := range entries {
		state := "available"
		if e.AlwaysActive {
			state = "always active"
		}
		fmt.Fprintf(&b, "- %s (%s): %s", e.Tag, state, e.Description)
		if len(e.Tools) > 0 {
			fmt.Fprintf(&b, " — tools: %s", strings.Join(e.Tools, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nActivate an available capability with the " +
		"request_capability tool, or delegate the task to a subagent " +
		"that has it.\n")

	return &Talent{Name: "_capability_manifest", Content: b.String()}
}
