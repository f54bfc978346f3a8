package kgdocstore

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	backtickRe  = regexp.MustCompile("`([^`]+)`")
	quotedRe    = regexp.MustCompile(`"([^"]+)"`)
	camelCaseRe = regexp.MustCompile(`\b[A-Za-z][A-Za-z0-9_]{2,}\b`)
	titleWordRe = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	acronymRe   = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
)

// candidate is one raw entity mention found in a chunk, before the
// mention-count/seed survival filter is applied.
type candidate struct {
	name string
	kind EntityKind
}

// extractCandidates walks text once per pattern in priority order
// and returns every match. Later stages
// (rebuild) fold duplicates by name and accumulate mention counts.
func extractCandidates(text string, seeds []DomainSeed) []candidate {
	var out []candidate

	for _, m := range backtickRe.FindAllStringSubmatch(text, -1) {
		out = append(out, candidate{name: normalize(m[1]), kind: KindTerm})
	}
	for _, m := range quotedRe.FindAllStringSubmatch(text, -1) {
		if wordCount(m[1]) <= 4 {
			out = append(out, candidate{name: normalize(m[1]), kind: KindTerm})
		}
	}
	for _, m := range camelCaseRe.FindAllString(text, -1) {
		if isCamelCase(m) {
			out = append(out, candidate{name: normalize(m), kind: KindSystem})
		}
	}
	out = append(out, titleCasePhrases(text)...)
	for _, m := range acronymRe.FindAllString(text, -1) {
		out = append(out, candidate{name: normalize(m), kind: KindAcronym})
	}

	lower := strings.ToLower(text)
	for _, seed := range seeds {
		if strings.Contains(lower, strings.ToLower(seed.Name)) {
			out = append(out, candidate{name: normalize(seed.Name), kind: seed.Kind})
		}
	}

	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

// isCamelCase requires a leading letter, length >= 3, an
// alphanumeric-or-underscore body, and at least one uppercase letter
// after position 0.
func isCamelCase(s string) bool {
	if len(s) < 3 {
		return false
	}
	r := []rune(s)
	if !unicode.IsLetter(r[0]) {
		return false
	}
	for _, c := range r[1:] {
		if unicode.IsUpper(c) {
			return true
		}
	}
	return false
}

// titleCasePhrases finds runs of >=2 consecutive capitalized words,
// excluding ones that start right after a sentence boundary (a
// preceding '.', '!', or '?'), since a capitalized first word of a
// sentence is not itself evidence of a proper-noun phrase.
func titleCasePhrases(text string) []candidate {
	type tok struct {
		word       string
		start      int
		sentenceStart bool
	}

	var toks []tok
	atSentenceStart := true
	i := 0
	for i < len(text) {
		for i < len(text) && isSpace(text[i]) {
			i++
		}
		start := i
		for i < len(text) && !isSpace(text[i]) {
			i++
		}
		if start == i {
			break
		}
		word := text[start:i]
		toks = append(toks, tok{word: trimPunct(word), start: start, sentenceStart: atSentenceStart})
		atSentenceStart = endsSentence(word)
	}

	var out []candidate
	n := len(toks)
	for i := 0; i < n; {
		if !titleWordRe.MatchString(toks[i].word) || toks[i].sentenceStart {
			i++
			continue
		}
		j := i + 1
		for j < n && titleWordRe.MatchString(toks[j].word) && !toks[j].sentenceStart {
			j++
		}
		if j-i >= 2 {
			words := make([]string, 0, j-i)
			for k := i; k < j; k++ {
				words = append(words, toks[k].word)
			}
			out = append(out, candidate{name: normalize(strings.Join(words, " ")), kind: KindConcept})
		}
		i = j
		if i == 0 {
			i++
		}
	}
	return out
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, "\"')]")
	if trimmed == "" {
		return false
	}
	last := trimmed[len(trimmed)-1]
	return last == '.' || last == '!' || last == '?'
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// survives decides whether a candidate entity (after mention
// counting) is kept: seeds always survive; everything else needs
// length > 1, not purely numeric, and mention_count >= minMentions.
func survives(name string, mentionCount int, isSeed bool, minMentions int) bool {
	if isSeed {
		return true
	}
	if len(name) <= 1 {
		return false
	}
	if isAllDigits(name) {
		return false
	}
	return mentionCount >= minMentions
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}

// countOccurrences counts non-overlapping occurrences of name in
// text (case-insensitive), so a term repeated N times in one chunk
// contributes N mentions rather than 1.
func countOccurrences(text, name string) int {
	lower := strings.ToLower(text)
	name = strings.ToLower(name)
	if name == "" {
		return 0
	}
	count := 0
	idx := 0
	for {
		pos := strings.Index(lower[idx:], name)
		if pos < 0 {
			break
		}
		count++
		idx += pos + len(name)
	}
	return count
}

// relationPatterns is the ranked list of keyword phrases used to
// label an edge from the chunk substring between two co-occurring
// entities. Checked in order; the first match wins.
var relationPatterns = []struct {
	phrases []string
	label   string
}{
	{[]string{"implements"}, "implements"},
	{[]string{"extends"}, "extends"},
	{[]string{"calls"}, "calls"},
	{[]string{"depends on", "requires"}, "depends_on"},
	{[]string{"uses"}, "uses"},
	{[]string{" is a ", " is an "}, "defined_as"},
	{[]string{"refers to", "instance of"}, "instance_of"},
}

// labelBetween returns the relation label for the chunk substring
// between two co-occurring entities, falling back to "relates_to"
// when no keyword pattern matches.
func labelBetween(between string) string {
	lower := strings.ToLower(between)
	for _, p := range relationPatterns {
		for _, phrase := range p.phrases {
			if strings.Contains(lower, phrase) {
				return p.label
			}
		}
	}
	return "relates_to"
}
