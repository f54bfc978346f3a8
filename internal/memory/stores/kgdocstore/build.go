package kgdocstore

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// entityAccum tracks a candidate entity across the whole corpus while
// the build pass walks chunks, before the survival filter decides
// whether it becomes a permanent Entity.
type entityAccum struct {
	kind         EntityKind
	mentionCount int
	isSeed       bool
	chunkHits    map[string]bool // chunk_id -> seen, for SourceChunks dedup
}

// relationKey identifies one (from, to, label) edge being accumulated
// during the build pass.
type relationKey struct {
	from, to, label string
}

// RebuildKG re-derives the knowledge graph from every chunk currently
// indexed in the store and atomically writes kg/graph.json plus the
// companion entities.json/relations.json. It is idempotent: running
// it twice against an unchanged corpus produces byte-for-byte
// identical output, since extraction and weight normalization are
// both pure functions of the chunk set.
func (s *Store) RebuildKG(seeds []DomainSeed, cfg Config) (KgGraph, error) {
	chunks, err := s.AllChunks()
	if err != nil {
		return KgGraph{}, err
	}

	accum := map[string]*entityAccum{}
	for _, c := range chunks {
		seen := map[string]bool{} // names already counted once per chunk pass below
		for _, cand := range extractCandidates(c.Text, seeds) {
			if seen[cand.name] {
				continue
			}
			seen[cand.name] = true

			a, ok := accum[cand.name]
			if !ok {
				a = &entityAccum{kind: cand.kind, chunkHits: map[string]bool{}}
				accum[cand.name] = a
			}
			a.mentionCount += countOccurrences(c.Text, cand.name)
			a.chunkHits[c.ID] = true
		}
	}

	isSeed := map[string]bool{}
	for _, seed := range seeds {
		isSeed[normalize(seed.Name)] = true
	}

	entities := map[string]Entity{}
	nameToID := map[string]string{}
	for name, a := range accum {
		if !survives(name, a.mentionCount, isSeed[name], cfg.MinEntityMentions) {
			continue
		}
		id := entityID(name)
		chunkIDs := make([]string, 0, len(a.chunkHits))
		for cid := range a.chunkHits {
			chunkIDs = append(chunkIDs, cid)
		}
		sort.Strings(chunkIDs)
		entities[id] = Entity{
			ID:           id,
			Name:         name,
			Kind:         a.kind,
			MentionCount: a.mentionCount,
			SourceChunks: chunkIDs,
		}
		nameToID[name] = id
	}

	relAccum := map[relationKey]map[string]bool{}
	for _, c := range chunks {
		var present []string
		for name := range nameToID {
			if strings.Contains(strings.ToLower(c.Text), name) {
				present = append(present, name)
			}
		}
		sort.Strings(present)
		for _, a := range present {
			for _, b := range present {
				if a == b {
					continue
				}
				label := labelForPair(c.Text, a, b)
				key := relationKey{from: nameToID[a], to: nameToID[b], label: label}
				set, ok := relAccum[key]
				if !ok {
					set = map[string]bool{}
					relAccum[key] = set
				}
				set[c.ID] = true
			}
		}
	}

	maxRaw := 0
	for _, set := range relAccum {
		if len(set) > maxRaw {
			maxRaw = len(set)
		}
	}
	if maxRaw == 0 {
		maxRaw = 1
	}

	var relations []Relation
	for key, set := range relAccum {
		chunkIDs := make([]string, 0, len(set))
		for cid := range set {
			chunkIDs = append(chunkIDs, cid)
		}
		sort.Strings(chunkIDs)
		relations = append(relations, Relation{
			From:         key.from,
			To:           key.to,
			Label:        key.label,
			Weight:       float64(len(set)) / float64(maxRaw),
			SourceChunks: chunkIDs,
		})
	}
	sort.Slice(relations, func(i, j int) bool {
		if relations[i].From != relations[j].From {
			return relations[i].From < relations[j].From
		}
		if relations[i].To != relations[j].To {
			return relations[i].To < relations[j].To
		}
		return relations[i].Label < relations[j].Label
	})

	graph := KgGraph{Entities: entities, Relations: relations}
	if err := s.writeGraph(graph); err != nil {
		return KgGraph{}, err
	}
	return graph, nil
}

// labelForPair finds the first substring of text running between an
// occurrence of a and an occurrence of b (in either order) and labels
// it via the relation-keyword patterns.
func labelForPair(text, a, b string) string {
	lower := strings.ToLower(text)
	ia := strings.Index(lower, a)
	ib := strings.Index(lower, b)
	if ia < 0 || ib < 0 {
		return "relates_to"
	}
	var between string
	if ia < ib {
		between = text[ia+len(a) : ib]
	} else {
		between = text[ib+len(b) : ia]
	}
	return labelBetween(between)
}

func entityID(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:])[:16]
}
