package kgdocstore

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/araliya/araliya-bot/internal/memory/stores/docstore"
)

// SearchWithKG runs the knowledge-graph-augmented retrieval
// pipeline: resolve seed entities from the query, expand
// by BFS over the relation graph, score chunks by a mix of KG
// adjacency and plain full-text relevance, and format the union as an
// LLM-ready context block. Any fallback path (no graph, no seeds)
// degrades to plain SearchByText and reports UsedKG=false.
func (s *Store) SearchWithKG(query string, cfg Config) (KgSearchResult, error) {
	graph, err := s.ReadGraph()
	if err != nil {
		return KgSearchResult{}, err
	}
	if len(graph.Entities) == 0 {
		return s.fallback(query, cfg)
	}

	seeds := resolveSeeds(graph, query, cfg.MaxSeeds)
	if len(seeds) == 0 {
		return s.fallback(query, cfg)
	}

	adjacency := buildAdjacency(graph, cfg.EdgeWeightThreshold)
	visited := bfs(adjacency, seeds, cfg.BFSMaxDepth)

	ftsTopChunks, err := s.ftsTopChunkSet(query, cfg)
	if err != nil {
		return KgSearchResult{}, err
	}

	scores := scoreChunks(graph, visited, ftsTopChunks)
	topChunkIDs := topN(scores, cfg.MaxChunks)

	chunkMap, err := s.GetChunksByIDs(topChunkIDs)
	if err != nil {
		return KgSearchResult{}, err
	}

	seedNames := make([]string, 0, len(seeds))
	for _, id := range seeds {
		seedNames = append(seedNames, graph.Entities[id].Name)
	}

	context := formatKgContext(graph, seeds, visited, topChunkIDs, chunkMap, s)
	return KgSearchResult{Context: context, UsedKG: true, SeedEntities: seedNames}, nil
}

// fallback runs plain full-text search and formats it as a
// "## Relevant Passages" section, used whenever the graph is absent,
// empty, or the query matched no seed entity.
func (s *Store) fallback(query string, cfg Config) (KgSearchResult, error) {
	results, err := s.SearchByText(query, cfg.MaxChunks)
	if err != nil {
		return KgSearchResult{}, err
	}
	if len(results) == 0 {
		return KgSearchResult{UsedKG: false}, nil
	}
	var b strings.Builder
	b.WriteString("## Relevant Passages\n")
	for _, r := range results {
		fmt.Fprintf(&b, "[%s | %s]\n%s\n\n", r.Chunk.ID, r.DocMetadata.Title, r.Chunk.Text)
	}
	return KgSearchResult{Context: strings.TrimRight(b.String(), "\n") + "\n", UsedKG: false}, nil
}

// resolveSeeds finds entities whose lowercase name is a substring of
// the lowercased query, or any of whose name tokens match a query
// token, sorted by mention_count descending and truncated to maxSeeds.
func resolveSeeds(graph KgGraph, query string, maxSeeds int) []string {
	lowerQuery := strings.ToLower(query)
	queryTokens := map[string]bool{}
	for _, t := range strings.Fields(lowerQuery) {
		queryTokens[t] = true
	}

	type hit struct {
		id   string
		ment int
	}
	var hits []hit
	for id, e := range graph.Entities {
		match := strings.Contains(lowerQuery, e.Name)
		if !match {
			for _, tok := range strings.Fields(e.Name) {
				if queryTokens[tok] {
					match = true
					break
				}
			}
		}
		if match {
			hits = append(hits, hit{id: id, ment: e.MentionCount})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].ment != hits[j].ment {
			return hits[i].ment > hits[j].ment
		}
		return hits[i].id < hits[j].id
	})
	if maxSeeds <= 0 {
		maxSeeds = len(hits)
	}
	if len(hits) > maxSeeds {
		hits = hits[:maxSeeds]
	}
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out
}

// buildAdjacency forms an undirected adjacency list from relations at
// or above the edge weight threshold.
func buildAdjacency(graph KgGraph, threshold float64) map[string][]string {
	adj := map[string][]string{}
	for _, r := range graph.Relations {
		if r.Weight < threshold {
			continue
		}
		adj[r.From] = append(adj[r.From], r.To)
		adj[r.To] = append(adj[r.To], r.From)
	}
	return adj
}

// bfs explores the adjacency list from the seed set up to maxDepth,
// returning every visited entity id (seeds included).
func bfs(adjacency map[string][]string, seeds []string, maxDepth int) map[string]bool {
	visited := map[string]bool{}
	type frontierEntry struct {
		id    string
		depth int
	}
	var frontier []frontierEntry
	for _, s := range seeds {
		visited[s] = true
		frontier = append(frontier, frontierEntry{id: s, depth: 0})
	}
	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= maxDepth {
			continue
		}
		for _, next := range adjacency[cur.id] {
			if visited[next] {
				continue
			}
			visited[next] = true
			frontier = append(frontier, frontierEntry{id: next, depth: cur.depth + 1})
		}
	}
	return visited
}

// ftsTopChunkSet returns the set of chunk ids in the top-K plain
// full-text results, K = ceil(max_chunks * fts_share), at least 1.
func (s *Store) ftsTopChunkSet(query string, cfg Config) (map[string]bool, error) {
	k := int(math.Ceil(float64(cfg.MaxChunks) * cfg.FTSShare))
	if k < 1 {
		k = 1
	}
	results, err := s.SearchByText(query, k)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(results))
	for _, r := range results {
		set[r.Chunk.ID] = true
	}
	return set, nil
}

// scoreChunks computes, for every chunk referenced by a visited
// entity's SourceChunks, score = 1.0 + kg_bonus + fts_bonus.
func scoreChunks(graph KgGraph, visited map[string]bool, ftsTop map[string]bool) map[string]float64 {
	scores := map[string]float64{}
	for id := range visited {
		e, ok := graph.Entities[id]
		if !ok {
			continue
		}
		for _, chunkID := range e.SourceChunks {
			scores[chunkID] += 0.5
		}
	}
	for chunkID := range scores {
		scores[chunkID] += 1.0
		if ftsTop[chunkID] {
			scores[chunkID] += 1.0
		}
	}
	// Chunks that only ever appear via the FTS set (no KG bonus at
	// all) still deserve a base score so a pure-FTS hit isn't
	// silently dropped from a KG-seeded search.
	for chunkID := range ftsTop {
		if _, ok := scores[chunkID]; !ok {
			scores[chunkID] = 1.0 + 1.0
		}
	}
	return scores
}

func topN(scores map[string]float64, n int) []string {
	type scored struct {
		id    string
		score float64
	}
	all := make([]scored, 0, len(scores))
	for id, sc := range scores {
		all = append(all, scored{id: id, score: sc})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	if n <= 0 || n > len(all) {
		n = len(all)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, all[i].id)
	}
	return out
}

// formatKgContext assembles the two-section context block: a
// Knowledge Graph summary of each seed and its visited neighbors,
// followed by the ranked passages themselves.
func formatKgContext(graph KgGraph, seeds []string, visited map[string]bool, chunkIDs []string, chunks map[string]docstore.Chunk, s *Store) string {
	var b strings.Builder
	b.WriteString("## Knowledge Graph Context\n")
	for _, seedID := range seeds {
		seed, ok := graph.Entities[seedID]
		if !ok {
			continue
		}
		related := neighborNames(graph, seedID, visited)
		fmt.Fprintf(&b, "%s [%s] — related to: %s\n", seed.Name, seed.Kind, strings.Join(related, ", "))
	}

	b.WriteString("\n## Relevant Passages\n")
	for _, id := range chunkIDs {
		c, ok := chunks[id]
		if !ok {
			continue
		}
		title := docTitle(s, c.DocID)
		fmt.Fprintf(&b, "[%s | %s]\n%s\n\n", c.ID, title, c.Text)
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func neighborNames(graph KgGraph, id string, visited map[string]bool) []string {
	seen := map[string]bool{}
	var names []string
	for _, r := range graph.Relations {
		var other string
		switch {
		case r.From == id && visited[r.To]:
			other = r.To
		case r.To == id && visited[r.From]:
			other = r.From
		default:
			continue
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		if e, ok := graph.Entities[other]; ok {
			names = append(names, e.Name)
		}
	}
	sort.Strings(names)
	return names
}

func docTitle(s *Store, docID string) string {
	doc, err := s.GetDocument(docID)
	if err != nil {
		return docID
	}
	return doc.Title
}
