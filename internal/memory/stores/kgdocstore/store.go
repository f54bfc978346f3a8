package kgdocstore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/araliya/araliya-bot/internal/apperr"
	"github.com/araliya/araliya-bot/internal/memory/stores/docstore"
)

// Store is a KG-augmented document store: the same chunks.db schema
// as docstore.Store, rooted under its own "kgdocstore" sub-directory
// so the two can coexist under one identity directory, plus a kg/
// directory holding the derived graph.
type Store struct {
	*docstore.Store
	dir string // kgdocstore root (contains chunks.db, docs/, kg/)
}

const graphDirname = "kg"

// Open opens (creating if necessary) a KG document store rooted at
// dir/kgdocstore.
func Open(dir string) (*Store, error) {
	root := filepath.Join(dir, "kgdocstore")
	base, err := docstore.Open(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(root, graphDirname), 0o755); err != nil {
		return nil, apperr.Memory("kgdocstore: create kg dir", err)
	}
	return &Store{Store: base, dir: root}, nil
}

func (s *Store) graphPath() string    { return filepath.Join(s.dir, graphDirname, "graph.json") }
func (s *Store) entitiesPath() string  { return filepath.Join(s.dir, graphDirname, "entities.json") }
func (s *Store) relationsPath() string { return filepath.Join(s.dir, graphDirname, "relations.json") }

// writeGraph atomically persists graph.json (authoritative) plus the
// companion entities.json/relations.json projections.
func (s *Store) writeGraph(graph KgGraph) error {
	graphData, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return apperr.Memory("kgdocstore: encode graph.json", err)
	}
	if err := writeFileAtomic(s.graphPath(), graphData); err != nil {
		return err
	}

	entitiesData, err := json.MarshalIndent(graph.Entities, "", "  ")
	if err != nil {
		return apperr.Memory("kgdocstore: encode entities.json", err)
	}
	if err := writeFileAtomic(s.entitiesPath(), entitiesData); err != nil {
		return err
	}

	relationsData, err := json.MarshalIndent(graph.Relations, "", "  ")
	if err != nil {
		return apperr.Memory("kgdocstore: encode relations.json", err)
	}
	return writeFileAtomic(s.relationsPath(), relationsData)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return apperr.Memory("kgdocstore: write "+path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return apperr.Memory("kgdocstore: rename "+path, err)
	}
	return nil
}

// ReadGraph loads graph.json, the authoritative graph artifact at
// query time. A missing file returns an empty, non-nil graph rather
// than an error, matching SearchWithKG's "absent graph" fallback
// path.
func (s *Store) ReadGraph() (KgGraph, error) {
	data, err := os.ReadFile(s.graphPath())
	if err != nil {
		if os.IsNotExist(err) {
			return KgGraph{Entities: map[string]Entity{}}, nil
		}
		return KgGraph{}, apperr.Memory("kgdocstore: read graph.json", err)
	}
	var graph KgGraph
	if err := json.Unmarshal(data, &graph); err != nil {
		return KgGraph{}, apperr.Memory("kgdocstore: parse graph.json", err)
	}
	if graph.Entities == nil {
		graph.Entities = map[string]Entity{}
	}
	return graph, nil
}
