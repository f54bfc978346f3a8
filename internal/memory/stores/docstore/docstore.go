package docstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/araliya/araliya-bot/internal/apperr"
)

// Store is a document store rooted at a directory containing
// chunks.db (metadata + FTS index) and docs/ (raw document bodies).
type Store struct {
	dir     string
	docsDir string
	db      *sql.DB
}

// Open opens (creating if necessary) a document store rooted at dir.
func Open(dir string) (*Store, error) {
	docsDir := filepath.Join(dir, "docs")
	if err := os.MkdirAll(docsDir, 0o755); err != nil {
		return nil, apperr.Memory("docstore: create docs dir", err)
	}
	db, err := OpenConn(filepath.Join(dir, DBFilename))
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, docsDir: docsDir, db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) bodyPath(docID string) string { return filepath.Join(s.docsDir, docID+".txt") }

// AddDocument assigns a UUIDv7 id if missing, computes the content
// hash, and short-circuits with the existing id if a document with
// the same hash already exists (dedup). The raw body is written to
// docs/{doc_id}.txt; the SQL row carries only metadata.
func (s *Store) AddDocument(doc Document) (string, error) {
	hash := SHA256Hex(doc.Content)

	var existing string
	err := s.db.QueryRow(`SELECT doc_id FROM doc_metadata WHERE content_hash = ?`, hash).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", apperr.Memory("docstore: check dedup", err)
	}

	if doc.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return "", apperr.Memory("docstore: generate doc id", err)
		}
		doc.ID = id.String()
	}
	now := NowISO8601()
	if doc.CreatedAt == "" {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	doc.ContentHash = hash

	metaJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return "", apperr.Memory("docstore: encode metadata", err)
	}

	if err := os.WriteFile(s.bodyPath(doc.ID), []byte(doc.Content), 0o644); err != nil {
		return "", apperr.Memory("docstore: write body", err)
	}

	_, err = s.db.Exec(`INSERT INTO doc_metadata (doc_id, title, source, content_hash, created_at, updated_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Source, doc.ContentHash, doc.CreatedAt, doc.UpdatedAt, string(metaJSON))
	if err != nil {
		return "", apperr.Memory("docstore: insert metadata", err)
	}
	return doc.ID, nil
}

// GetDocument reads the metadata row and the body file, merging them
// into a full Document.
func (s *Store) GetDocument(id string) (Document, error) {
	meta, err := s.getMetadata(id)
	if err != nil {
		return Document{}, err
	}
	body, err := os.ReadFile(s.bodyPath(id))
	if err != nil {
		return Document{}, apperr.Memory("docstore: read body", err)
	}
	return Document{
		ID: meta.DocID, Title: meta.Title, Source: meta.Source, Content: string(body),
		ContentHash: meta.ContentHash, CreatedAt: meta.CreatedAt, UpdatedAt: meta.UpdatedAt,
		Metadata: meta.Metadata,
	}, nil
}

func (s *Store) getMetadata(id string) (DocMetadata, error) {
	var meta DocMetadata
	var metaJSON string
	err := s.db.QueryRow(`SELECT doc_id, title, source, content_hash, created_at, updated_at, metadata
		FROM doc_metadata WHERE doc_id = ?`, id).
		Scan(&meta.DocID, &meta.Title, &meta.Source, &meta.ContentHash, &meta.CreatedAt, &meta.UpdatedAt, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return meta, apperr.Resource("docstore: get document", fmt.Errorf("document not found: %s", id))
	}
	if err != nil {
		return meta, apperr.Memory("docstore: query metadata", err)
	}
	_ = json.Unmarshal([]byte(metaJSON), &meta.Metadata)
	return meta, nil
}

// ListDocuments lists metadata rows ordered by created_at DESC.
func (s *Store) ListDocuments() ([]DocMetadata, error) {
	rows, err := s.db.Query(`SELECT doc_id, title, source, content_hash, created_at, updated_at, metadata
		FROM doc_metadata ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperr.Memory("docstore: list documents", err)
	}
	defer rows.Close()

	var out []DocMetadata
	for rows.Next() {
		var meta DocMetadata
		var metaJSON string
		if err := rows.Scan(&meta.DocID, &meta.Title, &meta.Source, &meta.ContentHash, &meta.CreatedAt, &meta.UpdatedAt, &metaJSON); err != nil {
			return nil, apperr.Memory("docstore: scan document", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &meta.Metadata)
		out = append(out, meta)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document's chunks and metadata row in one
// transaction, then removes its body file.
func (s *Store) DeleteDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Memory("docstore: begin delete", err)
	}
	if _, err := tx.Exec(`DELETE FROM chunks WHERE doc_id = ?`, id); err != nil {
		tx.Rollback()
		return apperr.Memory("docstore: delete chunks", err)
	}
	if _, err := tx.Exec(`DELETE FROM doc_metadata WHERE doc_id = ?`, id); err != nil {
		tx.Rollback()
		return apperr.Memory("docstore: delete metadata", err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Memory("docstore: commit delete", err)
	}
	if err := os.Remove(s.bodyPath(id)); err != nil && !os.IsNotExist(err) {
		return apperr.Memory("docstore: remove body", err)
	}
	return nil
}

// IndexChunks replaces the indexed chunks for every doc_id present in
// the input set within a single transaction.
func (s *Store) IndexChunks(chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Memory("docstore: begin index", err)
	}

	docIDs := map[string]bool{}
	for _, c := range chunks {
		docIDs[c.DocID] = true
	}
	for docID := range docIDs {
		if _, err := tx.Exec(`DELETE FROM chunks WHERE doc_id = ?`, docID); err != nil {
			tx.Rollback()
			return apperr.Memory("docstore: clear existing chunks", err)
		}
	}
	for _, c := range chunks {
		metaJSON, _ := json.Marshal(c.Metadata)
		if _, err := tx.Exec(`INSERT INTO chunks (id, doc_id, text, position, metadata) VALUES (?, ?, ?, ?, ?)`,
			c.ID, c.DocID, c.Text, c.Position, string(metaJSON)); err != nil {
			tx.Rollback()
			return apperr.Memory("docstore: insert chunk", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperr.Memory("docstore: commit index", err)
	}
	return nil
}

// AllChunks returns every indexed chunk, for offline KG extraction.
func (s *Store) AllChunks() ([]Chunk, error) {
	rows, err := s.db.Query(`SELECT id, doc_id, text, position, metadata FROM chunks`)
	if err != nil {
		return nil, apperr.Memory("docstore: list chunks", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetChunksByIDs fetches specific chunks by id, in no particular
// order; callers re-order using the ids they already ranked by.
func (s *Store) GetChunksByIDs(ids []string) (map[string]Chunk, error) {
	out := make(map[string]Chunk, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, doc_id, text, position, metadata FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, apperr.Memory("docstore: get chunks by id", err)
	}
	defer rows.Close()
	chunks, err := scanChunks(rows)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		out[c.ID] = c
	}
	return out, nil
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var out []Chunk
	for rows.Next() {
		var c Chunk
		var metaJSON string
		if err := rows.Scan(&c.ID, &c.DocID, &c.Text, &c.Position, &metaJSON); err != nil {
			return nil, apperr.Memory("docstore: scan chunk", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchByText runs an FTS5 query, scoring by negated BM25 so higher
// is better. A malformed user query (FTS syntax error) yields an
// empty result rather than propagating the error.
func (s *Store) SearchByText(query string, topK int) ([]SearchResult, error) {
	escaped := EscapeFTS5Query(query)
	if escaped == "" {
		return nil, nil
	}

	rows, err := s.db.Query(`
		SELECT c.id, c.doc_id, c.text, c.position, c.metadata, -bm25(chunks) AS score
		FROM chunks c
		WHERE chunks MATCH ?
		ORDER BY score DESC
		LIMIT ?`, escaped, topK)
	if err != nil {
		// FTS5 raises SQL errors for malformed MATCH syntax; treat that
		// as "no results" rather than a hard failure of the request.
		return nil, nil
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var c Chunk
		var metaJSON string
		var score float32
		if err := rows.Scan(&c.ID, &c.DocID, &c.Text, &c.Position, &metaJSON, &score); err != nil {
			return nil, apperr.Memory("docstore: scan search result", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &c.Metadata)

		meta, err := s.getMetadata(c.DocID)
		if err != nil {
			continue
		}
		results = append(results, SearchResult{Chunk: c, Score: score, DocMetadata: meta})
	}
	return results, rows.Err()
}

// IndexUnindexed chunks and indexes every doc_metadata row that has no
// rows yet in chunks, using the default chunk size.
func (s *Store) IndexUnindexed(defaultChunkSize int) (int, error) {
	rows, err := s.db.Query(`
		SELECT dm.doc_id FROM doc_metadata dm
		LEFT JOIN chunks c ON c.doc_id = dm.doc_id
		WHERE c.doc_id IS NULL
		GROUP BY dm.doc_id`)
	if err != nil {
		return 0, apperr.Memory("docstore: find unindexed", err)
	}
	var docIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, apperr.Memory("docstore: scan unindexed", err)
		}
		docIDs = append(docIDs, id)
	}
	rows.Close()

	indexed := 0
	for _, id := range docIDs {
		doc, err := s.GetDocument(id)
		if err != nil {
			continue
		}
		chunks := ChunkDocument(doc.ID, doc.Content, defaultChunkSize)
		if len(chunks) == 0 {
			continue
		}
		if err := s.IndexChunks(chunks); err != nil {
			continue
		}
		indexed++
	}
	return indexed, nil
}

// CleanupOrphans removes any docs/*.txt file whose stem doc_id has no
// corresponding doc_metadata row.
func (s *Store) CleanupOrphans() (int, error) {
	entries, err := os.ReadDir(s.docsDir)
	if err != nil {
		return 0, apperr.Memory("docstore: list docs dir", err)
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		docID := strings.TrimSuffix(entry.Name(), ".txt")
		var exists string
		err := s.db.QueryRow(`SELECT doc_id FROM doc_metadata WHERE doc_id = ?`, docID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			if rmErr := os.Remove(filepath.Join(s.docsDir, entry.Name())); rmErr == nil {
				removed++
			}
			continue
		}
		if err != nil {
			return removed, apperr.Memory("docstore: check orphan", err)
		}
	}
	return removed, nil
}
