// Package docstore implements the document store: SQLite-backed
// metadata and full-text search over chunks, with raw document bodies
// kept as individual files so the SQL row only ever carries metadata.
package docstore

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/araliya/araliya-bot/internal/apperr"
)

// DBFilename is the SQLite database file name used by every document
// store (plain or KG-augmented).
const DBFilename = "chunks.db"

// SchemaVersion is the value stored in PRAGMA user_version. Bump this
// and add a migration path in OpenConn when the DDL changes.
const SchemaVersion = 1

// Document is a document as stored and retrieved by the store.
type Document struct {
	ID          string
	Title       string
	Source      string
	Content     string
	ContentHash string
	CreatedAt   string
	UpdatedAt   string
	Metadata    map[string]string
}

// DocMetadata is the lightweight descriptor stored in doc_metadata
// (no content), returned by ListDocuments and embedded in SearchResult.
type DocMetadata struct {
	DocID       string
	Title       string
	Source      string
	ContentHash string
	CreatedAt   string
	UpdatedAt   string
	Metadata    map[string]string
}

// Chunk is a single text chunk produced by the Markdown splitter.
type Chunk struct {
	ID       string
	DocID    string
	Text     string
	Position int
	Metadata map[string]string
}

// SearchResult is a single FTS match.
type SearchResult struct {
	Chunk       Chunk
	Score       float32
	DocMetadata DocMetadata
}

// InitSchema executes the v1 DDL on a freshly opened connection. It
// is safe to call on every open: CREATE TABLE/VIRTUAL TABLE IF NOT
// EXISTS makes it idempotent.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS doc_metadata (
			doc_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			source TEXT NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			metadata TEXT NOT NULL
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS chunks USING fts5(
			id UNINDEXED,
			doc_id UNINDEXED,
			text,
			position UNINDEXED,
			metadata UNINDEXED
		);
	`)
	if err != nil {
		return apperr.Memory("docstore: initialize schema", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return apperr.Memory("docstore: set user_version", err)
	}
	return nil
}

// CheckSchemaVersion fails if the database's stored user_version
// doesn't match SchemaVersion (and isn't the pristine 0 of a brand
// new file, which InitSchema is about to stamp).
func CheckSchemaVersion(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return apperr.Memory("docstore: read user_version", err)
	}
	if version != 0 && version != SchemaVersion {
		return apperr.Memory("docstore: open", fmt.Errorf("unsupported schema version %d (want %d)", version, SchemaVersion))
	}
	return nil
}

// OpenConn opens db_path and applies the recommended pragmas: WAL
// journaling (concurrent readers alongside a writer), foreign keys
// on, and a 5s busy timeout.
func OpenConn(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperr.Memory("docstore: open "+dbPath, err)
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, apperr.Memory("docstore: "+p, err)
		}
	}
	if err := CheckSchemaVersion(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of content, used
// as the dedup fingerprint.
func SHA256Hex(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// NowISO8601 returns the current UTC time as an RFC3339 string with
// second precision, e.g. "2025-04-01T12:00:00Z".
func NowISO8601() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// EscapeFTS5Query token-quotes a user query for safe use in an FTS5
// MATCH expression: alphanumeric tokens pass through unchanged; any
// token containing a non-alphanumeric character is wrapped in double
// quotes with internal quotes doubled.
func EscapeFTS5Query(query string) string {
	fields := strings.Fields(query)
	out := make([]string, len(fields))
	for i, tok := range fields {
		if isAllAlphanumeric(tok) {
			out[i] = tok
			continue
		}
		escaped := strings.ReplaceAll(tok, `"`, `""`)
		out[i] = `"` + escaped + `"`
	}
	return strings.Join(out, " ")
}

func isAllAlphanumeric(s string) bool {
	for _, r := range s {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return len(s) > 0
}
