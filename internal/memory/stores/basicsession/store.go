// Package basicsession implements the "basic_session" store: a
// cap-bounded insertion-ordered key-value file and a cap-bounded
// Markdown transcript, both serialized as a whole-file read-modify-
// write per operation.
package basicsession

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/araliya/araliya-bot/internal/apperr"
)

const (
	DefaultKVCap         = 200
	DefaultTranscriptCap = 500

	kvFilename         = "kv.json"
	transcriptFilename = "transcript.md"
)

// Store implements the basic_session contract. kv.json on disk uses
// the {cap, order, values} shape rather than a list of records:
// storing values as a map keyed directly by name makes kv_set's
// "remove existing, then re-append" step an O(1) map operation
// instead of a linear scan.
type Store struct {
	KVCap         int
	TranscriptCap int
}

// New creates a Store with the given caps, or the defaults when zero.
func New(kvCap, transcriptCap int) *Store {
	if kvCap <= 0 {
		kvCap = DefaultKVCap
	}
	if transcriptCap <= 0 {
		transcriptCap = DefaultTranscriptCap
	}
	return &Store{KVCap: kvCap, TranscriptCap: transcriptCap}
}

func (s *Store) StoreType() string { return "basic_session" }

// kvFile is the on-disk shape of kv.json.
type kvFile struct {
	Cap    int               `json:"cap"`
	Order  []string          `json:"order"`
	Values map[string]string `json:"values"`
}

func kvPath(sessionDir string) string { return filepath.Join(sessionDir, kvFilename) }
func transcriptPath(sessionDir string) string {
	return filepath.Join(sessionDir, transcriptFilename)
}

// Init creates empty kv.json and transcript.md for a new session.
func (s *Store) Init(sessionDir string) error {
	kv := kvFile{Cap: s.KVCap, Order: []string{}, Values: map[string]string{}}
	if err := writeKV(sessionDir, kv); err != nil {
		return err
	}
	if err := os.WriteFile(transcriptPath(sessionDir), nil, 0o644); err != nil {
		return apperr.Memory("init transcript", err)
	}
	return nil
}

func readKV(sessionDir string) (kvFile, error) {
	var kv kvFile
	data, err := os.ReadFile(kvPath(sessionDir))
	if err != nil {
		return kv, apperr.Memory("read kv.json", err)
	}
	if err := json.Unmarshal(data, &kv); err != nil {
		return kv, apperr.Memory("parse kv.json", err)
	}
	if kv.Values == nil {
		kv.Values = map[string]string{}
	}
	return kv, nil
}

func writeKV(sessionDir string, kv kvFile) error {
	data, err := json.MarshalIndent(kv, "", "  ")
	if err != nil {
		return apperr.Memory("encode kv.json", err)
	}
	if err := os.WriteFile(kvPath(sessionDir), data, 0o644); err != nil {
		return apperr.Memory("write kv.json", err)
	}
	return nil
}

// KVGet returns the value for key, or ok=false if absent.
func (s *Store) KVGet(sessionDir, key string) (string, bool, error) {
	kv, err := readKV(sessionDir)
	if err != nil {
		return "", false, err
	}
	v, ok := kv.Values[key]
	return v, ok, nil
}

// KVSet upserts key, moving it to the end of insertion order, then
// evicts from the front until the cap is satisfied.
func (s *Store) KVSet(sessionDir, key, value string) error {
	kv, err := readKV(sessionDir)
	if err != nil {
		return err
	}
	if _, existed := kv.Values[key]; existed {
		kv.Order = removeString(kv.Order, key)
	}
	kv.Order = append(kv.Order, key)
	kv.Values[key] = value

	for len(kv.Order) > kv.Cap {
		oldest := kv.Order[0]
		kv.Order = kv.Order[1:]
		delete(kv.Values, oldest)
	}
	return writeKV(sessionDir, kv)
}

// KVDelete removes key if present.
func (s *Store) KVDelete(sessionDir, key string) error {
	kv, err := readKV(sessionDir)
	if err != nil {
		return err
	}
	if _, ok := kv.Values[key]; !ok {
		return nil
	}
	delete(kv.Values, key)
	kv.Order = removeString(kv.Order, key)
	return writeKV(sessionDir, kv)
}

// KVDoc materializes the full values map as a flat document
// collection, for introspection endpoints that want "everything".
func (s *Store) KVDoc(sessionDir string) (map[string]string, error) {
	kv, err := readKV(sessionDir)
	if err != nil {
		return nil, err
	}
	return kv.Values, nil
}

func removeString(order []string, key string) []string {
	out := order[:0:0]
	for _, k := range order {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// TranscriptAppend appends one entry, FIFO-trimming to the cap.
func (s *Store) TranscriptAppend(sessionDir, role, content string) error {
	entries, err := s.readTranscript(sessionDir)
	if err != nil {
		return err
	}
	entries = append(entries, TranscriptEntry{
		Role:      role,
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Content:   content,
	})
	for len(entries) > s.TranscriptCap {
		entries = entries[1:]
	}
	return s.writeTranscript(sessionDir, entries)
}

// TranscriptReadLast returns up to n most recent entries, oldest
// first.
func (s *Store) TranscriptReadLast(sessionDir string, n int) ([]TranscriptEntry, error) {
	entries, err := s.readTranscript(sessionDir)
	if err != nil {
		return nil, err
	}
	if n >= len(entries) || n <= 0 {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// TranscriptEntry mirrors memory.TranscriptEntry without importing
// the parent package, to keep store packages leaf-level.
type TranscriptEntry struct {
	Role      string
	Timestamp string
	Content   string
}

func (s *Store) readTranscript(sessionDir string) ([]TranscriptEntry, error) {
	data, err := os.ReadFile(transcriptPath(sessionDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Memory("read transcript.md", err)
	}
	return parseTranscript(string(data)), nil
}

func (s *Store) writeTranscript(sessionDir string, entries []TranscriptEntry) error {
	data := []byte(serialiseTranscript(entries))
	if err := os.WriteFile(transcriptPath(sessionDir), data, 0o644); err != nil {
		return apperr.Memory("write transcript.md", err)
	}
	return nil
}

// parseTranscript splits on "### " header lines, each of the form
// "{role} — {timestamp}", accumulating body lines until the next
// header or end of input.
func parseTranscript(text string) []TranscriptEntry {
	var entries []TranscriptEntry
	var role, ts string
	var body []string
	has := false

	flush := func() {
		if !has {
			return
		}
		entries = append(entries, TranscriptEntry{
			Role:      role,
			Timestamp: ts,
			Content:   strings.TrimSpace(strings.Join(body, "\n")),
		})
	}

	for _, line := range strings.Split(text, "\n") {
		if header, ok := strings.CutPrefix(line, "### "); ok {
			flush()
			if r, t, found := strings.Cut(header, " — "); found {
				role, ts = strings.TrimSpace(r), strings.TrimSpace(t)
			} else {
				role, ts = header, ""
			}
			body = nil
			has = true
			continue
		}
		if has {
			body = append(body, line)
		}
	}
	flush()
	return entries
}

func serialiseTranscript(entries []TranscriptEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "### %s — %s\n\n%s\n\n", e.Role, e.Timestamp, e.Content)
	}
	return b.String()
}
