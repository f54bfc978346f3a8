package memory

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/araliya/araliya-bot/internal/apperr"
	"github.com/araliya/araliya-bot/internal/memory/stores/basicsession"
)

// Handle is a lightweight, reusable reference to one session's
// storage. Multiple Handles may exist for the same session_id; each
// store operation reads-then-writes its backing file independently,
// so callers sharing one session concurrently should serialize
// through their own per-session lock, per the concurrency model.
type Handle struct {
	sys        *System
	sessionID  string
	dir        string
	storeTypes []StoreType
}

// SessionID returns the id this handle was created or loaded with.
func (h *Handle) SessionID() string { return h.sessionID }

// StoreTypes returns the stores this session declared.
func (h *Handle) StoreTypes() []StoreType { return h.storeTypes }

func (h *Handle) hasStore(t StoreType) bool {
	for _, st := range h.storeTypes {
		if st == t {
			return true
		}
	}
	return false
}

var errUnsupportedStore = func(op string, store StoreType) error {
	return &unsupportedOpError{op: op, store: store}
}

type unsupportedOpError struct {
	op    string
	store StoreType
}

func (e *unsupportedOpError) Error() string {
	return "unsupported operation " + e.op + " on store " + string(e.store)
}

// KVGet reads a scalar value from the basic_session KV store.
func (h *Handle) KVGet(key string) (string, bool, error) {
	if !h.hasStore(StoreBasicSession) {
		return "", false, apperr.Memory("kv_get", errUnsupportedStore("kv_get", StoreBasicSession))
	}
	return basicsession.New(0, 0).KVGet(h.dir, key)
}

// KVSet writes a scalar value to the basic_session KV store.
func (h *Handle) KVSet(key, value string) error {
	if !h.hasStore(StoreBasicSession) {
		return apperr.Memory("kv_set", errUnsupportedStore("kv_set", StoreBasicSession))
	}
	return basicsession.New(0, 0).KVSet(h.dir, key, value)
}

// KVDelete removes a key from the basic_session KV store.
func (h *Handle) KVDelete(key string) error {
	if !h.hasStore(StoreBasicSession) {
		return apperr.Memory("kv_delete", errUnsupportedStore("kv_delete", StoreBasicSession))
	}
	return basicsession.New(0, 0).KVDelete(h.dir, key)
}

// KVDoc materializes the full KV map, e.g. for "agents/sessions/memory".
func (h *Handle) KVDoc() (map[string]string, error) {
	if !h.hasStore(StoreBasicSession) {
		return nil, apperr.Memory("kv_doc", errUnsupportedStore("kv_doc", StoreBasicSession))
	}
	return basicsession.New(0, 0).KVDoc(h.dir)
}

// TranscriptAppend appends one transcript turn.
func (h *Handle) TranscriptAppend(role, content string) error {
	if !h.hasStore(StoreBasicSession) {
		return apperr.Memory("transcript_append", errUnsupportedStore("transcript_append", StoreBasicSession))
	}
	return basicsession.New(0, 0).TranscriptAppend(h.dir, role, content)
}

// TranscriptReadLast returns the last n transcript entries.
func (h *Handle) TranscriptReadLast(n int) ([]TranscriptEntry, error) {
	if !h.hasStore(StoreBasicSession) {
		return nil, apperr.Memory("transcript_read_last", errUnsupportedStore("transcript_read_last", StoreBasicSession))
	}
	raw, err := basicsession.New(0, 0).TranscriptReadLast(h.dir, n)
	if err != nil {
		return nil, err
	}
	out := make([]TranscriptEntry, len(raw))
	for i, e := range raw {
		out[i] = TranscriptEntry{Role: e.Role, Timestamp: e.Timestamp, Content: e.Content}
	}
	return out, nil
}

// ListFiles lists the files directly under the session directory, for
// "agents/sessions/files" introspection.
func (h *Handle) ListFiles() ([]string, error) {
	entries, err := os.ReadDir(h.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Memory("list session files", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

const spendFilename = "spend.json"

func (h *Handle) spendPath() string { return filepath.Join(h.dir, spendFilename) }

// ReadSpend reads the session's spend ledger, defaulting to zero
// values if it has never been written.
func (h *Handle) ReadSpend() (SpendLedger, error) {
	var ledger SpendLedger
	data, err := os.ReadFile(h.spendPath())
	if err != nil {
		if os.IsNotExist(err) {
			return ledger, nil
		}
		return ledger, apperr.Memory("read spend.json", err)
	}
	if err := json.Unmarshal(data, &ledger); err != nil {
		return ledger, apperr.Memory("parse spend.json", err)
	}
	return ledger, nil
}

// AccumulateSpend performs the atomic read-modify-write of spend.json:
// read the current ledger (defaulting to zero), add usage at the
// given rates, and write the result back.
func (h *Handle) AccumulateSpend(usage Usage, rates ModelRates) (SpendLedger, error) {
	ledger, err := h.ReadSpend()
	if err != nil {
		return ledger, err
	}
	ledger.Add(usage, rates)

	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return ledger, apperr.Memory("encode spend.json", err)
	}
	if err := os.WriteFile(h.spendPath(), data, 0o644); err != nil {
		return ledger, apperr.Memory("write spend.json", err)
	}
	return ledger, nil
}
