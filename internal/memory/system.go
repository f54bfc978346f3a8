package memory

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/araliya/araliya-bot/internal/apperr"
	"github.com/araliya/araliya-bot/internal/memory/stores/basicsession"
	"github.com/araliya/araliya-bot/internal/memory/stores/tmp"
)

const sessionsIndexFilename = "sessions.json"

// System owns one sessions.json index and the sessions/ directory it
// describes. A bot has one root System under its identity directory;
// each agent additionally gets its own System rooted under its own
// identity subdirectory for agent-scoped sessions — both are plain
// instances of this same type.
type System struct {
	mu   sync.Mutex
	root string // directory containing sessions.json and sessions/

	basic *basicsession.Store
	tmp   *tmp.Store
}

// NewSystem creates a System rooted at root, creating the directory
// and an empty index if they don't yet exist.
func NewSystem(root string) (*System, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperr.Memory("create memory root", err)
	}
	sys := &System{
		root:  root,
		basic: basicsession.New(0, 0),
		tmp:   tmp.New(),
	}
	if _, err := os.Stat(sys.indexPath()); os.IsNotExist(err) {
		if err := sys.writeIndex(map[string]SessionMeta{}); err != nil {
			return nil, err
		}
	}
	return sys, nil
}

func (s *System) indexPath() string { return filepath.Join(s.root, sessionsIndexFilename) }

func (s *System) sessionDir(id string) string { return filepath.Join(s.root, "sessions", id) }

func (s *System) readIndex() (map[string]SessionMeta, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]SessionMeta{}, nil
		}
		return nil, apperr.Memory("read sessions.json", err)
	}
	var idx map[string]SessionMeta
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, apperr.Memory("parse sessions.json", err)
	}
	return idx, nil
}

func (s *System) writeIndex(idx map[string]SessionMeta) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return apperr.Memory("encode sessions.json", err)
	}
	if err := os.WriteFile(s.indexPath(), data, 0o644); err != nil {
		return apperr.Memory("write sessions.json", err)
	}
	return nil
}

// Create allocates a fresh UUIDv7 session with the given store types,
// initializes each declared store, and records it in the index.
func (s *System) Create(storeTypes []StoreType) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := uuid.NewV7()
	if err != nil {
		return nil, apperr.Memory("generate session id", err)
	}
	sessionID := id.String()

	onlyTmp := true
	for _, st := range storeTypes {
		if st != StoreTmp {
			onlyTmp = false
			break
		}
	}

	dir := s.sessionDir(sessionID)
	if !onlyTmp {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperr.Memory("create session dir", err)
		}
	}

	for _, st := range storeTypes {
		switch st {
		case StoreBasicSession:
			if err := s.basic.Init(dir); err != nil {
				return nil, err
			}
		case StoreTmp:
			if err := s.tmp.Init(sessionID); err != nil {
				return nil, err
			}
		case StoreAgent, StoreDocstore, StoreKGDocstore:
			// Initialized by the agent/document-store layer, which owns
			// its own sub-root rather than a plain session directory.
		}
	}

	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	idx[sessionID] = SessionMeta{
		SessionID:  sessionID,
		CreatedAt:  nowISO8601(),
		StoreTypes: storeTypes,
	}
	if err := s.writeIndex(idx); err != nil {
		return nil, err
	}

	return &Handle{sys: s, sessionID: sessionID, dir: dir, storeTypes: storeTypes}, nil
}

// Load reconstructs a Handle for an existing session, failing if it
// is absent from the index or its session directory is missing from
// disk.
func (s *System) Load(sessionID, lastAgent string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	meta, ok := idx[sessionID]
	if !ok {
		return nil, apperr.Resource("load session", errSessionNotFound(sessionID))
	}
	dir := s.sessionDir(sessionID)
	if _, err := os.Stat(dir); err != nil {
		return nil, apperr.Resource("load session", errSessionNotFound(sessionID))
	}
	if lastAgent != "" && meta.LastAgent != lastAgent {
		meta.LastAgent = lastAgent
		idx[sessionID] = meta
		if err := s.writeIndex(idx); err != nil {
			return nil, err
		}
	}

	return &Handle{sys: s, sessionID: sessionID, dir: dir, storeTypes: meta.StoreTypes}, nil
}

// List returns every session in the index.
func (s *System) List() ([]SessionMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.readIndex()
	if err != nil {
		return nil, err
	}
	out := make([]SessionMeta, 0, len(idx))
	for _, meta := range idx {
		out = append(out, meta)
	}
	return out, nil
}

type sessionNotFoundError string

func (e sessionNotFoundError) Error() string { return "session not found: " + string(e) }

func errSessionNotFound(id string) error { return sessionNotFoundError(id) }
