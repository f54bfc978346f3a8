package memory

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/araliya/araliya-bot/internal/memory/stores/docstore"
	"github.com/araliya/araliya-bot/internal/memory/stores/kgdocstore"
)

// DefaultChunkSize is the default chunk size background indexing uses
// when a document has never been chunked.
const DefaultChunkSize = 2048

// indexNowCmd asks the manager to run one maintenance pass against a
// single agent identity directory immediately, outside the 24h timer.
type indexNowCmd struct {
	agentIdentityDir string
}

// DocstoreManager is the single background task, feature-gated at
// construction, that keeps every registered agent's document store
// (plain and KG-augmented) indexed and free of orphaned body files.
// It never touches a store outside a maintenance pass: the SQL handle
// is opened fresh each time, matching the store's own
// open-per-operation concurrency model.
type DocstoreManager struct {
	logger *slog.Logger
	cmds   chan indexNowCmd
	roots  func() []string // identity dirs of agents with a docstore/kg_docstore
}

// NewDocstoreManager creates a manager that maintains every identity
// directory roots() returns at call time (so agents registered after
// startup are picked up by the next pass).
func NewDocstoreManager(logger *slog.Logger, roots func() []string) *DocstoreManager {
	return &DocstoreManager{
		logger: logger,
		cmds:   make(chan indexNowCmd, 16),
		roots:  roots,
	}
}

// IndexNow requests an out-of-band maintenance pass for one agent
// identity directory. Non-blocking: if the command buffer is full the
// request is dropped and logged, matching the background-task error
// policy (never propagate upward, never block the caller).
func (m *DocstoreManager) IndexNow(agentIdentityDir string) {
	select {
	case m.cmds <- indexNowCmd{agentIdentityDir: agentIdentityDir}:
	default:
		m.logger.Warn("docstore manager command buffer full, dropping IndexNow", "dir", agentIdentityDir)
	}
}

// Run is the single owning loop: a 24h ticker drives a full pass over
// every registered root, and IndexNow requests drive an immediate
// pass over one. Documents that fail to index are skipped, store-level
// failures are logged, and nothing here ever aborts the loop.
func (m *DocstoreManager) Run(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, dir := range m.roots() {
				m.maintain(dir)
			}
		case cmd := <-m.cmds:
			m.maintain(cmd.agentIdentityDir)
		}
	}
}

// maintain indexes unindexed documents and cleans up orphaned body
// files for both the plain docstore and the kg_docstore rooted under
// dir, if either is present. It never returns an error: failures on
// one agent's store are logged and the pass continues.
func (m *DocstoreManager) maintain(dir string) {
	if ds, err := docstore.Open(filepath.Join(dir, "docstore")); err == nil {
		m.runPass(dir, "docstore", ds)
		ds.Close()
	} else {
		m.logger.Warn("docstore manager: open docstore failed", "dir", dir, "error", err)
	}

	if kg, err := kgdocstore.Open(dir); err == nil {
		m.runPass(dir, "kg_docstore", kg.Store)
		kg.Close()
	} else {
		m.logger.Warn("docstore manager: open kg_docstore failed", "dir", dir, "error", err)
	}
}

// docstorePasses is implemented by *docstore.Store (and promoted onto
// *kgdocstore.Store via embedding), kept narrow so maintain can run
// the identical pass against either.
type docstorePasses interface {
	IndexUnindexed(defaultChunkSize int) (int, error)
	CleanupOrphans() (int, error)
}

func (m *DocstoreManager) runPass(dir, label string, store docstorePasses) {
	indexed, err := store.IndexUnindexed(DefaultChunkSize)
	if err != nil {
		m.logger.Warn("docstore manager: index unindexed failed", "dir", dir, "store", label, "error", err)
	} else if indexed > 0 {
		m.logger.Info("docstore manager: indexed documents", "dir", dir, "store", label, "count", indexed)
	}

	removed, err := store.CleanupOrphans()
	if err != nil {
		m.logger.Warn("docstore manager: cleanup orphans failed", "dir", dir, "store", label, "error", err)
	} else if removed > 0 {
		m.logger.Info("docstore manager: removed orphaned documents", "dir", dir, "store", label, "count", removed)
	}
}
