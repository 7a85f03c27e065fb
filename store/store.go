// Package store provides SQLite persistence for the knowledge engine. Each
// agent gets its own database file; a Registry hands out one Store per
// agent and owns their lifecycles.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Store wraps one agent's SQLite database.
type Store struct {
	db          *sql.DB
	hasGraphFTS bool
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema. The graph FTS mirror is created best-effort: on
// SQLite builds without FTS5 the store still opens, and HasGraphFTS
// reports false for the lifetime of the handle.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL()); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Capability is decided once, here. Queries never re-probe.
	hasFTS := true
	if _, err := db.Exec(graphFTSSQL); err != nil {
		hasFTS = false
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	return &Store{db: db, hasGraphFTS: hasFTS}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for collaborators that share this database,
// such as the memory index.
func (s *Store) DB() *sql.DB {
	return s.db
}

// HasGraphFTS reports whether the graph FTS mirror is available.
func (s *Store) HasGraphFTS() bool {
	return s.hasGraphFTS
}

// inTx runs fn inside a transaction, committing on success and rolling
// back on error.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// HashText returns the lowercase hex SHA-256 of s. It is the identity
// function for bases, triples, and graph runs.
func HashText(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// repeatPlaceholders returns "?, ?, ..., ?" with n placeholders.
func repeatPlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// escapeLike escapes LIKE wildcards with backslash.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// nullStr maps "" to NULL for optional TEXT columns.
func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Registry hands out one Store per agent, opening lazily and caching the
// handle. The application root owns the registry; everything else borrows
// stores from it.
type Registry struct {
	mu       sync.Mutex
	stateDir string
	stores   map[string]*Store
}

// NewRegistry creates a registry rooted at stateDir. Agent databases live
// at <stateDir>/agents/<agentID>/knowledge.db.
func NewRegistry(stateDir string) *Registry {
	return &Registry{
		stateDir: stateDir,
		stores:   make(map[string]*Store),
	}
}

// AgentDir returns the state directory for one agent. Document blobs and
// triple snapshots are stored beneath it.
func (r *Registry) AgentDir(agentID string) string {
	return filepath.Join(r.stateDir, "agents", agentID)
}

// ForAgent returns the store for agentID, opening it on first use.
func (r *Registry) ForAgent(agentID string) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.stores[agentID]; ok {
		return st, nil
	}
	st, err := New(filepath.Join(r.AgentDir(agentID), "knowledge.db"))
	if err != nil {
		return nil, fmt.Errorf("opening store for agent %s: %w", agentID, err)
	}
	r.stores[agentID] = st
	return st, nil
}

// Close closes every open store. The registry is unusable afterwards.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, st := range r.stores {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(r.stores, id)
	}
	return firstErr
}
