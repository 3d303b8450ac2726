// Package store is the durable record layer for agent lifecycle state.
// It owns a single local SQLite database holding one row per agent plus
// an append-only output log, and nothing else: no liveness probing, no
// backend calls, no business logic.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	// Schema v1: agents + agent_outputs.
	schemaVersionV1  = 1
	schemaChecksumV1 = "warden-v1-agents-outputs"

	// Schema v2: adds agents.backend (two-backend support).
	schemaVersionV2  = 2
	schemaChecksumV2 = "warden-v2-backend-kind"

	schemaVersionLatest  = schemaVersionV2
	schemaChecksumLatest = schemaChecksumV2
)

// Status is the lifecycle state stored on an agent record.
type Status string

const (
	StatusSpawning Status = "spawning"
	StatusRunning  Status = "running"
	StatusStopped  Status = "stopped"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusSpawning, StatusRunning, StatusStopped, StatusError:
		return true
	}
	return false
}

// BackendKind selects which runtime implementation owns an agent's
// runtime reference. Immutable after creation.
type BackendKind string

const (
	BackendSession   BackendKind = "session"
	BackendContainer BackendKind = "container"
)

// Valid reports whether k is a known backend kind.
func (k BackendKind) Valid() bool {
	return k == BackendSession || k == BackendContainer
}

// AgentRecord is one row in the agents table.
type AgentRecord struct {
	ID         string      `json:"id"`
	RepoURL    string      `json:"repo_url"`
	WorkingDir string      `json:"working_dir"`
	RuntimeRef string      `json:"runtime_ref,omitempty"` // pid or container id, empty until the unit starts
	Status     Status      `json:"status"`
	Backend    BackendKind `json:"backend"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// OutputRecord is one row in the agent_outputs log.
type OutputRecord struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the SQLite database. All methods are synchronous; each
// statement is atomic but the store offers no cross-call transactions.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns ~/.warden/warden.db, falling back to the
// current directory when the home directory cannot be resolved.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".warden", "warden.db")
}

// Open opens (creating if necessary) the database at path and brings
// the schema up to date. An existing older database is migrated in
// place without destroying rows.
func Open(path string) (*Store, error) {
	if path == "" {
		path = DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=FULL;",
	}
	for _, q := range pragmas {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&maxVersion); err != nil {
		return fmt.Errorf("read migration max version: %w", err)
	}
	if maxVersion > schemaVersionLatest {
		return fmt.Errorf("db schema version %d is newer than supported %d", maxVersion, schemaVersionLatest)
	}
	if maxVersion == schemaVersionV1 {
		var checksum string
		if err := tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = ?;`, schemaVersionV1).Scan(&checksum); err != nil {
			return fmt.Errorf("read schema checksum: %w", err)
		}
		if checksum != schemaChecksumV1 {
			return fmt.Errorf("schema checksum mismatch for version %d: got %q want %q", schemaVersionV1, checksum, schemaChecksumV1)
		}
	}

	tableStatements := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			repo_url TEXT NOT NULL,
			working_dir TEXT NOT NULL,
			runtime_ref TEXT,
			status TEXT NOT NULL CHECK(status IN ('spawning', 'running', 'stopped', 'error')),
			backend TEXT NOT NULL DEFAULT 'session' CHECK(backend IN ('session', 'container')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS agent_outputs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, stmt := range tableStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	if err := applyBackfills(ctx, tx); err != nil {
		return err
	}

	indexStatements := []string{
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_agents_working_dir ON agents(working_dir);`,
		`CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);`,
		`CREATE INDEX IF NOT EXISTS idx_outputs_agent ON agent_outputs(agent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_outputs_created ON agent_outputs(created_at);`,
	}
	for _, stmt := range indexStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	if maxVersion < schemaVersionLatest {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO schema_migrations (version, checksum) VALUES (?, ?);
		`, schemaVersionLatest, schemaChecksumLatest); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

// applyBackfills adds columns that older databases predate. A failed
// ALTER TABLE for an already-present column is expected and ignored,
// so opening any prior schema is non-destructive.
func applyBackfills(ctx context.Context, tx *sql.Tx) error {
	backfills := []string{
		`ALTER TABLE agents ADD COLUMN backend TEXT NOT NULL DEFAULT 'session';`,
	}
	for _, stmt := range backfills {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("apply backfill %q: %w", stmt, err)
		}
	}
	return nil
}
