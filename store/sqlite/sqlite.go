/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  One database holds the stock movements, the catalog, allocation records,
  lineages, the audit trail, the vendor outbox and the user directory, so a
  whole allocation commits or rolls back as one unit.

INTERFACES IMPLEMENTED:
  allocation.TxStore:     Movements + catalog + records + lineages + audit
  allocation.OutboxStore: Vendor notifications
  directory.Store:        User read model

APPEND-ONLY ENFORCEMENT:
  movements, allocations and audit_log are only ever INSERTed. The lineage
  row is the single mutable record (to_vendor, lr_no).

KEY TABLES:
  movements:            Immutable stock ledger, balance = SUM per (owner, item)
  items:                Catalog
  allocations:          One row per allocation event, shares as JSON
  lineages:             One row per rootId
  audit_log:            Who changed what on a lineage
  vendor_notifications: Dispatch outbox
  users:                Directory read model

CONCURRENCY:
  The pool is limited to one connection: ":memory:" databases are
  per-connection, and SQLite allows a single writer anyway. Inside WithTx
  every statement, reads included, goes through the *sql.Tx.

WAL MODE:
  Opened with WAL (Write-Ahead Logging) for better crash recovery.

USAGE:
  store, err := sqlite.New("./data/allocations.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - allocation/store.go: Interface definitions
  - stock/store/memory.go: In-memory ledger for stock tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/allocation-ledger/allocation"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements every read and single-statement write against q.
type queries struct {
	q querier
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	queries
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: queries{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Stock movements (append-only ledger)
	CREATE TABLE IF NOT EXISTS movements (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		owner_id TEXT NOT NULL,
		item TEXT NOT NULL,
		delta_value TEXT NOT NULL,
		delta_unit TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	-- Balance replay (hot path)
	CREATE INDEX IF NOT EXISTS idx_movements_owner_item
		ON movements(owner_id, item, seq);
	CREATE INDEX IF NOT EXISTS idx_movements_reference
		ON movements(reference_id) WHERE reference_id IS NOT NULL;

	-- Catalog
	CREATE TABLE IF NOT EXISTS items (
		name TEXT PRIMARY KEY,
		unit TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Allocation records (append-only)
	CREATE TABLE IF NOT EXISTS allocations (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		parent_id TEXT NOT NULL DEFAULT '',
		root_id TEXT NOT NULL,
		rm_id TEXT NOT NULL DEFAULT '',
		bm_id TEXT NOT NULL DEFAULT '',
		item TEXT NOT NULL,
		employees_json TEXT NOT NULL,
		purpose TEXT NOT NULL DEFAULT '',
		assigned_by TEXT NOT NULL DEFAULT '',
		assigned_by_code TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_root ON allocations(root_id);
	CREATE INDEX IF NOT EXISTS idx_allocations_rm ON allocations(rm_id) WHERE rm_id != '';
	CREATE INDEX IF NOT EXISTS idx_allocations_bm ON allocations(bm_id) WHERE bm_id != '';

	-- Lineage state (the only mutable rows)
	CREATE TABLE IF NOT EXISTS lineages (
		root_id TEXT PRIMARY KEY,
		to_vendor INTEGER NOT NULL DEFAULT 0,
		dispatched_at TEXT NOT NULL DEFAULT '',
		dispatched_by TEXT NOT NULL DEFAULT '',
		lr_no TEXT NOT NULL DEFAULT '',
		lr_updated_at TEXT NOT NULL DEFAULT '',
		lr_updated_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		at TEXT NOT NULL,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		root_id TEXT NOT NULL DEFAULT '',
		payload_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_root ON audit_log(root_id);

	-- Vendor dispatch outbox
	CREATE TABLE IF NOT EXISTS vendor_notifications (
		id TEXT PRIMARY KEY,
		root_id TEXT NOT NULL,
		notice_json TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		attempts INTEGER NOT NULL DEFAULT 0,
		next_attempt_at TEXT NOT NULL,
		last_error TEXT NOT NULL DEFAULT '',
		sent_at TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_vendor_notifications_due
		ON vendor_notifications(status, next_attempt_at);

	-- User directory read model
	CREATE TABLE IF NOT EXISTS users (
		emp_code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		region TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		area TEXT NOT NULL DEFAULT '',
		report_to_json TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (allocation.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store allocation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// Reset deletes all data. Used by the demo scenario loader.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tables := []string{"movements", "items", "allocations", "lineages", "audit_log", "vendor_notifications", "users"}
	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout has a fixed-width fraction so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
