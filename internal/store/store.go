// Package store is the SQLite-backed persistent state store: ID counters,
// buffer items, dispatches, and the singleton server-state row, all living
// in one .engram/engram.db file (spec.md §3). Connection and transaction
// discipline (BEGIN IMMEDIATE for single-writer-serializing operations) is
// grounded on the teacher's internal/storage/sqlite package; table and
// column shapes are grounded directly on
// original_source/engram/server/db.py and fold/ids.py.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DispatchState is one of the four dispatch lifecycle states (spec.md §3, §4.7).
type DispatchState string

const (
	StateBuilding   DispatchState = "building"
	StateDispatched DispatchState = "dispatched"
	StateValidated  DispatchState = "validated"
	StateCommitted  DispatchState = "committed"
)

// dispatchOrder gives each state's position in the lifecycle, used to
// enforce spec.md §5's "transitions to earlier states are forbidden"
// ordering guarantee.
var dispatchOrder = map[DispatchState]int{
	StateBuilding:   0,
	StateDispatched: 1,
	StateValidated:  2,
	StateCommitted:  3,
}

// IsValidDispatchState reports whether s is one of the four recognized
// dispatch states.
func IsValidDispatchState(s DispatchState) bool {
	_, ok := dispatchOrder[s]
	return ok
}

// ErrInvalidTransition is a programming error (spec.md §7 taxonomy item 6):
// an attempt to move a dispatch to an earlier lifecycle state than its
// current one.
type ErrInvalidTransition struct {
	From, To DispatchState
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid dispatch transition: %s -> %s", e.From, e.To)
}

// Store owns the single .engram/engram.db connection for a project.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the state store at dbPath and applies
// the schema. Safe to call from multiple processes; SQLite's WAL mode plus
// the BEGIN IMMEDIATE discipline used by every mutating method below
// serializes writers. _txlock=immediate makes every db.Begin() acquire the
// write lock at BEGIN rather than at the first write, so a second
// concurrent writer blocks and retries against _pragma=busy_timeout instead
// of failing outright with SQLITE_BUSY. Grounded on the teacher's
// cmd/bd/repair.go connection string idiom.
func Open(dbPath string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	if err := s.migrateLegacyServerState(); err != nil {
		return err
	}

	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS id_counters (
			prefix TEXT PRIMARY KEY,
			next_value INTEGER NOT NULL DEFAULT 1
		);

		CREATE TABLE IF NOT EXISTS buffer_items (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			path        TEXT NOT NULL,
			item_type   TEXT NOT NULL,
			chars       INTEGER NOT NULL DEFAULT 0,
			date        TEXT,
			drift_type  TEXT,
			added_at    TEXT NOT NULL,
			metadata    TEXT
		);

		CREATE TABLE IF NOT EXISTS dispatches (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			chunk_id    INTEGER NOT NULL,
			state       TEXT NOT NULL DEFAULT 'building',
			retry_count INTEGER NOT NULL DEFAULT 0,
			input_path  TEXT,
			prompt_path TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL,
			error       TEXT
		);

		CREATE TABLE IF NOT EXISTS server_state (
			id                      INTEGER PRIMARY KEY CHECK (id = 1),
			last_poll_commit        TEXT,
			last_poll_time          TEXT,
			last_dispatch_time      TEXT,
			buffer_chars_total      INTEGER NOT NULL DEFAULT 0,
			last_session_mtime      REAL,
			last_session_offset     INTEGER NOT NULL DEFAULT 0,
			last_session_tree_mtime REAL,
			fold_from               TEXT,
			l0_stale                INTEGER NOT NULL DEFAULT 0
		);

		INSERT OR IGNORE INTO server_state (id, buffer_chars_total) VALUES (1, 0);
	`)
	if err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func nowISO() string { return time.Now().UTC().Format(time.RFC3339) }

// DB exposes the underlying connection for packages (e.g. internal/chunk's
// manifest bookkeeping) that need ad-hoc queries not otherwise exposed.
func (s *Store) DB() *sql.DB { return s.db }
