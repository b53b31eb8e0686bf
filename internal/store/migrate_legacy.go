package store

import (
	"database/sql"
	"fmt"
)

// migrateLegacyServerState detects an older key/value server_state schema
// (written by a pre-singleton-row version of the migration tool) and
// converts it in place: the table is dropped and recreated with the
// singleton-row schema, and the legacy fold_from value (if any) is carried
// into row 1. Grounded on
// db.py's _migrate_legacy_server_state.
func (s *Store) migrateLegacyServerState() error {
	rows, err := s.db.Query(`PRAGMA table_info(server_state)`)
	if err != nil {
		return fmt.Errorf("migrate legacy server state: table_info: %w", err)
	}
	var cols []string
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return fmt.Errorf("migrate legacy server state: scan column: %w", err)
		}
		cols = append(cols, name)
	}
	rows.Close()

	if len(cols) == 0 {
		return nil // table doesn't exist yet; nothing to migrate
	}
	if isSingletonServerStateSchema(cols) {
		return nil // already current
	}

	// Legacy schema: a key/value table. Extract fold_from if present, then
	// drop the table and recreate it with the singleton-row schema.
	var foldFrom sql.NullString
	err = s.db.QueryRow(`SELECT value FROM server_state WHERE key = 'fold_from'`).Scan(&foldFrom)
	hasFoldFrom := err == nil && foldFrom.Valid

	if _, err := s.db.Exec(`DROP TABLE server_state`); err != nil {
		return fmt.Errorf("migrate legacy server state: drop: %w", err)
	}
	if _, err := s.db.Exec(`
		CREATE TABLE server_state (
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
		)`); err != nil {
		return fmt.Errorf("migrate legacy server state: recreate: %w", err)
	}
	if hasFoldFrom {
		if _, err := s.db.Exec(`INSERT INTO server_state (id, buffer_chars_total, fold_from) VALUES (1, 0, ?)`, foldFrom.String); err != nil {
			return fmt.Errorf("migrate legacy server state: carry fold_from: %w", err)
		}
	}
	return nil
}

func isSingletonServerStateSchema(cols []string) bool {
	for _, c := range cols {
		if c == "id" {
			return true
		}
	}
	return false
}
