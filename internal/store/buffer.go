package store

import (
	"database/sql"
	"fmt"
)

// BufferItem is one pending context item awaiting dispatch (spec.md §3).
type BufferItem struct {
	ID        int64
	Path      string
	ItemType  string
	Chars     int
	Date      string
	DriftType string
	AddedAt   string
	Metadata  string
}

// AddBufferItem inserts item and atomically increments the running
// buffer_chars_total counter under BEGIN IMMEDIATE, grounded on
// db.py's add_buffer_item.
func (s *Store) AddBufferItem(item BufferItem) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("add buffer item: begin: %w", err)
	}
	defer tx.Rollback()

	if item.AddedAt == "" {
		item.AddedAt = nowISO()
	}
	res, err := tx.Exec(`
		INSERT INTO buffer_items (path, item_type, chars, date, drift_type, added_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.Path, item.ItemType, item.Chars, item.Date, item.DriftType, item.AddedAt, item.Metadata)
	if err != nil {
		return 0, fmt.Errorf("add buffer item: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("add buffer item: last insert id: %w", err)
	}
	if _, err := tx.Exec(`UPDATE server_state SET buffer_chars_total = buffer_chars_total + ? WHERE id = 1`, item.Chars); err != nil {
		return 0, fmt.Errorf("add buffer item: update total: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add buffer item: commit: %w", err)
	}
	return id, nil
}

// GetBufferItems returns all pending buffer items ordered by date, then id.
func (s *Store) GetBufferItems() ([]BufferItem, error) {
	rows, err := s.db.Query(`
		SELECT id, path, item_type, chars, date, drift_type, added_at, metadata
		FROM buffer_items ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("get buffer items: %w", err)
	}
	defer rows.Close()

	var items []BufferItem
	for rows.Next() {
		var it BufferItem
		var date, driftType, metadata sql.NullString
		if err := rows.Scan(&it.ID, &it.Path, &it.ItemType, &it.Chars, &date, &driftType, &it.AddedAt, &metadata); err != nil {
			return nil, fmt.Errorf("get buffer items: scan: %w", err)
		}
		it.Date = date.String
		it.DriftType = driftType.String
		it.Metadata = metadata.String
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetBufferChars returns the running buffer_chars_total counter.
func (s *Store) GetBufferChars() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT buffer_chars_total FROM server_state WHERE id = 1`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("get buffer chars: %w", err)
	}
	return n, nil
}

// ClearBuffer deletes every buffer item and resets buffer_chars_total to 0.
func (s *Store) ClearBuffer() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("clear buffer: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM buffer_items`); err != nil {
		return fmt.Errorf("clear buffer: delete: %w", err)
	}
	if _, err := tx.Exec(`UPDATE server_state SET buffer_chars_total = 0 WHERE id = 1`); err != nil {
		return fmt.Errorf("clear buffer: reset total: %w", err)
	}
	return tx.Commit()
}

// ConsumeBuffer atomically deletes the given item ids and clamps
// buffer_chars_total down by their combined chars, never below zero,
// grounded on db.py's consume_buffer.
func (s *Store) ConsumeBuffer(itemIDs []int64) error {
	if len(itemIDs) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("consume buffer: begin: %w", err)
	}
	defer tx.Rollback()

	placeholders := make([]any, len(itemIDs))
	query := `SELECT COALESCE(SUM(chars), 0) FROM buffer_items WHERE id IN (`
	for i, id := range itemIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		placeholders[i] = id
	}
	query += ")"

	var removed int
	if err := tx.QueryRow(query, placeholders...).Scan(&removed); err != nil {
		return fmt.Errorf("consume buffer: sum: %w", err)
	}

	delQuery := `DELETE FROM buffer_items WHERE id IN (`
	for i := range itemIDs {
		if i > 0 {
			delQuery += ","
		}
		delQuery += "?"
	}
	delQuery += ")"
	if _, err := tx.Exec(delQuery, placeholders...); err != nil {
		return fmt.Errorf("consume buffer: delete: %w", err)
	}

	if _, err := tx.Exec(`UPDATE server_state SET buffer_chars_total = MAX(0, buffer_chars_total - ?) WHERE id = 1`, removed); err != nil {
		return fmt.Errorf("consume buffer: clamp total: %w", err)
	}
	return tx.Commit()
}

// HasBufferItem reports whether any buffer item exists for path with the
// given driftType (used to suppress duplicate drift-buffer entries).
func (s *Store) HasBufferItem(path, driftType string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM buffer_items WHERE path = ? AND drift_type = ?`, path, driftType).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("has buffer item: %w", err)
	}
	return n > 0, nil
}
