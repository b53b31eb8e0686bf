package store

import (
	"database/sql"
	"fmt"
)

// Dispatch is one chunk's journey through the four-state build/validate/
// commit lifecycle (spec.md §5).
type Dispatch struct {
	ID         int64
	ChunkID    int64
	State      DispatchState
	RetryCount int
	InputPath  string
	PromptPath string
	CreatedAt  string
	UpdatedAt  string
	Error      string
}

// CreateDispatch inserts a new dispatch row in the "building" state for
// chunkID, grounded on db.py's create_dispatch.
func (s *Store) CreateDispatch(chunkID int64, inputPath, promptPath string) (int64, error) {
	now := nowISO()
	res, err := s.db.Exec(`
		INSERT INTO dispatches (chunk_id, state, retry_count, input_path, prompt_path, created_at, updated_at)
		VALUES (?, ?, 0, ?, ?, ?, ?)`,
		chunkID, StateBuilding, inputPath, promptPath, now, now)
	if err != nil {
		return 0, fmt.Errorf("create dispatch: %w", err)
	}
	return res.LastInsertId()
}

// UpdateDispatchState transitions dispatch id to newState. Moving to an
// earlier lifecycle state than the dispatch's current one is a programming
// error and returns *ErrInvalidTransition (spec.md §7 taxonomy item 6).
func (s *Store) UpdateDispatchState(id int64, newState DispatchState, errMsg string) error {
	if !IsValidDispatchState(newState) {
		return fmt.Errorf("update dispatch state: unknown state %q", newState)
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("update dispatch state: begin: %w", err)
	}
	defer tx.Rollback()

	var cur DispatchState
	if err := tx.QueryRow(`SELECT state FROM dispatches WHERE id = ?`, id).Scan(&cur); err != nil {
		return fmt.Errorf("update dispatch state: lookup: %w", err)
	}
	if dispatchOrder[newState] < dispatchOrder[cur] {
		return &ErrInvalidTransition{From: cur, To: newState}
	}

	var errVal any
	if errMsg != "" {
		errVal = errMsg
	}
	if _, err := tx.Exec(`UPDATE dispatches SET state = ?, error = ?, updated_at = ? WHERE id = ?`,
		newState, errVal, nowISO(), id); err != nil {
		return fmt.Errorf("update dispatch state: update: %w", err)
	}
	return tx.Commit()
}

// IncrementRetry bumps a dispatch's retry_count by one.
func (s *Store) IncrementRetry(id int64) error {
	_, err := s.db.Exec(`UPDATE dispatches SET retry_count = retry_count + 1, updated_at = ? WHERE id = ?`, nowISO(), id)
	if err != nil {
		return fmt.Errorf("increment retry: %w", err)
	}
	return nil
}

func scanDispatch(row interface {
	Scan(dest ...any) error
}) (Dispatch, error) {
	var d Dispatch
	var inputPath, promptPath, errMsg sql.NullString
	err := row.Scan(&d.ID, &d.ChunkID, &d.State, &d.RetryCount, &inputPath, &promptPath, &d.CreatedAt, &d.UpdatedAt, &errMsg)
	d.InputPath = inputPath.String
	d.PromptPath = promptPath.String
	d.Error = errMsg.String
	return d, err
}

const dispatchColumns = `id, chunk_id, state, retry_count, input_path, prompt_path, created_at, updated_at, error`

// GetDispatch returns the dispatch with the given id.
func (s *Store) GetDispatch(id int64) (Dispatch, error) {
	row := s.db.QueryRow(`SELECT `+dispatchColumns+` FROM dispatches WHERE id = ?`, id)
	d, err := scanDispatch(row)
	if err != nil {
		return Dispatch{}, fmt.Errorf("get dispatch: %w", err)
	}
	return d, nil
}

// GetNonTerminalDispatches returns every dispatch not yet in a terminal
// state (i.e. not "committed"), used by recovery on startup.
func (s *Store) GetNonTerminalDispatches() ([]Dispatch, error) {
	rows, err := s.db.Query(`SELECT `+dispatchColumns+` FROM dispatches WHERE state != ? ORDER BY id`, StateCommitted)
	if err != nil {
		return nil, fmt.Errorf("get non-terminal dispatches: %w", err)
	}
	defer rows.Close()
	return scanDispatches(rows)
}

// GetRecentDispatches returns up to limit most-recently-created dispatches,
// newest first.
func (s *Store) GetRecentDispatches(limit int) ([]Dispatch, error) {
	rows, err := s.db.Query(`SELECT `+dispatchColumns+` FROM dispatches ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("get recent dispatches: %w", err)
	}
	defer rows.Close()
	return scanDispatches(rows)
}

// GetLastDispatch returns the most recently created dispatch, if any.
func (s *Store) GetLastDispatch() (Dispatch, bool, error) {
	row := s.db.QueryRow(`SELECT ` + dispatchColumns + ` FROM dispatches ORDER BY id DESC LIMIT 1`)
	d, err := scanDispatch(row)
	if err == sql.ErrNoRows {
		return Dispatch{}, false, nil
	}
	if err != nil {
		return Dispatch{}, false, fmt.Errorf("get last dispatch: %w", err)
	}
	return d, true, nil
}

func scanDispatches(rows *sql.Rows) ([]Dispatch, error) {
	var out []Dispatch
	for rows.Next() {
		d, err := scanDispatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// RecoverOnStartup deletes every dispatch stuck in "building" (an agent
// invocation that never finished before the server last stopped) and
// returns the dispatched/validated ones so the caller (internal/dispatch's
// Dispatcher.RecoverDispatch) can resume them, grounded on db.py's
// recover_on_startup.
func (s *Store) RecoverOnStartup() ([]Dispatch, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("recover on startup: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM dispatches WHERE state = ?`, StateBuilding); err != nil {
		return nil, fmt.Errorf("recover on startup: delete building: %w", err)
	}

	rows, err := tx.Query(`SELECT `+dispatchColumns+` FROM dispatches WHERE state IN (?, ?) ORDER BY id`,
		StateDispatched, StateValidated)
	if err != nil {
		return nil, fmt.Errorf("recover on startup: query: %w", err)
	}
	out, err := scanDispatches(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("recover on startup: commit: %w", err)
	}
	return out, nil
}
