package store

import (
	"database/sql"
	"fmt"
)

// ServerState is the singleton row tracking poll/dispatch/session
// bookkeeping across server restarts (spec.md §3).
type ServerState struct {
	LastPollCommit       string
	LastPollTime         string
	LastDispatchTime     string
	BufferCharsTotal     int
	LastSessionMtime     float64
	LastSessionOffset    int64
	LastSessionTreeMtime float64
	FoldFrom             string
	L0Stale              bool
}

const serverStateColumns = `last_poll_commit, last_poll_time, last_dispatch_time, buffer_chars_total,
	last_session_mtime, last_session_offset, last_session_tree_mtime, fold_from, l0_stale`

// GetServerState returns the current singleton server-state row.
func (s *Store) GetServerState() (ServerState, error) {
	var st ServerState
	var lastPollCommit, lastPollTime, lastDispatchTime, foldFrom sql.NullString
	var lastSessionMtime, lastSessionTreeMtime sql.NullFloat64
	var l0Stale int
	err := s.db.QueryRow(`SELECT `+serverStateColumns+` FROM server_state WHERE id = 1`).Scan(
		&lastPollCommit, &lastPollTime, &lastDispatchTime, &st.BufferCharsTotal,
		&lastSessionMtime, &st.LastSessionOffset, &lastSessionTreeMtime, &foldFrom, &l0Stale)
	if err != nil {
		return ServerState{}, fmt.Errorf("get server state: %w", err)
	}
	st.LastPollCommit = lastPollCommit.String
	st.LastPollTime = lastPollTime.String
	st.LastDispatchTime = lastDispatchTime.String
	st.LastSessionMtime = lastSessionMtime.Float64
	st.LastSessionTreeMtime = lastSessionTreeMtime.Float64
	st.FoldFrom = foldFrom.String
	st.L0Stale = l0Stale != 0
	return st, nil
}

// validServerStateKeys mirrors db.py's update_server_state valid_keys set;
// an unrecognized key is a programming error.
var validServerStateKeys = map[string]string{
	"last_poll_commit":        "last_poll_commit",
	"last_poll_time":          "last_poll_time",
	"last_dispatch_time":      "last_dispatch_time",
	"buffer_chars_total":      "buffer_chars_total",
	"last_session_mtime":      "last_session_mtime",
	"last_session_offset":     "last_session_offset",
	"last_session_tree_mtime": "last_session_tree_mtime",
	"fold_from":               "fold_from",
	"l0_stale":                "l0_stale",
}

// UpdateServerState sets the named columns of the singleton server_state
// row. An unrecognized key returns an error (db.py's update_server_state
// programming-error case).
func (s *Store) UpdateServerState(fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	setClause := ""
	args := make([]any, 0, len(fields)+1)
	for k, v := range fields {
		col, ok := validServerStateKeys[k]
		if !ok {
			return fmt.Errorf("update server state: invalid key %q", k)
		}
		if setClause != "" {
			setClause += ", "
		}
		setClause += col + " = ?"
		args = append(args, v)
	}
	args = append(args, 1)
	_, err := s.db.Exec(`UPDATE server_state SET `+setClause+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("update server state: %w", err)
	}
	return nil
}

// SetFoldFrom records the date (YYYY-MM-DD) a forward-fold replay resumes
// from.
func (s *Store) SetFoldFrom(commit string) error {
	return s.UpdateServerState(map[string]any{"fold_from": commit})
}

// GetFoldFrom returns the date a forward-fold replay resumes from, or "" if
// none is set.
func (s *Store) GetFoldFrom() (string, error) {
	st, err := s.GetServerState()
	if err != nil {
		return "", err
	}
	return st.FoldFrom, nil
}

// ClearFoldFrom clears the fold_from marker.
func (s *Store) ClearFoldFrom() error {
	_, err := s.db.Exec(`UPDATE server_state SET fold_from = NULL WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("clear fold from: %w", err)
	}
	return nil
}

// MarkL0Stale flags the L0 briefing as needing regeneration.
func (s *Store) MarkL0Stale() error {
	_, err := s.db.Exec(`UPDATE server_state SET l0_stale = 1 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("mark l0 stale: %w", err)
	}
	return nil
}

// ClearL0Stale clears the L0-staleness flag.
func (s *Store) ClearL0Stale() error {
	_, err := s.db.Exec(`UPDATE server_state SET l0_stale = 0 WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("clear l0 stale: %w", err)
	}
	return nil
}

// IsL0Stale reports whether the L0 briefing needs regeneration.
func (s *Store) IsL0Stale() (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT l0_stale FROM server_state WHERE id = 1`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("is l0 stale: %w", err)
	}
	return n != 0, nil
}
