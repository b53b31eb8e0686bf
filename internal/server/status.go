package server

import (
	"fmt"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
)

// Status reports current server state for CLI display, grounded on
// server/__init__.py's get_status.
type Status struct {
	Fill             FillInfo
	PendingItems     int
	LastDispatch     store.Dispatch
	HasLastDispatch  bool
	RecentDispatches []store.Dispatch
	ServerState      store.ServerState
}

// GetStatus reads current buffer/dispatch/server state without starting
// any watchers or making any mutations.
func GetStatus(cfg config.Config, projectRoot string, s *store.Store, repo vcs.Repo) (Status, error) {
	buffer := NewContextBuffer(cfg, projectRoot, s, repo)

	fill, err := buffer.GetFillInfo()
	if err != nil {
		return Status{}, fmt.Errorf("get status: %w", err)
	}
	items, err := s.GetBufferItems()
	if err != nil {
		return Status{}, fmt.Errorf("get status: %w", err)
	}
	last, found, err := s.GetLastDispatch()
	if err != nil {
		return Status{}, fmt.Errorf("get status: %w", err)
	}
	recent, err := s.GetRecentDispatches(5)
	if err != nil {
		return Status{}, fmt.Errorf("get status: %w", err)
	}
	st, err := s.GetServerState()
	if err != nil {
		return Status{}, fmt.Errorf("get status: %w", err)
	}

	return Status{
		Fill:             fill,
		PendingItems:     len(items),
		LastDispatch:     last,
		HasLastDispatch:  found,
		RecentDispatches: recent,
		ServerState:      st,
	}, nil
}
