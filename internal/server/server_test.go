package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/server"
)

type stubAgent struct{}

func (stubAgent) Invoke(ctx context.Context, prompt string) (bool, error) { return true, nil }

func (stubAgent) GenerateBriefing(ctx context.Context, livingDocsContent string) (string, error) {
	return "", nil
}

func TestGetStatusOnFreshProject(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()

	status, err := server.GetStatus(cfg, root, s, fakeRepo{})
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.PendingItems != 0 {
		t.Errorf("PendingItems = %d, want 0", status.PendingItems)
	}
	if status.HasLastDispatch {
		t.Errorf("HasLastDispatch = true on fresh project, want false")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	root := t.TempDir()
	s := setupStore(t, root)
	cfg := config.Defaults()
	cfg.PollInterval = 3600

	srv := &server.Server{
		Config: cfg, ProjectRoot: root, Store: s, Repo: fakeRepo{},
		Agent: stubAgent{}, Briefing: stubAgent{},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
