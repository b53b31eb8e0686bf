package server

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rajeshgoli/engram/internal/agent"
	"github.com/rajeshgoli/engram/internal/briefing"
	"github.com/rajeshgoli/engram/internal/chunk"
	"github.com/rajeshgoli/engram/internal/config"
	"github.com/rajeshgoli/engram/internal/dispatch"
	"github.com/rajeshgoli/engram/internal/store"
	"github.com/rajeshgoli/engram/internal/vcs"
	"github.com/rajeshgoli/engram/internal/watch"
)

// Server runs engram's long-lived loop: watchers feed the buffer, and a
// periodic tick checks whether the buffer warrants a dispatch. Grounded on
// server/__init__.py's run_server and the event-driven shape of the
// teacher's cmd/bd daemon_event_loop.go (ticker + signal handling; engram
// has no RPC surface or mutation channel to react to, so the watchers
// themselves are the event sources).
//
// Note on buffer_items: the buffer table only gates WHEN a dispatch fires
// (fill level / drift thresholds); the dispatch itself pulls its items from
// queue.jsonl via internal/chunk, not from buffer_items. The original
// server/buffer.py exposes a consume_all that nothing in the codebase
// calls — preserved here as ContextBuffer.ConsumeAll for API parity, but
// the tick loop below does not call it, matching the original's actual
// (if surprising) behavior.
type Server struct {
	Config      config.Config
	ProjectRoot string
	Store       *store.Store
	Repo        vcs.Repo
	Agent       agent.Invoker
	Briefing    agent.BriefingInvoker
	Logger      *log.Logger

	buffer     *ContextBuffer
	dispatcher *dispatch.Dispatcher

	fileWatcher   *watch.FileWatcher
	gitPoller     *watch.GitPoller
	sessionPoller *watch.SessionPoller
}

func (s *Server) logf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Printf(format, args...)
	}
}

func (s *Server) onItem(path, itemType string, chars int, date, metadata string) {
	added, err := s.buffer.AddItem(path, itemType, chars, date, metadata)
	if err != nil {
		s.logf("buffer add item %s: %v", path, err)
		return
	}
	if added {
		s.logf("buffer += %s (%s, %d chars)", path, itemType, chars)
	}
}

// Run starts the watchers and the poll loop, blocking until ctx is
// canceled or a terminating signal is received.
func (s *Server) Run(ctx context.Context) error {
	s.buffer = NewContextBuffer(s.Config, s.ProjectRoot, s.Store, s.Repo)
	s.dispatcher = &dispatch.Dispatcher{
		Config: s.Config, ProjectRoot: s.ProjectRoot, Store: s.Store,
		Repo: s.Repo, Agent: s.Agent, Briefing: s.Briefing, Logger: s.Logger,
	}

	s.recoverOnStartup(ctx)
	s.checkL0Stale(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	s.fileWatcher = watch.NewFileWatcher(s.Config, s.ProjectRoot, s.onItem, s.Logger)
	if err := s.fileWatcher.Start(runCtx); err != nil {
		s.logf("file watcher unavailable: %v", err)
		s.fileWatcher = nil
	}
	defer func() {
		if s.fileWatcher != nil {
			_ = s.fileWatcher.Stop()
		}
	}()

	s.gitPoller = watch.NewGitPoller(s.ProjectRoot, s.onItem, s.Config.Sources.Docs, s.Logger)
	if st, err := s.Store.GetServerState(); err == nil && st.LastPollCommit != "" {
		s.gitPoller.SetLastCommit(st.LastPollCommit)
	}

	s.sessionPoller = watch.NewSessionPoller(s.Config, s.ProjectRoot, s.onItem, s.Logger)
	if st, err := s.Store.GetServerState(); err == nil && st.LastSessionMtime != 0 {
		s.sessionPoller.SetLastMtime(st.LastSessionMtime)
	}

	interval := s.Config.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()

	s.logf("engram server started (poll interval %ds, project=%s)", interval, s.ProjectRoot)

	for {
		select {
		case <-ticker.C:
			s.tick(runCtx)

		case sig := <-sigChan:
			s.logf("received signal %v, shutting down", sig)
			return nil

		case <-runCtx.Done():
			return runCtx.Err()
		}
	}
}

// recoverOnStartup resumes any dispatch left mid-flight by a killed
// server process, grounded on server/__init__.py's crash-recovery block.
func (s *Server) recoverOnStartup(ctx context.Context) {
	s.logf("checking for incomplete dispatches...")
	stale, err := s.Store.RecoverOnStartup()
	if err != nil {
		s.logf("recover on startup: %v", err)
		return
	}
	for _, d := range stale {
		s.logf("recovering dispatch %d (state=%s)", d.ID, d.State)
		if _, err := s.dispatcher.RecoverDispatch(ctx, d); err != nil {
			s.logf("recover dispatch %d: %v", d.ID, err)
		}
	}
}

// checkL0Stale regenerates the briefing once the queue has fully drained,
// matching the startup and per-iteration checks in server/__init__.py —
// both reduce to the same condition (l0_stale && queue is empty), so one
// helper serves both call sites.
func (s *Server) checkL0Stale(ctx context.Context) {
	stale, err := s.Store.IsL0Stale()
	if err != nil || !stale {
		return
	}
	if !chunk.QueueIsEmpty(s.ProjectRoot) {
		return
	}
	if s.Briefing == nil {
		return
	}
	s.logf("regenerating stale L0 briefing...")
	paths := config.ResolveDocPaths(s.Config, s.ProjectRoot)
	text, err := briefing.Regenerate(ctx, s.Config, s.ProjectRoot, paths, s.Briefing)
	if err != nil {
		s.logf("regenerate briefing: %v", err)
		return
	}
	if text == "" {
		return
	}
	if err := s.Store.ClearL0Stale(); err != nil {
		s.logf("clear l0 stale: %v", err)
	}
}

// tick runs one poll-and-maybe-dispatch cycle: poll the git and session
// sources, persist their bookmarks, check the buffer, and re-check L0
// staleness — all unconditionally, every iteration, matching the flat
// (non-nested) structure of server/__init__.py's main loop.
func (s *Server) tick(ctx context.Context) {
	commits := s.gitPoller.Poll()
	if len(commits) > 0 {
		s.logf("git: %d new commit(s)", len(commits))
		if err := s.Store.UpdateServerState(map[string]any{"last_poll_commit": s.gitPoller.LastCommit()}); err != nil {
			s.logf("update server state: %v", err)
		}
	}

	if n := s.sessionPoller.Poll(); n > 0 {
		s.logf("sessions: %d new entry/entries", n)
		if err := s.Store.UpdateServerState(map[string]any{"last_session_mtime": s.sessionPoller.LastMtime()}); err != nil {
			s.logf("update server state: %v", err)
		}
	}

	reason, should, err := s.buffer.ShouldDispatch()
	if err != nil {
		s.logf("should dispatch: %v", err)
	} else if should {
		s.logf("dispatch triggered: %s", reason)
		ok, err := s.dispatcher.Dispatch(ctx)
		if err != nil {
			s.logf("dispatch error: %v", err)
		} else if ok {
			s.logf("dispatch completed successfully")
		} else {
			s.logf("dispatch failed")
		}
	}

	s.checkL0Stale(ctx)

	if err := s.Store.UpdateServerState(map[string]any{
		"last_poll_time": time.Now().UTC().Format(time.RFC3339),
	}); err != nil {
		s.logf("update server state: %v", err)
	}
}
