package watch

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/rajeshgoli/engram/internal/config"
)

// BufferCallback receives one changed item: its project-relative path, the
// buffer item_type ("doc"/"issue"/"prompts"), its size in chars, an
// optional ISO-8601 date override, and optional JSON metadata.
type BufferCallback func(path, itemType string, chars int, date, metadata string)

var watchedExtensions = map[string]bool{
	".md": true, ".txt": true, ".json": true, ".yaml": true, ".yml": true,
}

// FileWatcher is an fsnotify-based watcher over the configured doc and
// issue directories, recursively, falling back to nothing (caller should
// pair it with a periodic GitPoller/SessionPoller) if fsnotify can't start.
// Grounded on the teacher's cmd/bd/daemon_watcher.go.
type FileWatcher struct {
	cfg         config.Config
	projectRoot string
	callback    BufferCallback
	logger      *log.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
}

// NewFileWatcher returns a FileWatcher for cfg's source directories under
// projectRoot.
func NewFileWatcher(cfg config.Config, projectRoot string, callback BufferCallback, logger *log.Logger) *FileWatcher {
	return &FileWatcher{cfg: cfg, projectRoot: projectRoot, callback: callback, logger: logger}
}

func (fw *FileWatcher) logf(format string, args ...any) {
	if fw.logger != nil {
		fw.logger.Printf(format, args...)
	}
}

// watchDirs resolves the configured doc directories plus the issues
// directory to absolute paths that currently exist.
func (fw *FileWatcher) watchDirs() []string {
	var dirs []string
	for _, d := range fw.cfg.Sources.Docs {
		p := filepath.Join(fw.projectRoot, d)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	if fw.cfg.Sources.Issues != "" {
		p := filepath.Join(fw.projectRoot, fw.cfg.Sources.Issues)
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			dirs = append(dirs, p)
		}
	}
	return dirs
}

// Start begins watching in a background goroutine until ctx is canceled.
// Returns an error only if fsnotify itself can't initialize; a watcher with
// no existing source directories yet logs a warning and runs idle (new
// directories created later are not picked up, matching watchdog's
// schedule-at-start semantics).
func (fw *FileWatcher) Start(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	fw.watcher = w

	dirs := fw.watchDirs()
	if len(dirs) == 0 {
		fw.logf("no source directories found to watch")
	}
	for _, d := range dirs {
		fw.addRecursive(d)
	}

	runCtx, cancel := context.WithCancel(ctx)
	fw.cancel = cancel

	go fw.loop(runCtx)
	return nil
}

func (fw *FileWatcher) addRecursive(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if err := fw.watcher.Add(path); err != nil {
			fw.logf("watch %s: %v", path, err)
		} else {
			fw.logf("watching: %s", path)
		}
		return nil
	})
}

func (fw *FileWatcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if event.Op&fsnotify.Create != 0 {
					fw.addRecursive(event.Name)
				}
				continue
			}
			fw.handle(event.Name)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logf("watcher error: %v", err)

		case <-ctx.Done():
			return
		}
	}
}

func (fw *FileWatcher) handle(absPath string) {
	ext := strings.ToLower(filepath.Ext(absPath))
	if !watchedExtensions[ext] {
		return
	}
	rel, err := filepath.Rel(fw.projectRoot, absPath)
	if err != nil {
		return
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if strings.HasPrefix(part, ".") {
			return
		}
	}

	var chars int
	if info, err := os.Stat(absPath); err == nil {
		chars = int(info.Size())
	}

	itemType := "doc"
	if ext == ".json" {
		itemType = "issue"
	}
	fw.callback(rel, itemType, chars, "", "")
}

// Stop stops the watcher and releases its resources.
func (fw *FileWatcher) Stop() error {
	if fw.cancel != nil {
		fw.cancel()
	}
	if fw.watcher != nil {
		return fw.watcher.Close()
	}
	return nil
}
