package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long the watcher waits after the last write event for a
// file before processing it, so partially written uploads are not parsed.
const settleDelay = 500 * time.Millisecond

// Watcher observes an upload directory and reprocesses file sources when a
// matching file lands in it. A file named <sourceID>.csv or <sourceID>.json
// triggers an upload for that source id.
type Watcher struct {
	scheduler *Scheduler
	registry  *Registry
	logger    *slog.Logger
	watcher   *fsnotify.Watcher

	// mu guards pending: debounce runs on the Run goroutine while expired
	// timers remove themselves from their own goroutines.
	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over the given upload directory.
func NewWatcher(dir string, scheduler *Scheduler, registry *Registry, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &Watcher{
		scheduler: scheduler,
		registry:  registry,
		logger:    logger.With("component", "watcher", "dir", dir),
		watcher:   fw,
		pending:   make(map[string]*time.Timer),
	}, nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	w.logger.Info("upload watcher started")
	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.debounce(ctx, ev.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

// debounce schedules processing of a path after writes settle, resetting the
// timer on every subsequent event for the same path.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.handle(ctx, path)
	})
}

// handle routes a settled file to the source whose id matches its base name.
func (w *Watcher) handle(ctx context.Context, path string) {
	base := filepath.Base(path)
	sourceID := strings.TrimSuffix(base, filepath.Ext(base))

	src, err := w.registry.Get(sourceID)
	if err != nil {
		w.logger.Debug("ignoring file with no matching source", "file", base)
		return
	}
	if src.Kind != KindFile {
		w.logger.Warn("ignoring upload for non-file source", "source", sourceID)
		return
	}

	result, err := w.scheduler.Upload(ctx, sourceID, path)
	if err != nil {
		w.logger.Warn("upload processing failed", "source", sourceID, "error", err)
		return
	}
	w.logger.Info("upload processed",
		"source", sourceID, "accepted", result.Accepted, "rejected", result.Rejected)
}
