// Package watch reloads the JSON file store when its file is edited by
// another process.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before a reload.
const DefaultDebounce = 250 * time.Millisecond

// Reloader re-reads the watched file. It reports whether state changed.
type Reloader interface {
	Reload(ctx context.Context) (bool, error)
	Path() string
}

// Watcher watches the directory of a Reloader's file.
type Watcher struct {
	target   Reloader
	debounce time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	reloads int
}

// New constructs a watcher. debounce <= 0 selects DefaultDebounce.
func New(target Reloader, debounce time.Duration, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{target: target, debounce: debounce, logger: logger}
}

// Reloads returns how many reloads changed the store state.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Run watches until ctx is done. The parent directory is watched since
// atomic writes replace the file and drop per-file watches.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	path, err := filepath.Abs(w.target.Path())
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w.logger.Info("watching content document", "path", path)

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		case <-timer.C:
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	changed, err := w.target.Reload(ctx)
	if err != nil {
		w.logger.Warn("content reload failed", "path", w.target.Path(), "error", err)
		return
	}
	if changed {
		w.mu.Lock()
		w.reloads++
		w.mu.Unlock()
	}
}
