// Package watcher notices changes to the application catalogue file on
// disk and asks the supervisor to reload its configuration tree. It
// watches the file's parent directory rather than the file itself, so
// editors and config-management tools that replace the file by
// write-to-temp-then-rename are still observed.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultQuiet is the settle period after a change before the reload
// fires; further changes inside the window restart it, so a burst of
// writes produces one reload.
const DefaultQuiet = 500 * time.Millisecond

// Watcher triggers a reload callback when the watched file changes.
type Watcher struct {
	path     string // absolute path of the catalogue file
	dir      string
	onChange func(path string) error
	quiet    time.Duration
	log      *slog.Logger
	fs       *fsnotify.Watcher

	mu     sync.Mutex
	settle *time.Timer
}

// New builds a Watcher over path. onChange is invoked (from the watch
// goroutine) after changes to the file have settled for the quiet
// period.
func New(path string, quiet time.Duration, log *slog.Logger, onChange func(path string) error) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("watcher: path required")
	}
	if onChange == nil {
		return nil, fmt.Errorf("watcher: change callback required")
	}
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if log == nil {
		log = slog.Default()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("watcher: resolve %s: %w", path, err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watcher: %w", err)
	}
	return &Watcher{
		path:     abs,
		dir:      filepath.Dir(abs),
		onChange: onChange,
		quiet:    quiet,
		log:      log.With("subsystem", "config_watcher"),
		fs:       fs,
	}, nil
}

// Watch registers the directory watch and runs the event loop in a
// goroutine until ctx is cancelled or the Watcher is closed.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.fs.Add(w.dir); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", w.dir, err)
	}
	w.log.Info("watching catalogue", "path", w.path, "quiet", w.quiet)
	go w.loop(ctx)
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			w.scheduleReload(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", "error", err)
		}
	}
}

// relevant filters the directory-wide event stream down to mutations of
// the catalogue file itself.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

// scheduleReload (re)arms the settle timer; the reload runs once the
// file has stopped changing for the quiet period.
func (w *Watcher) scheduleReload(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.settle != nil {
		w.settle.Stop()
	}
	w.log.Debug("catalogue changed", "op", ev.Op.String())
	w.settle = time.AfterFunc(w.quiet, w.fireReload)
}

func (w *Watcher) fireReload() {
	if err := w.onChange(w.path); err != nil {
		w.log.Error("catalogue reload failed", "error", err)
		return
	}
	w.log.Info("catalogue reloaded", "path", w.path)
}

// Close stops the underlying filesystem watch and any pending reload.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.settle != nil {
		w.settle.Stop()
	}
	w.mu.Unlock()
	return w.fs.Close()
}
