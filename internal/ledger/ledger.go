// Package ledger implements the reboot-fault ledger: the single
// persistent record of which (app, proc) last caused a reboot-class
// fault, and the grace timer that clears it.
//
// The file is the only persistent state the supervisor owns. Contention
// is not expected (only the supervisor process touches it), so a plain
// create-or-replace write is used rather than a database; the record is
// file-backed because it must survive the reboot it records.
package ledger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// DefaultPath is the well-known location of the reboot-fault record.
const DefaultPath = "/opt/apcore/appRebootFault"

// GraceInterval is the window during which a recurring Reboot-class
// fault for the same (app, proc) is suppressed.
const GraceInterval = 120 * time.Second

// Ledger manages the reboot-fault record file and its grace timer.
type Ledger struct {
	path   string
	logger *slog.Logger

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Ledger backed by path. It does not touch the filesystem
// until Write or IsFor is called.
func New(path string, logger *slog.Logger) *Ledger {
	if path == "" {
		path = DefaultPath
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{path: path, logger: logger.With("subsystem", "reboot_ledger")}
}

// Write records that (app, proc) caused a reboot-class fault, and arms
// the grace timer. A write failure is logged and treated as
// best-effort: it never blocks the Reboot action from being returned
// to the caller, at the cost of under-enforcing the fault limit after
// an actual reboot.
func (l *Ledger) Write(app, proc string) error {
	content := fmt.Sprintf("%s/%s", app, proc)

	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			l.logger.Error("failed to create reboot ledger directory", "error", err)
			return fmt.Errorf("ledger: mkdir: %w", err)
		}
	}

	if err := os.WriteFile(l.path, append([]byte(content), 0), 0o700); err != nil {
		l.logger.Error("failed to write reboot ledger", "error", err)
		return fmt.Errorf("ledger: write: %w", err)
	}

	l.armGraceTimer()
	return nil
}

// IsFor reports whether the ledger currently holds a record matching
// (app, proc). A missing file is not an error: it simply means no
// reboot-class fault is currently being tracked.
func (l *Ledger) IsFor(app, proc string) bool {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("failed to read reboot ledger", "error", err)
		}
		return false
	}
	want := fmt.Sprintf("%s/%s", app, proc)
	return strings.TrimRight(string(data), "\x00\n") == want
}

// armGraceTimer (re)starts the one-shot timer that unlinks the ledger
// file: armed at supervisor init when a record survived a reboot, and
// re-armed each time a new reboot-class fault is recorded.
func (l *Ledger) armGraceTimer() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.AfterFunc(GraceInterval, l.expireGrace)
}

// StartGraceTimerIfRecordExists is called once at supervisor
// initialization: if a reboot-fault record survived across a reboot,
// the grace timer must resume counting down from a fresh interval
// rather than assume it already expired mid-boot.
func (l *Ledger) StartGraceTimerIfRecordExists() {
	if _, err := os.Stat(l.path); err == nil {
		l.armGraceTimer()
	}
}

func (l *Ledger) expireGrace() {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		l.logger.Warn("failed to remove expired reboot ledger", "error", err)
	}
	l.mu.Lock()
	l.timer = nil
	l.mu.Unlock()
}

// Stop cancels any pending grace timer without touching the file. Used
// during supervisor shutdown so a background timer doesn't fire after
// the process is gone (it wouldn't matter in practice since the process
// is exiting, but it keeps goroutine/timer accounting honest in tests).
func (l *Ledger) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}
