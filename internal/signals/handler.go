// Package signals owns child reaping for the case where the supervisor
// runs as init (PID 1) in a container or on a bare embedded image. The
// launcher reaps its own children through Wait; anything reparented to
// us from a double-forking application has nobody else to collect it.
package signals

import (
	"context"
	"log/slog"
	"os"
	"syscall"
	"time"
)

// waitFn matches syscall.Wait4, replaceable in tests.
type waitFn func(pid int, wstatus *syscall.WaitStatus, options int, rusage *syscall.Rusage) (int, error)

// Reaper periodically collects orphaned zombie children.
type Reaper struct {
	interval time.Duration
	log      *slog.Logger
	wait     waitFn
}

// NewReaper returns a Reaper that sweeps every interval (default 1s).
func NewReaper(interval time.Duration, log *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{interval: interval, log: log.With("subsystem", "reaper"), wait: syscall.Wait4}
}

// Run sweeps for zombies until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep collects every currently waitable child and returns how many it
// reaped. Children the launcher is already waiting on are not returned
// by WNOHANG waits here because the launcher's Wait has them.
func (r *Reaper) sweep() int {
	reaped := 0
	for {
		var status syscall.WaitStatus
		pid, err := r.wait(-1, &status, syscall.WNOHANG, nil)
		if err != nil || pid <= 0 {
			return reaped
		}
		reaped++
		r.log.Debug("reaped orphaned child", "pid", pid, "status", int(status))
	}
}

// RunningAsInit reports whether this process is PID 1 and therefore
// responsible for orphan reaping.
func RunningAsInit() bool {
	return os.Getpid() == 1
}
