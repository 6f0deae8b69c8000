package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcLister is the subset of the supervisor's registry the resource
// sampler needs: every application name and, per application, the
// process name to PID pairs currently believed to be running. The
// sampler does not import internal/supervisor directly so it stays a
// leaf package; internal/supervisor wires a closure over its own state
// into this type.
type ProcLister func() map[string]map[string]int32

// Sampler periodically samples RSS and CPU percent for every monitored
// PID via gopsutil and republishes them as metrics gauges. Entirely
// advisory: a sampling error for one PID is logged and skipped, never
// propagated to the supervisor.
type Sampler struct {
	list     ProcLister
	interval time.Duration
	log      *slog.Logger

	cpuTrackers map[int32]*process.Process
}

// NewSampler constructs a Sampler. interval defaults to 10s if zero or
// negative.
func NewSampler(list ProcLister, interval time.Duration, log *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sampler{
		list:        list,
		interval:    interval,
		log:         log.With("subsystem", "metrics_sampler"),
		cpuTrackers: make(map[int32]*process.Process),
	}
}

// Run samples on a ticker until ctx is cancelled.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleOnce()
		}
	}
}

func (s *Sampler) sampleOnce() {
	for app, procs := range s.list() {
		for name, pid := range procs {
			if pid <= 0 {
				continue
			}
			tracker, ok := s.cpuTrackers[pid]
			if !ok {
				p, err := process.NewProcess(pid)
				if err != nil {
					s.log.Warn("resource sampler: open process failed", "app", app, "proc", name, "pid", pid, "error", err)
					continue
				}
				tracker = p
				s.cpuTrackers[pid] = tracker
			}

			if memInfo, err := tracker.MemoryInfo(); err == nil && memInfo != nil {
				ProcRSSBytes.WithLabelValues(app, name).Set(float64(memInfo.RSS))
			}
			if cpuPct, err := tracker.CPUPercent(); err == nil {
				ProcCPUPercent.WithLabelValues(app, name).Set(cpuPct)
			}
		}
	}
}
