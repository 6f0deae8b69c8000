// Package metrics exposes Prometheus gauges and counters over the
// supervisor's application/process state, fault dispatch, and reboot
// ledger. It is pure observability: nothing in internal/supervisor
// reads these values back, so metrics can never become load-bearing
// for control flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AppUp reports 1 for Running, 0 for Stopped, per application.
	AppUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "apcore_app_up",
			Help: "Application state (1=running, 0=stopped)",
		},
		[]string{"app"},
	)

	// ProcUp reports 1 for Running, 0.5 for Paused, 0 for Stopped.
	ProcUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "apcore_proc_state",
			Help: "Process state (1=running, 0.5=paused, 0=stopped)",
		},
		[]string{"app", "proc"},
	)

	// FaultActionsTotal counts each AppFaultAction dispatched, by kind.
	FaultActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apcore_fault_actions_total",
			Help: "Total number of app-level fault actions dispatched",
		},
		[]string{"app", "action"},
	)

	// WatchdogExpiriesTotal counts watchdog timeouts, by dispatched action.
	WatchdogExpiriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apcore_watchdog_expiries_total",
			Help: "Total number of watchdog timeouts handled, by resulting action",
		},
		[]string{"app", "proc", "action"},
	)

	// RebootFaultActive is set each time a process exit is handled: 1 if
	// the reboot-fault ledger then holds a record for that exiting
	// (app, proc), 0 otherwise. Grace-timer expiry does not update it.
	RebootFaultActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "apcore_reboot_fault_active",
			Help: "1 if the reboot-fault ledger held a record for the last handled process exit",
		},
	)

	// FreezePollSeconds observes how long the freeze-poll spin in the
	// two-phase termination sequence took to observe Frozen (or time out).
	FreezePollSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "apcore_freeze_poll_seconds",
			Help:    "Time spent polling the freezer for the Frozen state during termination",
			Buckets: []float64{.0005, .001, .002, .005, .01, .02},
		},
	)

	// ProcRSSBytes and ProcCPUPercent are filled in by the resource
	// sampler (resource.go).
	ProcRSSBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "apcore_proc_rss_bytes",
			Help: "Resident set size of a monitored process",
		},
		[]string{"app", "proc"},
	)

	ProcCPUPercent = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "apcore_proc_cpu_percent",
			Help: "CPU usage percent of a monitored process over the last sample interval",
		},
		[]string{"app", "proc"},
	)
)

// ObserveFreezePoll records how long a freeze poll took.
func ObserveFreezePoll(d time.Duration) {
	FreezePollSeconds.Observe(d.Seconds())
}

// SetAppState updates AppUp for one application.
func SetAppState(app string, running bool) {
	if running {
		AppUp.WithLabelValues(app).Set(1)
		return
	}
	AppUp.WithLabelValues(app).Set(0)
}

// SetProcState updates ProcUp for one process.
func SetProcState(app, proc string, value float64) {
	ProcUp.WithLabelValues(app, proc).Set(value)
}

// RecordFaultAction increments the counter for a dispatched AppFaultAction.
func RecordFaultAction(app, action string) {
	FaultActionsTotal.WithLabelValues(app, action).Inc()
}

// RecordWatchdogExpiry increments the counter for a dispatched watchdog action.
func RecordWatchdogExpiry(app, proc, action string) {
	WatchdogExpiriesTotal.WithLabelValues(app, proc, action).Inc()
}

// SetRebootFaultActive reflects whether the reboot ledger currently
// holds a record.
func SetRebootFaultActive(active bool) {
	if active {
		RebootFaultActive.Set(1)
		return
	}
	RebootFaultActive.Set(0)
}
