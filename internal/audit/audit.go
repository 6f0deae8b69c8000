// Package audit provides structured, append-only logging of the
// security- and lifecycle-relevant events the supervisor core produces:
// application start/stop, fault dispatch, watchdog expiry, reboot, and
// configuration reload.
package audit

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType categorizes an audit event.
type EventType string

const (
	EventAppStart       EventType = "app.start"
	EventAppStop        EventType = "app.stop"
	EventProcFault      EventType = "proc.fault"
	EventWatchdogExpiry EventType = "proc.watchdog_expiry"
	EventReboot         EventType = "system.reboot"
	EventConfigReload   EventType = "config.reload"
)

// Status is the outcome of the audited action.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusError   Status = "error"
)

// Resource identifies what the event is about: an application, or a
// process within one.
type Resource struct {
	App  string `json:"app"`
	Proc string `json:"proc,omitempty"`
}

// Event is a single audit log entry. ID gives every event a stable
// identity independent of timestamp collisions, so two events logged
// within the same clock tick (e.g. a fault and its resulting app-stop)
// remain individually referenceable in downstream log aggregation.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Resource  Resource               `json:"resource"`
	Status    Status                 `json:"status"`
	Message   string                 `json:"message"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Logger writes audit events through a structured logger. It can be
// disabled entirely, in which case Log is a no-op.
type Logger struct {
	logger  *slog.Logger
	enabled bool
}

// NewLogger creates an audit Logger backed by log, logging nothing if
// enabled is false.
func NewLogger(log *slog.Logger, enabled bool) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{logger: log.With("subsystem", "audit"), enabled: enabled}
}

// Log records one audit event.
func (l *Logger) Log(event Event) {
	if l == nil || !l.enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	eventJSON, _ := json.Marshal(event)
	args := []any{
		"event_id", event.ID,
		"event_type", event.EventType,
		"app", event.Resource.App,
		"proc", event.Resource.Proc,
		"status", event.Status,
		"message", event.Message,
		"event_json", string(eventJSON),
	}
	switch event.Status {
	case StatusFailure, StatusError:
		l.logger.Error("audit_event", args...)
	default:
		l.logger.Info("audit_event", args...)
	}
}

// AppStart logs an application transitioning to Running.
func (l *Logger) AppStart(app string) {
	l.Log(Event{
		EventType: EventAppStart,
		Resource:  Resource{App: app},
		Status:    StatusSuccess,
		Message:   "application started",
	})
}

// AppStop logs an application transitioning to Stopped.
func (l *Logger) AppStop(app, reason string) {
	l.Log(Event{
		EventType: EventAppStop,
		Resource:  Resource{App: app},
		Status:    StatusSuccess,
		Message:   "application stopped",
		Context:   map[string]interface{}{"reason": reason},
	})
}

// ProcFault logs a process fault and the action dispatched for it.
func (l *Logger) ProcFault(app, proc string, exitCode int, signaled bool, action string) {
	l.Log(Event{
		EventType: EventProcFault,
		Resource:  Resource{App: app, Proc: proc},
		Status:    StatusError,
		Message:   "process fault dispatched",
		Context: map[string]interface{}{
			"exit_code": exitCode,
			"signaled":  signaled,
			"action":    action,
		},
	})
}

// WatchdogExpiry logs a watchdog timeout and the action dispatched.
func (l *Logger) WatchdogExpiry(app, proc, action string) {
	l.Log(Event{
		EventType: EventWatchdogExpiry,
		Resource:  Resource{App: app, Proc: proc},
		Status:    StatusFailure,
		Message:   "watchdog expired",
		Context:   map[string]interface{}{"action": action},
	})
}

// Reboot logs a reboot-class fault escalation and whether the reboot
// command itself succeeded.
func (l *Logger) Reboot(app, proc string, err error) {
	status := StatusSuccess
	msg := "system reboot initiated"
	ctx := map[string]interface{}{}
	if err != nil {
		status = StatusError
		msg = "system reboot failed"
		ctx["error"] = err.Error()
	}
	l.Log(Event{
		EventType: EventReboot,
		Resource:  Resource{App: app, Proc: proc},
		Status:    status,
		Message:   msg,
		Context:   ctx,
	})
}

// ConfigReload logs a configuration tree reload.
func (l *Logger) ConfigReload(path string, err error) {
	status := StatusSuccess
	msg := "configuration reloaded"
	ctx := map[string]interface{}{"path": path}
	if err != nil {
		status = StatusError
		msg = "configuration reload failed"
		ctx["error"] = err.Error()
	}
	l.Log(Event{
		EventType: EventConfigReload,
		Resource:  Resource{},
		Status:    status,
		Message:   msg,
		Context:   ctx,
	})
}
