// Package supervisor implements the application/process lifecycle
// engine: the two-level state machine, fault-action dispatch,
// fault-limit accounting, the watchdog-timeout handler, and the
// two-phase soft/hard termination protocol. The Supervisor owns a
// registry of Applications and a single event-dispatch loop;
// Applications own their ProcessObjects and drive the sandbox,
// resource-limit, label, freezer, user-database and launcher
// collaborators, which carry no policy of their own.
package supervisor

import (
	"log/slog"
	"time"

	"github.com/apcore/apcore/internal/audit"
	"github.com/apcore/apcore/internal/faultpolicy"
	"github.com/apcore/apcore/internal/freezer"
	"github.com/apcore/apcore/internal/identity"
	"github.com/apcore/apcore/internal/launcher"
	"github.com/apcore/apcore/internal/ledger"
	"github.com/apcore/apcore/internal/reslimit"
	"github.com/apcore/apcore/internal/sandbox"
	"github.com/apcore/apcore/internal/smack"
)

// AppFaultAction is the remediation the Supervisor must enact after an
// Application has processed a process-exit or watchdog event. Ignore is
// the zero value and default.
type AppFaultAction int

const (
	AppActionIgnore AppFaultAction = iota
	AppActionRestartApp
	AppActionStopApp
	AppActionReboot
)

func (a AppFaultAction) String() string {
	switch a {
	case AppActionIgnore:
		return "ignore"
	case AppActionRestartApp:
		return "restart_app"
	case AppActionStopApp:
		return "stop_app"
	case AppActionReboot:
		return "reboot"
	default:
		return "unknown"
	}
}

// WatchdogHandlerResult is what Application.WatchdogExpired returns:
// WatchdogHandled when it has fully handled the event itself,
// WatchdogResultNotFound when the pid is not one of its processes, or
// the application-level action the Supervisor must take.
type WatchdogHandlerResult int

const (
	WatchdogHandled WatchdogHandlerResult = iota
	WatchdogResultRestartApp
	WatchdogResultStopApp
	WatchdogResultReboot
	WatchdogResultNotFound
)

// AppState is the Application-level lifecycle state.
type AppState int

const (
	AppStopped AppState = iota
	AppRunning
)

func (s AppState) String() string {
	if s == AppRunning {
		return "running"
	}
	return "stopped"
}

// ProcState is the process-level state Application.ProcState reports.
type ProcState int

const (
	ProcStopped ProcState = iota
	ProcRunning
	ProcPaused
)

func (s ProcState) String() string {
	switch s {
	case ProcRunning:
		return "running"
	case ProcPaused:
		return "paused"
	default:
		return "stopped"
	}
}

// KillTimeout is the soft-kill grace period before escalation to
// SIGKILL.
const KillTimeout = 300 * time.Millisecond

// FaultLimitWindow is how recently a process may have last faulted
// before another Restart or RestartApp class fault counts as flapping.
const FaultLimitWindow = 10 * time.Second

// MaxSupplementaryGIDs bounds the supplementary-gid list: the count of
// groups stored may reach the cap, one more fails app construction.
const MaxSupplementaryGIDs = 32

// Collaborators bundles every external dependency an Application
// needs. AppsRoot is the fixed root under which install paths are
// computed; it is not itself a collaborator but travels with them.
type Collaborators struct {
	Sandbox        sandbox.Sandbox
	ResourceLimits reslimit.ResourceLimiter
	Labels         smack.LabelSystem
	Freezer        freezer.Freezer
	Users          identity.UserDB
	Launcher       launcher.Launcher
	Ledger         *ledger.Ledger
	Audit          *audit.Logger
	Logger         *slog.Logger
	AppsRoot       string
}

// faultLimitReached reports whether the action's fault window makes
// this fault count as flapping, given the prior and current fault
// timestamps.
func faultLimitReached(action faultpolicy.ProcFaultAction, prevFaultTime, now time.Time) bool {
	switch action {
	case faultpolicy.ActionRestart, faultpolicy.ActionRestartApp:
		return !now.IsZero() && !prevFaultTime.IsZero() && now.Sub(prevFaultTime) <= FaultLimitWindow
	default:
		return false
	}
}
