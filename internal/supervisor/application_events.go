package supervisor

import (
	"context"
	"syscall"
	"time"

	"github.com/apcore/apcore/internal/faultpolicy"
	"github.com/apcore/apcore/internal/launcher"
	"github.com/apcore/apcore/internal/metrics"
)

// Sigchild handles one process's exit: classify it, apply the
// fault-limit override, dispatch the per-process remediation, and
// return the AppFaultAction the Supervisor must enact. It never
// panics or errors; collaborator failures are logged and the
// transition continues best-effort.
func (a *Application) Sigchild(pid int, status launcher.ExitStatus) AppFaultAction {
	proc := a.findByPID(pid)
	if proc == nil {
		return AppActionIgnore
	}

	prevFaultTime := proc.FaultTime()
	var action faultpolicy.ProcFaultAction
	if proc.takeStopping() {
		// The exit was a kill this supervisor itself requested, not a
		// fault, whatever the wait status says.
		action = faultpolicy.ActionNoFault
	} else {
		action = faultpolicy.Classify(status.Code, status.Signaled, proc.Policy)
	}
	now := time.Now()
	if action != faultpolicy.ActionNoFault {
		proc.setFaultTime(now)
	}

	if a.faultLimitOverride(action, proc, prevFaultTime, now) {
		action = faultpolicy.ActionStopApp
	}

	result := a.dispatchFault(proc, action)
	a.collab.Audit.ProcFault(a.name, proc.Name, status.Code, status.Signaled, action.String())
	metrics.RecordFaultAction(a.name, result.String())
	metrics.SetRebootFaultActive(a.collab.Ledger.IsFor(a.name, proc.Name))

	if empty, _ := a.collab.Freezer.IsEmpty(a.name); empty {
		a.finishStop()
	}
	return result
}

// faultLimitOverride reports whether this fault must be downgraded to
// StopApp: a Restart/RestartApp fault inside the fault-limit window, or
// a Reboot fault for the same (app, proc) the reboot ledger already
// records.
func (a *Application) faultLimitOverride(action faultpolicy.ProcFaultAction, proc *ProcessObject, prevFaultTime, now time.Time) bool {
	switch action {
	case faultpolicy.ActionRestart, faultpolicy.ActionRestartApp:
		return faultLimitReached(action, prevFaultTime, now)
	case faultpolicy.ActionReboot:
		return a.collab.Ledger.IsFor(a.name, proc.Name)
	default:
		return false
	}
}

func (a *Application) markProcStopped(proc *ProcessObject) {
	proc.setState(ProcStopped)
	metrics.SetProcState(a.name, proc.Name, 0)
}

func (a *Application) dispatchFault(proc *ProcessObject, action faultpolicy.ProcFaultAction) AppFaultAction {
	switch action {
	case faultpolicy.ActionNoFault:
		a.markProcStopped(proc)
		if fn := proc.takeStopHandler(); fn != nil {
			if !fn() {
				return AppActionStopApp
			}
		}
		return AppActionIgnore

	case faultpolicy.ActionIgnore:
		a.markProcStopped(proc)
		a.log.Info("process exited, ignored by policy", "proc", proc.Name)
		return AppActionIgnore

	case faultpolicy.ActionRestart:
		a.markProcStopped(proc)
		if err := a.launchProcess(context.Background(), proc); err != nil {
			a.log.Error("restart failed", "proc", proc.Name, "error", err)
			return AppActionStopApp
		}
		return AppActionIgnore

	case faultpolicy.ActionRestartApp:
		a.markProcStopped(proc)
		return AppActionRestartApp

	case faultpolicy.ActionStopApp:
		a.markProcStopped(proc)
		return AppActionStopApp

	case faultpolicy.ActionReboot:
		a.markProcStopped(proc)
		if err := a.collab.Ledger.Write(a.name, proc.Name); err != nil {
			a.log.Warn("reboot ledger write failed", "error", err)
		}
		return AppActionReboot

	default:
		return AppActionIgnore
	}
}

// WatchdogExpired handles a watchdog timeout for pid: resolve the
// configured action (per-process, then the app-level default, then a
// synthesized Restart) and either handle it here or hand the app-level
// remediation back to the Supervisor.
func (a *Application) WatchdogExpired(pid int) WatchdogHandlerResult {
	proc := a.findByPID(pid)
	if proc == nil {
		return WatchdogResultNotFound
	}

	action := proc.WatchdogAction
	if action == faultpolicy.WatchdogNotFound || action == faultpolicy.WatchdogError {
		action = a.watchdogAction
	}
	if action == faultpolicy.WatchdogNotFound || action == faultpolicy.WatchdogError {
		a.log.Warn("no watchdog action configured, synthesizing restart", "proc", proc.Name)
		action = faultpolicy.WatchdogRestart
	}

	a.collab.Audit.WatchdogExpiry(a.name, proc.Name, action.String())
	metrics.RecordWatchdogExpiry(a.name, proc.Name, action.String())

	switch action {
	case faultpolicy.WatchdogIgnore:
		a.log.Info("watchdog expiry ignored by policy", "proc", proc.Name)
		return WatchdogHandled

	case faultpolicy.WatchdogStop:
		a.stopProc(proc)
		return WatchdogHandled

	case faultpolicy.WatchdogRestart:
		proc.SetStopHandler(func() bool {
			return a.launchProcess(context.Background(), proc) == nil
		})
		a.stopProc(proc)
		return WatchdogHandled

	case faultpolicy.WatchdogRestartApp:
		return WatchdogResultRestartApp

	case faultpolicy.WatchdogStopApp:
		return WatchdogResultStopApp

	case faultpolicy.WatchdogReboot:
		return WatchdogResultReboot

	default:
		a.log.Warn("watchdog action error", "proc", proc.Name)
		return WatchdogHandled
	}
}

// killFunc is the signal primitive stopProc uses, a package-level seam
// so tests can exercise the watchdog path without signaling a real pid.
var killFunc = syscall.Kill

// stopProc marks proc as deliberately stopping and sends it SIGKILL
// directly: the targeted single-process kill the watchdog path uses,
// distinct from the app-wide freezer group kill.
func (a *Application) stopProc(proc *ProcessObject) {
	proc.markStopping()
	proc.setState(ProcPaused)
	metrics.SetProcState(a.name, proc.Name, 0.5)
	if pid := proc.PID(); pid != 0 {
		if err := killFunc(pid, syscall.SIGKILL); err != nil {
			a.log.Warn("stopProc signal failed", "proc", proc.Name, "error", err)
		}
	}
}

func (a *Application) findByPID(pid int) *ProcessObject {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.processes {
		if p.PID() == pid {
			return p
		}
	}
	return nil
}
