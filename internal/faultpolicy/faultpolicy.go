// Package faultpolicy holds the supervisor's pure decision functions:
// mapping a configured watchdog-action string to a WatchdogAction, and
// mapping an exit status to a ProcFaultAction given that process's
// configured policy.
//
// Nothing here touches a PID, a file, or a clock; every function is a
// plain value transform.
package faultpolicy

import "strings"

// ProcFaultAction is the remediation the supervisor applies in response
// to a process's exit, before any fault-limit override is applied.
type ProcFaultAction int

const (
	// ActionNoFault means the exit was expected/clean; no remediation.
	ActionNoFault ProcFaultAction = iota
	// ActionIgnore means the exit is logged only.
	ActionIgnore
	// ActionRestart means the process alone should be relaunched.
	ActionRestart
	// ActionRestartApp means the owning application should be stopped
	// then started again.
	ActionRestartApp
	// ActionStopApp means the owning application should be stopped and
	// left stopped.
	ActionStopApp
	// ActionReboot means the fault should escalate to a system reboot.
	ActionReboot
)

func (a ProcFaultAction) String() string {
	switch a {
	case ActionNoFault:
		return "no-fault"
	case ActionIgnore:
		return "ignore"
	case ActionRestart:
		return "restart"
	case ActionRestartApp:
		return "restart-app"
	case ActionStopApp:
		return "stop-app"
	case ActionReboot:
		return "reboot"
	default:
		return "unknown"
	}
}

// ParseProcFaultAction maps a configured string (app's per-exit-code and
// default/signaled fault config entries) to a ProcFaultAction. An empty
// or unrecognized string maps to ActionIgnore, the conservative choice
// for a malformed config entry.
func ParseProcFaultAction(s string) ProcFaultAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "no-fault", "nofault", "no_fault":
		return ActionNoFault
	case "ignore":
		return ActionIgnore
	case "restart":
		return ActionRestart
	case "restartapp", "restart_app", "restart-app":
		return ActionRestartApp
	case "stopapp", "stop_app", "stop-app":
		return ActionStopApp
	case "reboot":
		return ActionReboot
	default:
		return ActionIgnore
	}
}

// WatchdogAction is the remediation applied when a process's watchdog
// timer expires without being kicked.
type WatchdogAction int

const (
	// WatchdogNotFound means no action could be resolved for the process
	// (neither a per-process nor an app-level default was configured).
	WatchdogNotFound WatchdogAction = iota
	WatchdogIgnore
	WatchdogStop
	WatchdogRestart
	WatchdogRestartApp
	WatchdogStopApp
	WatchdogReboot
	// WatchdogError means the configured action string didn't parse.
	WatchdogError
)

func (a WatchdogAction) String() string {
	switch a {
	case WatchdogNotFound:
		return "not-found"
	case WatchdogIgnore:
		return "ignore"
	case WatchdogStop:
		return "stop"
	case WatchdogRestart:
		return "restart"
	case WatchdogRestartApp:
		return "restart-app"
	case WatchdogStopApp:
		return "stop-app"
	case WatchdogReboot:
		return "reboot"
	case WatchdogError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseWatchdogAction maps a configured string (e.g. from an app's
// watchdogAction config key, or a process's own watchdog policy) to a
// WatchdogAction. An empty or unrecognized string maps to
// WatchdogError, distinguishing "nothing configured" (WatchdogNotFound,
// the caller's zero value before lookup) from "configured, but
// garbage".
func ParseWatchdogAction(s string) WatchdogAction {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore":
		return WatchdogIgnore
	case "stop":
		return WatchdogStop
	case "restart":
		return WatchdogRestart
	case "restartapp", "restart_app", "restart-app":
		return WatchdogRestartApp
	case "stopapp", "stop_app", "stop-app":
		return WatchdogStopApp
	case "reboot":
		return WatchdogReboot
	default:
		return WatchdogError
	}
}

// ExitPolicy is a single process's configured fault policy: a map from
// exit code to the action it signifies, and a default action for any
// exit code not explicitly listed.
type ExitPolicy struct {
	// FaultActions maps specific non-zero exit codes to their configured
	// action. A process that always exits 1 to mean "give up" would map
	// {1: ActionStopApp} here, for example.
	FaultActions map[int]ProcFaultAction
	// Default is applied to any non-zero exit not present in
	// FaultActions.
	Default ProcFaultAction
	// SignaledDefault is applied when the process was killed by a signal
	// rather than exiting normally; Default/FaultActions are not
	// consulted in that case.
	SignaledDefault ProcFaultAction
}

// Classify maps a process's exit status to a ProcFaultAction under the
// given policy. A zero exit code with signaled=false is always
// ActionNoFault — a process that exits cleanly is never, by definition,
// a fault, regardless of configured policy.
func Classify(exitCode int, signaled bool, policy ExitPolicy) ProcFaultAction {
	if !signaled && exitCode == 0 {
		return ActionNoFault
	}
	if signaled {
		return policy.SignaledDefault
	}
	if action, ok := policy.FaultActions[exitCode]; ok {
		return action
	}
	return policy.Default
}
