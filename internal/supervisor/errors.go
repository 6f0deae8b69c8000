package supervisor

import "errors"

// Sentinel error kinds. Stop, Sigchild and WatchdogExpired never fail.
// Of these kinds, only ErrAlreadyRunning (Start, DeleteApp) and
// ErrNotFound (StopApp, DeleteApp, ProcOutput) are returned by this
// package; construction failures wrap the underlying error instead.
var (
	ErrConfigMissing        = errors.New("supervisor: config missing")
	ErrConfigOverflow       = errors.New("supervisor: config value exceeds bound")
	ErrResolveFailure       = errors.New("supervisor: user/group resolution failed")
	ErrSandboxFailure       = errors.New("supervisor: sandbox failure")
	ErrResourceLimitFailure = errors.New("supervisor: resource limit failure")
	ErrLaunchFailure        = errors.New("supervisor: launch failure")
	ErrAlreadyRunning       = errors.New("application already running")
	ErrAlreadyStopped       = errors.New("application already stopped")
	ErrNotFound             = errors.New("supervisor: not found")
	ErrFreezerFault         = errors.New("supervisor: freezer fault")
	ErrLedgerIOFailure      = errors.New("supervisor: reboot ledger i/o failure")
)
