package supervisor

import (
	"sync"
	"time"

	"github.com/apcore/apcore/internal/faultpolicy"
	"github.com/apcore/apcore/internal/launcher"
)

// ProcessObject is the per-process state an Application owns exclusively.
// It tracks the launcher-side process handle, the last time this process
// faulted, and the optional stop handler the watchdog path uses to
// request a restart on the process's next clean exit.
type ProcessObject struct {
	Name       string
	ConfigPath string
	Exec       string
	Args       []string

	Policy         faultpolicy.ExitPolicy
	WatchdogAction faultpolicy.WatchdogAction

	mu          sync.Mutex
	state       ProcState
	pid         int
	faultTime   time.Time
	stopping    bool
	stopHandler func() bool
	handle      *launcher.Process
}

func newProcessObject(name, configPath, exec string, args []string, policy faultpolicy.ExitPolicy, watchdog faultpolicy.WatchdogAction) *ProcessObject {
	return &ProcessObject{
		Name:           name,
		ConfigPath:     configPath,
		Exec:           exec,
		Args:           args,
		Policy:         policy,
		WatchdogAction: watchdog,
		state:          ProcStopped,
	}
}

func (p *ProcessObject) State() ProcState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *ProcessObject) setState(s ProcState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func (p *ProcessObject) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *ProcessObject) setPID(pid int) {
	p.mu.Lock()
	p.pid = pid
	p.mu.Unlock()
}

func (p *ProcessObject) setHandle(h *launcher.Process) {
	p.mu.Lock()
	p.handle = h
	p.mu.Unlock()
}

// RecentOutput returns the process's most recently captured stdout/stderr
// lines, or nil if it has never been launched.
func (p *ProcessObject) RecentOutput() []string {
	p.mu.Lock()
	h := p.handle
	p.mu.Unlock()
	if h == nil {
		return nil
	}
	return h.RecentOutput()
}

// FaultTime returns the timestamp of this process's last classified
// fault, the zero Time if it has never faulted.
func (p *ProcessObject) FaultTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.faultTime
}

func (p *ProcessObject) setFaultTime(t time.Time) {
	p.mu.Lock()
	p.faultTime = t
	p.mu.Unlock()
}

// markStopping records that the supervisor itself is killing this
// process, so its upcoming exit is a deliberate kill rather than a
// fault.
func (p *ProcessObject) markStopping() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
}

// takeStopping returns and clears the stopping mark.
func (p *ProcessObject) takeStopping() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stopping
	p.stopping = false
	return s
}

// SetStopHandler installs the callback invoked the next time this
// process exits without fault. It reports whether the restart it
// attempts succeeded; failure downgrades the fault action to StopApp.
// Only the watchdog path sets a non-nil handler.
func (p *ProcessObject) SetStopHandler(fn func() bool) {
	p.mu.Lock()
	p.stopHandler = fn
	p.mu.Unlock()
}

// takeStopHandler returns and clears the stop handler, so it fires at
// most once.
func (p *ProcessObject) takeStopHandler() func() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn := p.stopHandler
	p.stopHandler = nil
	return fn
}

// clearStopHandler drops any pending stop handler without invoking it,
// used whenever the supervisor itself initiates a kill.
func (p *ProcessObject) clearStopHandler() {
	p.mu.Lock()
	p.stopHandler = nil
	p.mu.Unlock()
}
