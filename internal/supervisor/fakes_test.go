package supervisor

import (
	"context"
	"fmt"
	"sync"
	"syscall"

	"github.com/apcore/apcore/internal/freezer"
	"github.com/apcore/apcore/internal/launcher"
	"github.com/apcore/apcore/internal/reslimit"
	"github.com/apcore/apcore/internal/sandbox"
	"github.com/apcore/apcore/internal/smack"
)

// fakeLauncher lets tests control process exit timing precisely instead
// of launching real OS processes.
type fakeLauncher struct {
	mu      sync.Mutex
	nextPID int
	exits   map[int]chan launcher.ExitStatus
	failOn  map[string]error // spec name -> error to return from Start
	started []string
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		nextPID: 1000,
		exits:   make(map[int]chan launcher.ExitStatus),
		failOn:  make(map[string]error),
	}
}

func (f *fakeLauncher) Start(spec launcher.Spec) (*launcher.Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failOn[spec.Name]; err != nil {
		return nil, err
	}
	f.nextPID++
	pid := f.nextPID
	f.exits[pid] = make(chan launcher.ExitStatus, 1)
	f.started = append(f.started, spec.Name)
	return launcher.NewProcess(pid), nil
}

func (f *fakeLauncher) Wait(ctx context.Context, p *launcher.Process) (launcher.ExitStatus, error) {
	f.mu.Lock()
	ch := f.exits[p.PID()]
	f.mu.Unlock()
	if ch == nil {
		return launcher.ExitStatus{}, fmt.Errorf("unknown pid %d", p.PID())
	}
	select {
	case status := <-ch:
		return status, nil
	case <-ctx.Done():
		return launcher.ExitStatus{}, ctx.Err()
	}
}

// finish simulates pid exiting with status, releasing the Wait call.
func (f *fakeLauncher) finish(pid int, status launcher.ExitStatus) {
	f.mu.Lock()
	ch := f.exits[pid]
	f.mu.Unlock()
	ch <- status
}

func (f *fakeLauncher) startedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.started))
	copy(out, f.started)
	return out
}

// fakeSandbox, fakeLimits, fakeLabels, fakeFreezer are in-memory
// collaborator fakes recording calls where a test needs to assert on
// them.
type fakeSandbox struct {
	mu      sync.Mutex
	setupN  int
	removeN int
}

func (f *fakeSandbox) GetPath(appName string) (string, error) { return "/sandboxes/" + appName, nil }
func (f *fakeSandbox) Setup(app sandbox.AppSpec) error {
	f.mu.Lock()
	f.setupN++
	f.mu.Unlock()
	return nil
}
func (f *fakeSandbox) Remove(app sandbox.AppSpec) error {
	f.mu.Lock()
	f.removeN++
	f.mu.Unlock()
	return nil
}
func (f *fakeSandbox) removes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeN
}

type fakeLimits struct{}

func (fakeLimits) Apply(appName string, limits reslimit.Limits) error { return nil }
func (fakeLimits) AddProcess(appName string, pid int) error           { return nil }
func (fakeLimits) Clear(appName string) error                         { return nil }

type fakeLabels struct {
	mu      sync.Mutex
	rules   []smack.Rule
	revoked []smack.Label
}

func (f *fakeLabels) SetLabel(path string, label smack.Label) error { return nil }
func (f *fakeLabels) SetRule(rule smack.Rule) error {
	f.mu.Lock()
	f.rules = append(f.rules, rule)
	f.mu.Unlock()
	return nil
}
func (f *fakeLabels) RevokeSubject(subject smack.Label) error {
	f.mu.Lock()
	f.revoked = append(f.revoked, subject)
	f.mu.Unlock()
	return nil
}
func (f *fakeLabels) hasRule(subject, object smack.Label, access smack.Access) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rules {
		if r.Subject == subject && r.Object == object && r.Access == access {
			return true
		}
	}
	return false
}
func (f *fakeLabels) revokedSubjects() []smack.Label {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]smack.Label, len(f.revoked))
	copy(out, f.revoked)
	return out
}

// fakeFreezer defaults every application group to empty, so Stop and
// Sigchild drive straight to Stopped without the kill timer needing to
// fire; tests exercising the escalation path mark the group non-empty
// and inspect the signals sent.
type fakeFreezer struct {
	mu      sync.Mutex
	empty   map[string]bool
	signals []syscall.Signal
}

func newFakeFreezer() *fakeFreezer {
	return &fakeFreezer{empty: make(map[string]bool)}
}

func (f *fakeFreezer) Freeze(appName string) error { return nil }
func (f *fakeFreezer) Thaw(appName string) error   { return nil }
func (f *fakeFreezer) State(appName string) (freezer.State, error) {
	return freezer.Frozen, nil
}
func (f *fakeFreezer) SendSignal(appName string, sig syscall.Signal) error {
	f.mu.Lock()
	f.signals = append(f.signals, sig)
	f.mu.Unlock()
	return nil
}
func (f *fakeFreezer) IsEmpty(appName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.empty[appName]; ok {
		return v, nil
	}
	return true, nil
}
func (f *fakeFreezer) setEmpty(appName string, v bool) {
	f.mu.Lock()
	f.empty[appName] = v
	f.mu.Unlock()
}
func (f *fakeFreezer) sentSignals() []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]syscall.Signal, len(f.signals))
	copy(out, f.signals)
	return out
}
