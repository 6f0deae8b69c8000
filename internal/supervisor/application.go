package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/apcore/apcore/internal/configtree"
	"github.com/apcore/apcore/internal/faultpolicy"
	"github.com/apcore/apcore/internal/freezer"
	"github.com/apcore/apcore/internal/launcher"
	"github.com/apcore/apcore/internal/metrics"
	"github.com/apcore/apcore/internal/reslimit"
	"github.com/apcore/apcore/internal/sandbox"
	"github.com/apcore/apcore/internal/smack"
	"github.com/apcore/apcore/internal/tracing"
)

// Application is one supervised application: its identity, its
// processes, and the app-level half of the lifecycle state machine.
type Application struct {
	name        string
	cfgPath     string
	configTree  *configtree.Tree
	sandboxed   bool
	installPath string
	sandboxPath string

	uid, gid          uint32
	supplementaryGIDs []uint32
	watchdogAction    faultpolicy.WatchdogAction
	limits            reslimit.Limits

	collab *Collaborators
	log    *slog.Logger

	mu        sync.Mutex
	state     AppState
	processes []*ProcessObject
	killTimer *time.Timer

	// onExit is invoked by a process's own watcher goroutine once the
	// launcher has reaped it; it is how Application re-enters its own
	// event handling on the Supervisor's single dispatch goroutine. The
	// Supervisor supplies it so it can route AppFaultAction without the
	// Application importing the Supervisor.
	onExit func(pid int, status launcher.ExitStatus)
}

// NewApplication constructs an Application from its config subtree.
// Any failure here releases partial state (nothing was started yet, so
// nothing needs undoing beyond returning the error) and yields no
// Application.
func NewApplication(cfgPath string, cfg *configtree.Tree, collab *Collaborators) (*Application, error) {
	name := filepath.Base(cfgPath)
	log := collab.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("app", name)

	txn, err := cfg.Read()
	if err != nil {
		return nil, fmt.Errorf("supervisor: open config transaction: %w", err)
	}
	defer txn.Release()

	if _, err := txn.Node(cfgPath); err != nil {
		return nil, fmt.Errorf("supervisor: app config %s: %w", cfgPath, err)
	}

	sandboxed := true
	if n, err := txn.Node(cfgPath + "/sandboxed"); err == nil {
		sandboxed = n.Bool(true)
	}

	a := &Application{
		name:       name,
		cfgPath:    cfgPath,
		configTree: cfg,
		sandboxed:  sandboxed,
		collab:     collab,
		log:        log,
		state:      AppStopped,
	}

	if sandboxed {
		if err := a.resolveIdentity(txn); err != nil {
			return nil, err
		}
	}

	a.installPath = filepath.Join(collab.AppsRoot, name)

	if sandboxed {
		path, err := collab.Sandbox.GetPath(name)
		if err != nil {
			return nil, fmt.Errorf("supervisor: sandbox path: %w", err)
		}
		a.sandboxPath = path
	}

	a.watchdogAction = faultpolicy.WatchdogNotFound
	if n, err := txn.Node(cfgPath + "/watchdogAction"); err == nil {
		a.watchdogAction = faultpolicy.ParseWatchdogAction(n.String())
	}

	if n, err := txn.Node(cfgPath + "/maxMemoryBytes"); err == nil {
		a.limits.MemoryMaxBytes = int64(n.Int(0))
	}
	if n, err := txn.Node(cfgPath + "/cpuShare"); err == nil {
		a.limits.CPUPercent = n.Int(0)
	}
	if n, err := txn.Node(cfgPath + "/maxProcesses"); err == nil {
		a.limits.PidsMax = n.Int(0)
	}

	procsNode, err := txn.Node(cfgPath + "/procs")
	if err == nil {
		for _, child := range procsNode.Children() {
			proc, err := newProcessFromConfig(child)
			if err != nil {
				return nil, fmt.Errorf("supervisor: process %s: %w", child.Name(), err)
			}
			a.processes = append(a.processes, proc)
		}
	}

	return a, nil
}

// resolveIdentity resolves the sandboxed app's uid, primary gid and
// supplementary gids, creating configured groups that don't exist yet.
func (a *Application) resolveIdentity(txn *configtree.ReadTxn) error {
	userName, err := a.collab.Users.AppToUserName(a.name)
	if err != nil {
		return fmt.Errorf("supervisor: resolve user name: %w", err)
	}
	uid, gid, err := a.collab.Users.IDsOf(userName)
	if err != nil {
		return fmt.Errorf("supervisor: resolve uid/gid for %s: %w", userName, err)
	}
	a.uid, a.gid = uid, gid

	groupsNode, err := txn.Node(a.cfgPath + "/groups")
	if err != nil {
		return nil // no supplementary groups configured
	}
	for _, child := range groupsNode.Children() {
		groupName := child.Name()
		if groupName == "" {
			continue
		}
		gid, err := a.collab.Users.CreateGroup(groupName)
		if err != nil {
			return fmt.Errorf("supervisor: create group %s: %w", groupName, err)
		}
		a.supplementaryGIDs = append(a.supplementaryGIDs, gid)
		if len(a.supplementaryGIDs) > MaxSupplementaryGIDs {
			return fmt.Errorf("supervisor: supplementary group count exceeds cap of %d", MaxSupplementaryGIDs)
		}
	}
	return nil
}

func childByName(n *configtree.Node, name string) (*configtree.Node, error) {
	for _, c := range n.Children() {
		if c.Name() == name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("child %q not found", name)
}

func newProcessFromConfig(node *configtree.Node) (*ProcessObject, error) {
	execNode, err := childByName(node, "exec")
	if err != nil {
		return nil, fmt.Errorf("missing exec")
	}
	exec := execNode.String()

	var args []string
	if argsNode, err := childByName(node, "args"); err == nil {
		for _, c := range argsNode.Children() {
			args = append(args, c.String())
		}
	}

	policy := faultpolicy.ExitPolicy{FaultActions: map[int]faultpolicy.ProcFaultAction{}}
	if n, err := childByName(node, "defaultFault"); err == nil {
		policy.Default = faultpolicy.ParseProcFaultAction(n.String())
	}
	if n, err := childByName(node, "signaledFault"); err == nil {
		policy.SignaledDefault = faultpolicy.ParseProcFaultAction(n.String())
	}
	if faultsNode, err := childByName(node, "faultActions"); err == nil {
		for _, c := range faultsNode.Children() {
			var code int
			if _, err := fmt.Sscanf(c.Name(), "%d", &code); err == nil {
				policy.FaultActions[code] = faultpolicy.ParseProcFaultAction(c.String())
			}
		}
	}

	watchdog := faultpolicy.WatchdogNotFound
	if n, err := childByName(node, "watchdogAction"); err == nil {
		watchdog = faultpolicy.ParseWatchdogAction(n.String())
	}

	return newProcessObject(node.Name(), node.Name(), exec, args, policy, watchdog), nil
}

func (a *Application) Name() string        { return a.name }
func (a *Application) UID() uint32         { return a.uid }
func (a *Application) GID() uint32         { return a.gid }
func (a *Application) Sandboxed() bool     { return a.sandboxed }
func (a *Application) InstallPath() string { return a.installPath }
func (a *Application) SandboxPath() string { return a.sandboxPath }
func (a *Application) ConfigPath() string  { return a.cfgPath }

// Processes returns the application's process objects in config order.
func (a *Application) Processes() []*ProcessObject {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*ProcessObject, len(a.processes))
	copy(out, a.processes)
	return out
}

func (a *Application) State() AppState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// ProcState returns the reported state of the named process, Stopped if
// the application itself is Stopped.
func (a *Application) ProcState(name string) ProcState {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == AppStopped {
		return ProcStopped
	}
	for _, p := range a.processes {
		if p.Name == name {
			return p.State()
		}
	}
	return ProcStopped
}

// ProcOutput returns the named process's recently captured output lines,
// or ErrNotFound if no such process exists in this application.
func (a *Application) ProcOutput(name string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.processes {
		if p.Name == name {
			return p.RecentOutput(), nil
		}
	}
	return nil, ErrNotFound
}

func (a *Application) sandboxSpec() sandbox.AppSpec {
	return sandbox.AppSpec{Name: a.name, UID: a.uid, GID: a.gid, SupplementaryGIDs: a.supplementaryGIDs, InstallPath: a.installPath}
}

// Start brings the application up: sandbox, resource limits, access
// rules, then every process in config order. Any failure along the way
// drives the partially started application back to Stopped (with
// cleanup) before the error is returned.
func (a *Application) Start() error {
	ctx, span := tracing.StartAppSpan(context.Background(), a.name, "start")
	defer span.End()

	a.mu.Lock()
	if a.state == AppRunning {
		a.mu.Unlock()
		tracing.RecordError(span, ErrAlreadyRunning, "application already running")
		return fmt.Errorf("supervisor: %s: %w", a.name, ErrAlreadyRunning)
	}
	// Running from here on, so the shutdown path is reachable if any of
	// the remaining start steps fails midway.
	a.state = AppRunning
	a.mu.Unlock()

	fail := func(stage string, err error) error {
		a.log.Error(stage+" failed", "error", err)
		a.Stop()
		tracing.RecordError(span, err, stage+" failed")
		return fmt.Errorf("supervisor: %s: %w", stage, err)
	}

	if a.sandboxed {
		if err := a.collab.Sandbox.Setup(a.sandboxSpec()); err != nil {
			return fail("sandbox setup", err)
		}
	}

	if err := a.collab.ResourceLimits.Apply(a.name, a.limits); err != nil {
		return fail("resource limit apply", err)
	}

	if err := a.installSMACKRules(); err != nil {
		return fail("smack rule install", err)
	}

	for _, proc := range a.processes {
		if err := a.launchProcess(ctx, proc); err != nil {
			return fail("launch "+proc.Name, err)
		}
	}

	a.collab.Audit.AppStart(a.name)
	metrics.SetAppState(a.name, true)
	tracing.RecordSuccess(span)
	return nil
}

func (a *Application) launchProcess(ctx context.Context, proc *ProcessObject) error {
	_, span := tracing.StartProcSpan(ctx, a.name, proc.Name, "launch")
	defer span.End()

	spec := launcher.Spec{
		Name:              proc.Name,
		Path:              proc.Exec,
		Args:              proc.Args,
		Logger:            a.log,
		UID:               a.uid,
		GID:               a.gid,
		SupplementaryGIDs: a.supplementaryGIDs,
		UseCredentials:    a.sandboxed,
	}
	if a.sandboxed {
		spec.Dir = a.sandboxPath
	} else {
		spec.Dir = a.installPath
	}

	p, err := a.collab.Launcher.Start(spec)
	if err != nil {
		tracing.RecordError(span, err, "launcher start failed")
		return err
	}
	proc.setPID(p.PID())
	proc.setHandle(p)
	proc.setState(ProcRunning)

	// The group kill and the emptiness query both read the app's cgroup,
	// so the child must be a member before anything else happens to it.
	if err := a.collab.ResourceLimits.AddProcess(a.name, p.PID()); err != nil {
		a.log.Warn("cgroup attach failed", "proc", proc.Name, "error", err)
	}

	metrics.SetProcState(a.name, proc.Name, 1)
	tracing.RecordSuccess(span)

	go a.watchProcess(proc, p)
	return nil
}

// watchProcess blocks on the launcher until proc exits, then hands the
// result back onto the Supervisor's single dispatch path via onExit.
func (a *Application) watchProcess(proc *ProcessObject, p *launcher.Process) {
	status, err := a.collab.Launcher.Wait(context.Background(), p)
	if err != nil {
		a.log.Warn("launcher wait failed", "proc", proc.Name, "error", err)
		return
	}
	if a.onExit != nil {
		a.onExit(p.PID(), status)
	}
}

// Stop drives the application toward Stopped: an asynchronous,
// idempotent soft kill with escalation to a hard kill after
// KillTimeout. The final Stopped transition happens either here (if no
// process is left to signal) or on the process-exit event that empties
// the group.
func (a *Application) Stop() {
	a.mu.Lock()
	if a.state == AppStopped {
		a.mu.Unlock()
		a.log.Warn("stop called while already stopped")
		return
	}
	a.mu.Unlock()

	a.softKill()

	empty, _ := a.collab.Freezer.IsEmpty(a.name)
	if empty {
		a.finishStop()
		return
	}

	a.mu.Lock()
	if a.killTimer == nil {
		a.killTimer = time.AfterFunc(KillTimeout, a.hardKill)
	}
	a.mu.Unlock()
}

func (a *Application) softKill() {
	a.terminationSequence(syscall.SIGTERM)
}

func (a *Application) hardKill() {
	a.terminationSequence(syscall.SIGKILL)
}

// terminationSequence is the freezer-backed group kill shared by both
// the soft and hard phases: freeze so no process can dodge or react to
// the signal mid-flight, mark every live process as deliberately
// stopping, signal the whole group, thaw so the signal is observed.
func (a *Application) terminationSequence(sig syscall.Signal) {
	if err := a.collab.Freezer.Freeze(a.name); err != nil {
		a.log.Warn("freezer freeze fault", "error", err)
	} else {
		a.pollFrozen()
	}

	a.mu.Lock()
	for _, p := range a.processes {
		if p.State() != ProcStopped {
			p.clearStopHandler()
			p.markStopping()
			p.setState(ProcPaused)
			metrics.SetProcState(a.name, p.Name, 0.5)
		}
	}
	a.mu.Unlock()

	if err := a.collab.Freezer.SendSignal(a.name, sig); err != nil {
		a.log.Warn("freezer send_signal fault, treating as nothing to kill", "error", err)
	}

	if err := a.collab.Freezer.Thaw(a.name); err != nil {
		a.log.Warn("freezer thaw fault", "error", err)
	}
}

// pollFrozen spins briefly waiting for the freezer to report Frozen,
// capped so it can never block the event loop for long.
func (a *Application) pollFrozen() {
	start := time.Now()
	deadline := start.Add(20 * time.Millisecond)
	for time.Now().Before(deadline) {
		state, err := a.collab.Freezer.State(a.name)
		if err != nil {
			a.log.Warn("freezer state fault during freeze poll", "error", err)
			metrics.ObserveFreezePoll(time.Since(start))
			return
		}
		if state == freezer.Frozen {
			metrics.ObserveFreezePoll(time.Since(start))
			return
		}
		time.Sleep(time.Millisecond)
	}
	metrics.ObserveFreezePoll(time.Since(start))
	a.log.Warn("freeze poll timed out")
}

func (a *Application) finishStop() {
	a.mu.Lock()
	if a.state == AppStopped {
		a.mu.Unlock()
		return
	}
	if a.killTimer != nil {
		a.killTimer.Stop()
		a.killTimer = nil
	}
	a.state = AppStopped
	a.mu.Unlock()
	a.collab.Audit.AppStop(a.name, "stop sequence complete")
	metrics.SetAppState(a.name, false)
	a.cleanup()
}

// cleanup runs on every transition to Stopped: revoke the app's access
// rules, tear down its sandbox, drop its resource limits. A subsequent
// Start rebuilds these; of the app's configuration it re-reads only the
// bindings, while processes, sandboxing, identity, resource limits and
// the watchdog action keep the values read at construction.
func (a *Application) cleanup() {
	if err := a.collab.Labels.RevokeSubject(smack.Label(a.name)); err != nil {
		a.log.Warn("smack revoke_subject failed", "error", err)
	}
	if a.sandboxed {
		if err := a.collab.Sandbox.Remove(a.sandboxSpec()); err != nil {
			a.log.Warn("sandbox remove failed", "error", err)
		}
	}
	if err := a.collab.ResourceLimits.Clear(a.name); err != nil {
		a.log.Warn("resource limit clear failed", "error", err)
	}
}

// installSMACKRules grants the app access to its own permission-tagged
// folders (one rule per non-empty subset of rwx), wires the framework
// pair, and establishes the bidirectional rules for every configured
// binding.
func (a *Application) installSMACKRules() error {
	l := label(a.name)

	for _, perm := range permSubsets {
		rule := smack.Rule{Subject: l, Object: accessLabel(a.name, perm), Access: smack.Access(perm)}
		if err := a.collab.Labels.SetRule(rule); err != nil {
			return err
		}
	}

	if err := a.collab.Labels.SetRule(smack.Rule{Subject: "framework", Object: l, Access: "w"}); err != nil {
		return err
	}
	if err := a.collab.Labels.SetRule(smack.Rule{Subject: l, Object: "framework", Access: "rw"}); err != nil {
		return err
	}

	txn, err := a.bindingsTxn()
	if err != nil {
		return nil // no bindings configured is not an error
	}
	defer txn.Release()

	bindingsNode, err := txn.Node(a.cfgPath + "/bindings")
	if err != nil {
		return nil
	}
	for _, child := range bindingsNode.Children() {
		serverNode, err := childByName(child, "app")
		if err != nil {
			continue
		}
		server := serverNode.String()
		if server == "" {
			continue
		}
		s := label(server)
		if err := a.collab.Labels.SetRule(smack.Rule{Subject: l, Object: s, Access: "rw"}); err != nil {
			return err
		}
		if err := a.collab.Labels.SetRule(smack.Rule{Subject: s, Object: l, Access: "rw"}); err != nil {
			return err
		}
	}
	return nil
}

// bindingsTxn is a small seam so installSMACKRules can re-open a config
// transaction without NewApplication having to keep one held open for
// the Application's whole lifetime.
func (a *Application) bindingsTxn() (*configtree.ReadTxn, error) {
	if a.configTree == nil {
		return nil, fmt.Errorf("supervisor: no config tree bound")
	}
	return a.configTree.Read()
}

// BoundServers returns the names of the server applications this
// application's bindings reference, for StartAll's dependency ordering.
// It is a read-only query over the same config shape installSMACKRules
// walks, not a collaborator call, so it carries no side effects.
func (a *Application) BoundServers() []string {
	txn, err := a.bindingsTxn()
	if err != nil {
		return nil
	}
	defer txn.Release()

	bindingsNode, err := txn.Node(a.cfgPath + "/bindings")
	if err != nil {
		return nil
	}

	var servers []string
	for _, child := range bindingsNode.Children() {
		serverNode, err := childByName(child, "app")
		if err != nil {
			continue
		}
		if server := serverNode.String(); server != "" {
			servers = append(servers, server)
		}
	}
	return servers
}

var permSubsets = []string{"r", "w", "x", "rw", "rx", "wx", "rwx"}

func label(appName string) smack.Label {
	return smack.Label(appName)
}

func accessLabel(appName, perm string) smack.Label {
	return smack.Label(appName + ":" + perm)
}
