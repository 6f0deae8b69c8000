package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/apcore/apcore/internal/configtree"
	"github.com/apcore/apcore/internal/dag"
	"github.com/apcore/apcore/internal/launcher"
)

type exitEvent struct {
	appName string
	pid     int
	status  launcher.ExitStatus
}

type watchdogEvent struct {
	appName string
	pid     int
}

// Supervisor owns the registry of applications and the single-threaded
// event loop that routes process-exit and watchdog events to the
// application that owns the PID.
type Supervisor struct {
	cfg      *configtree.Tree
	collab   *Collaborators
	rebooter Rebooter
	log      *slog.Logger

	mu   sync.Mutex
	apps map[string]*Application

	exits     chan exitEvent
	watchdogs chan watchdogEvent
}

// New constructs a Supervisor. It does not start any application; call
// StartApp for each entry in the catalogue.
func New(cfg *configtree.Tree, collab *Collaborators, rebooter Rebooter) *Supervisor {
	log := collab.Logger
	if log == nil {
		log = slog.Default()
	}
	if rebooter == nil {
		rebooter = ExecRebooter{}
	}
	s := &Supervisor{
		cfg:       cfg,
		collab:    collab,
		rebooter:  rebooter,
		log:       log.With("component", "supervisor"),
		apps:      make(map[string]*Application),
		exits:     make(chan exitEvent, 64),
		watchdogs: make(chan watchdogEvent, 64),
	}
	s.collab.Ledger.StartGraceTimerIfRecordExists()
	return s
}

// StartApp constructs (if necessary) and starts the application rooted
// at cfgPath.
func (s *Supervisor) StartApp(cfgPath string) error {
	app, err := s.getOrConstruct(cfgPath)
	if err != nil {
		return err
	}
	return app.Start()
}

// StartAll constructs every application named in cfgPaths and starts
// them in an order that brings each bound server application up before
// the clients that bind to it. It is pure convenience ordering on top
// of StartApp: a single application can still be started on its own at
// any time regardless of its bindings.
func (s *Supervisor) StartAll(cfgPaths []string) error {
	apps := make(map[string]*Application, len(cfgPaths))
	byName := make(map[string]string, len(cfgPaths))
	deps := make(map[string][]string, len(cfgPaths))

	for _, cfgPath := range cfgPaths {
		app, err := s.getOrConstruct(cfgPath)
		if err != nil {
			return fmt.Errorf("supervisor: construct %s: %w", cfgPath, err)
		}
		apps[app.Name()] = app
		byName[app.Name()] = cfgPath
	}

	for name, app := range apps {
		var known []string
		for _, server := range app.BoundServers() {
			if _, ok := apps[server]; ok {
				known = append(known, server)
			}
		}
		deps[name] = known
	}

	graph, err := dag.NewGraph(deps)
	if err != nil {
		return fmt.Errorf("supervisor: bindings graph: %w", err)
	}
	order, err := graph.TopologicalSort()
	if err != nil {
		return fmt.Errorf("supervisor: bindings ordering: %w", err)
	}

	for _, name := range order {
		if err := apps[name].Start(); err != nil {
			return fmt.Errorf("supervisor: start %s: %w", name, err)
		}
	}
	return nil
}

// StopApp stops a running application by name.
func (s *Supervisor) StopApp(name string) error {
	app := s.App(name)
	if app == nil {
		return fmt.Errorf("supervisor: %s: %w", name, ErrNotFound)
	}
	app.Stop()
	return nil
}

// DeleteApp removes a constructed application from the registry. The
// application must be Stopped; deleting a running application is an
// error so no process can outlive its registry entry.
func (s *Supervisor) DeleteApp(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[name]
	if !ok {
		return fmt.Errorf("supervisor: %s: %w", name, ErrNotFound)
	}
	if app.State() != AppStopped {
		return fmt.Errorf("supervisor: %s: %w", name, ErrAlreadyRunning)
	}
	delete(s.apps, name)
	return nil
}

// App returns the named application, or nil if it has not been
// constructed.
func (s *Supervisor) App(name string) *Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apps[name]
}

// Apps returns every constructed application.
func (s *Supervisor) Apps() []*Application {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Application, 0, len(s.apps))
	for _, a := range s.apps {
		out = append(out, a)
	}
	return out
}

func (s *Supervisor) getOrConstruct(cfgPath string) (*Application, error) {
	name := appNameFromPath(cfgPath)

	s.mu.Lock()
	if app, ok := s.apps[name]; ok {
		s.mu.Unlock()
		return app, nil
	}
	s.mu.Unlock()

	app, err := NewApplication(cfgPath, s.cfg, s.collab)
	if err != nil {
		return nil, err
	}
	app.onExit = func(pid int, status launcher.ExitStatus) {
		s.exits <- exitEvent{appName: app.Name(), pid: pid, status: status}
	}

	s.mu.Lock()
	s.apps[name] = app
	s.mu.Unlock()
	return app, nil
}

func appNameFromPath(cfgPath string) string {
	return filepath.Base(cfgPath)
}

// ReloadConfig re-reads path into the Supervisor's config tree. It does
// not reconstruct or restart any already-constructed Application. An
// application constructed after the reload is built from the fresh
// tree; an already-constructed one picks up only changed bindings on
// its next Start and keeps the rest of the configuration it was
// constructed with.
func (s *Supervisor) ReloadConfig(path string) error {
	err := s.cfg.Reload(path)
	s.collab.Audit.ConfigReload(path, err)
	if err != nil {
		s.log.Error("config reload failed", "path", path, "error", err)
		return fmt.Errorf("supervisor: reload config: %w", err)
	}
	s.log.Info("config reloaded", "path", path)
	return nil
}

// ProcLister returns a closure suitable for metrics.NewSampler: a
// snapshot of every running process's PID, keyed by app then process
// name, taken under each application's own lock.
func (s *Supervisor) ProcLister() map[string]map[string]int32 {
	out := make(map[string]map[string]int32)
	for _, app := range s.Apps() {
		procs := make(map[string]int32)
		for _, p := range app.Processes() {
			if pid := p.PID(); pid != 0 {
				procs[p.Name] = int32(pid)
			}
		}
		out[app.Name()] = procs
	}
	return out
}

// NotifyWatchdogExpired routes a watchdog-timeout event for pid onto
// the event loop. appName is a routing hint; if it is empty or stale,
// the loop falls back to scanning the registry for the owner of pid.
func (s *Supervisor) NotifyWatchdogExpired(appName string, pid int) {
	s.watchdogs <- watchdogEvent{appName: appName, pid: pid}
}

// appForPID scans the registry for the application whose process set
// contains pid.
func (s *Supervisor) appForPID(pid int) *Application {
	for _, app := range s.Apps() {
		if app.findByPID(pid) != nil {
			return app
		}
	}
	return nil
}

// Run drives the single-threaded event loop until ctx is cancelled.
// Process-exit and watchdog events are processed one at a time; no two
// application callbacks are ever in flight concurrently.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case e := <-s.exits:
			app := s.App(e.appName)
			if app == nil {
				continue
			}
			action := app.Sigchild(e.pid, e.status)
			s.enact(app, action)

		case w := <-s.watchdogs:
			app := s.App(w.appName)
			if app == nil {
				app = s.appForPID(w.pid)
			}
			if app == nil {
				continue
			}
			result := app.WatchdogExpired(w.pid)
			s.enactWatchdog(app, result)
		}
	}
}

// enact performs the Supervisor's side of an AppFaultAction.
func (s *Supervisor) enact(app *Application, action AppFaultAction) {
	switch action {
	case AppActionIgnore:
	case AppActionRestartApp:
		app.Stop()
		go s.restartWhenStopped(app)
	case AppActionStopApp:
		app.Stop()
	case AppActionReboot:
		s.reboot(app)
	}
}

func (s *Supervisor) enactWatchdog(app *Application, result WatchdogHandlerResult) {
	switch result {
	case WatchdogHandled, WatchdogResultNotFound:
	case WatchdogResultRestartApp:
		app.Stop()
		go s.restartWhenStopped(app)
	case WatchdogResultStopApp:
		app.Stop()
	case WatchdogResultReboot:
		s.reboot(app)
	}
}

func (s *Supervisor) reboot(app *Application) {
	s.log.Error("reboot-class fault, initiating system reboot", "app", app.Name())
	err := s.rebooter.Reboot()
	if err != nil {
		s.log.Error("reboot failed", "error", err)
	}
	s.collab.Audit.Reboot(app.Name(), "", err)
}

// restartWhenStopped waits for app's asynchronous stop to complete
// (bounded by a small multiple of KillTimeout) before starting it again,
// implementing the Supervisor's side of RestartApp/RestartApp-watchdog.
func (s *Supervisor) restartWhenStopped(app *Application) {
	deadline := time.Now().Add(4 * KillTimeout)
	for time.Now().Before(deadline) {
		if app.State() == AppStopped {
			if err := app.Start(); err != nil {
				s.log.Error("restart_app failed to start", "app", app.Name(), "error", err)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.log.Error("restart_app timed out waiting for stop to complete", "app", app.Name())
}
