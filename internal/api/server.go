// Package api implements the supervisor's HTTP management surface:
// start/stop/query lifecycle commands and recent process output,
// served as JSON over a plain net/http mux. It is a same-host operator
// surface, reached by the apcorectl client commands.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apcore/apcore/internal/supervisor"
)

// Server exposes Supervisor lifecycle operations over HTTP.
type Server struct {
	sup *supervisor.Supervisor
	log *slog.Logger
	srv *http.Server
}

// NewServer constructs a management Server bound to addr.
func NewServer(addr string, sup *supervisor.Supervisor, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{sup: sup, log: log.With("subsystem", "api")}

	mux := http.NewServeMux()
	mux.HandleFunc("/apps", s.handleListApps)
	mux.HandleFunc("/apps/", s.handleAppAction)
	mux.HandleFunc("/healthz", s.handleHealthz)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe starts serving; it blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type appView struct {
	Name        string     `json:"name"`
	State       string     `json:"state"`
	Sandboxed   bool       `json:"sandboxed"`
	InstallPath string     `json:"install_path"`
	Processes   []procView `json:"processes,omitempty"`
}

type procView struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

func viewOf(app *supervisor.Application) appView {
	v := appView{
		Name:        app.Name(),
		State:       app.State().String(),
		Sandboxed:   app.Sandboxed(),
		InstallPath: app.InstallPath(),
	}
	for _, p := range app.Processes() {
		v.Processes = append(v.Processes, procView{Name: p.Name, State: app.ProcState(p.Name).String()})
	}
	return v
}

func (s *Server) handleListApps(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	apps := s.sup.Apps()
	views := make([]appView, 0, len(apps))
	for _, a := range apps {
		views = append(views, viewOf(a))
	}
	writeJSON(w, http.StatusOK, views)
}

// handleAppAction routes /apps/{name}, /apps/{name}/start, /apps/{name}/stop.
func (s *Server) handleAppAction(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/apps/")
	parts := strings.SplitN(path, "/", 2)
	name := parts[0]
	if name == "" {
		http.Error(w, "app name required", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		app := s.sup.App(name)
		if app == nil {
			http.Error(w, "app not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(app))
		return
	}

	if strings.HasPrefix(parts[1], "logs/") {
		s.handleProcLogs(w, r, name, strings.TrimPrefix(parts[1], "logs/"))
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "start":
		if err := s.sup.StartApp(name); err != nil {
			s.writeError(w, err)
			return
		}
	case "stop":
		if err := s.sup.StopApp(name); err != nil {
			s.writeError(w, err)
			return
		}
	case "restart":
		if err := s.sup.StopApp(name); err != nil {
			s.writeError(w, err)
			return
		}
		if err := s.sup.StartApp(name); err != nil {
			s.writeError(w, err)
			return
		}
	default:
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProcLogs(w http.ResponseWriter, r *http.Request, appName, procName string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	app := s.sup.App(appName)
	if app == nil {
		http.Error(w, "app not found", http.StatusNotFound)
		return
	}
	lines, err := app.ProcOutput(procName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, supervisor.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, supervisor.ErrAlreadyRunning), errors.Is(err, supervisor.ErrAlreadyStopped):
		status = http.StatusConflict
	}
	s.log.Warn("api request failed", "error", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
