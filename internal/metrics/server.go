package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves the Prometheus exposition format over HTTP.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer constructs a metrics Server bound to addr (e.g. ":9090").
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{addr: addr, srv: &http.Server{Addr: addr, Handler: mux}}
}

// ListenAndServe starts serving; it blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
