package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/vinayprograms/hostwatch/logging"
)

// MetricsPath is where the exposition endpoint is mounted.
const MetricsPath = "/metrics"

// Server serves /metrics over HTTP.
type Server struct {
	addr     string
	srv      *http.Server
	listener net.Listener
	log      *logging.Logger
}

// NewServer creates a server for m on addr (host:port).
func NewServer(addr string, m *Metrics, log *logging.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, m.Handler())
	return &Server{
		addr: addr,
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log.WithComponent("metrics"),
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.log.Info("serving metrics", map[string]interface{}{
		"addr": ln.Addr().String(),
		"path": MetricsPath,
	})

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("metrics server stopped", map[string]interface{}{"error": err.Error()})
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
