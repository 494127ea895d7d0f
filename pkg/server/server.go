// Package server exposes the monitor's own metrics and health over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// staleCycles is how many intervals may pass without a successful cycle
// before /healthz reports unhealthy.
const staleCycles = 3

// HealthSource reports the sampling loop's progress
type HealthSource interface {
	LastSuccess() time.Time
	Interval() time.Duration
}

type healthResponse struct {
	Status      string     `json:"status"`
	LastSuccess *time.Time `json:"last_success,omitempty"`
}

// NewRouter serves /metrics from metrics and /healthz from health
func NewRouter(metrics http.Handler, health HealthSource) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", metrics)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{Status: "ok"}
		code := http.StatusOK

		last := health.LastSuccess()
		if last.IsZero() || time.Since(last) > staleCycles*health.Interval() {
			resp.Status = "stale"
			code = http.StatusServiceUnavailable
		}
		if !last.IsZero() {
			resp.LastSuccess = &last
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	return r
}

// Server is the HTTP listener for /metrics and /healthz
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New creates a server listening on addr
func New(addr string, handler http.Handler, logger *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}

	s.logger.Info("Metrics listener started", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics listener failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the listener
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
