package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusProvider exposes the running subscription to the status endpoints.
type StatusProvider interface {
	// StatusSnapshot returns a JSON-encodable view of the subscription.
	StatusSnapshot() any
	// Healthy is false once the subscription has stopped or failed.
	Healthy() bool
}

// Server serves /healthz, /metrics and /status behind per-IP rate limiting.
type Server struct {
	status  StatusProvider
	limiter *RateLimitMiddleware
	logger  *slog.Logger
}

type ServerOption func(*Server)

func WithRateLimiter(rl *RateLimitMiddleware) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

func NewServer(status StatusProvider, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		status: status,
		logger: logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /status", s.handleStatus)

	if s.limiter == nil {
		return mux
	}
	return s.limiter.Wrap(mux)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	status, body := http.StatusOK, "ok"
	if !s.status.Healthy() {
		status, body = http.StatusServiceUnavailable, "unhealthy"
	}
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		s.logger.Warn("failed to write health response", "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status.StatusSnapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Run serves on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("status server shutdown error", "error", err)
		}
	}()

	s.logger.Info("status server started", "port", port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}
