// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/gemtalk/internal/telemetry"
)

// HealthSource reports the persistence health of the conversation store.
type HealthSource interface {
	LastPersistError() error
}

// Server serves the metrics endpoints.
type Server struct {
	addr    string
	version string
	backend string
	metrics *telemetry.Metrics
	health  HealthSource
	logger  zerolog.Logger

	router *http.ServeMux

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported by /healthz.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithBackend sets the backend name reported by /healthz.
func WithBackend(name string) Option {
	return func(s *Server) { s.backend = name }
}

// WithHealth sets the store consulted by /healthz.
func WithHealth(h HealthSource) Option {
	return func(s *Server) { s.health = h }
}

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server for addr. Nothing listens until Start.
func New(addr string, metrics *telemetry.Metrics, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		version: "dev",
		metrics: metrics,
		logger:  zerolog.Nop(),
		router:  http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	s.router.Handle("GET /metrics", s.metrics.Handler())
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.HandleFunc("GET /stats", s.handleStats)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
	)(s.router)
}

// ============================================================================
// HANDLERS
// ============================================================================

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Backend       string `json:"backend,omitempty"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Storage       string `json:"storage"`
	StorageError  string `json:"storage_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		Backend:       s.backend,
		UptimeSeconds: int64(s.metrics.Uptime().Seconds()),
		Storage:       "ok",
	}

	if s.health == nil {
		resp.Storage = "not_configured"
	} else if err := s.health.LastPersistError(); err != nil {
		resp.Status = "degraded"
		resp.Storage = "failing"
		resp.StorageError = err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

// StatsResponse is the /stats body.
type StatsResponse struct {
	telemetry.Stats
	UptimeSeconds    int64 `json:"uptime_seconds"`
	AverageLatencyMs int64 `json:"average_latency_ms"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{
		Stats:            stats,
		UptimeSeconds:    int64(s.metrics.Uptime().Seconds()),
		AverageLatencyMs: stats.AverageLatency().Milliseconds(),
	})
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start binds the listen address and serves in the background. Bind
// errors are returned; serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("metrics server listening")
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
