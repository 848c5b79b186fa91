// ABOUTME: Server orchestrator that wires the store, sessions, chat backend, and HTTP routes
// ABOUTME: Manages the HTTP listener lifecycle and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/2389/cortex-chat/internal/config"
	"github.com/2389/cortex-chat/internal/conversation"
	"github.com/2389/cortex-chat/internal/dedupe"
	"github.com/2389/cortex-chat/internal/metrics"
	"github.com/2389/cortex-chat/internal/store"
	"github.com/2389/cortex-chat/internal/web"
)

// Server runs the cortex-chat web application.
type Server struct {
	config     *config.Config
	store      *store.SQLiteStore
	hub        *conversation.Hub
	guard      *dedupe.Guard
	metrics    *metrics.Metrics
	backend    *Backend
	web        *web.Server
	httpServer *http.Server
	logger     *slog.Logger
}

// NewMetrics returns a metrics set on a fresh registry that also carries the
// Go runtime and process collectors, or nil when metrics are disabled.
func NewMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return metrics.New(reg)
}

// New creates a Server with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	return NewWithBackend(cfg, nil, logger)
}

// NewWithBackend is New with a prebuilt backend. A nil backend is built from cfg.
func NewWithBackend(cfg *config.Config, backend *Backend, logger *slog.Logger) (*Server, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	m := NewMetrics(cfg)
	if backend == nil {
		backend, err = NewBackend(cfg, m, logger.With("component", "backend"))
		if err != nil {
			st.Close()
			return nil, err
		}
	}

	hub := conversation.NewHub(conversation.HubOptions{
		Persister:   st,
		IdleTimeout: cfg.Server.SessionIdle,
		Logger:      logger,
	})
	guard := dedupe.New(cfg.Server.SubmissionTTL, dedupe.DefaultMaxSize)

	webServer, err := web.New(web.Options{
		Hub:          hub,
		Chat:         backend.Chat,
		Guard:        guard,
		CookieSecure: cfg.Server.CookieSecure,
		Logger:       logger,
	})
	if err != nil {
		hub.Close()
		guard.Close()
		backend.Close()
		st.Close()
		return nil, err
	}

	s := &Server{
		config:  cfg,
		store:   st,
		hub:     hub,
		guard:   guard,
		metrics: m,
		backend: backend,
		web:     webServer,
		logger:  logger,
	}

	mux := http.NewServeMux()
	webServer.RegisterRoutes(mux)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	if m != nil {
		mux.Handle("GET "+cfg.Metrics.Path, m.Handler())
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until the context is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the HTTP server, waits for running turns to unwind, and
// releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Closing sessions ends open event streams and cancels running turns.
	s.hub.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	turnsDone := make(chan struct{})
	go func() {
		s.web.Wait()
		close(turnsDone)
	}()
	select {
	case <-turnsDone:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for turns: %w", ctx.Err()))
	}

	s.guard.Close()
	errs = appendCloseError(errs, "warehouse close", s.backend.Close())
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleReady returns 200 OK when the transcript database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d sessions)", s.hub.Len())
}
