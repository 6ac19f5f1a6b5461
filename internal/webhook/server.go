package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/finchley/agentgw/internal/events"
	"github.com/finchley/agentgw/internal/guard"
	"github.com/finchley/agentgw/internal/metrics"
)

// Server is the webhook HTTP front door. Every marketplace event passes
// through its admission pipeline before anything downstream sees it.
type Server struct {
	config    Config
	allowlist *guard.Allowlist
	rate      guard.RateLimiter
	replay    guard.ReplayGuard
	workflows WorkflowStarter
	recorder  EventRecorder
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
}

// Deps bundles the server's collaborators.
type Deps struct {
	Allowlist *guard.Allowlist
	RateLimit guard.RateLimiter
	Replay    guard.ReplayGuard
	Workflows WorkflowStarter
	Recorder  EventRecorder
	Hub       *events.Hub
}

// New creates a webhook server instance.
func New(config Config, deps Deps, logger *slog.Logger) *Server {
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.FreshnessMaxAge == 0 {
		config.FreshnessMaxAge = DefaultFreshnessMaxAge
	}

	return &Server{
		config:    config,
		allowlist: deps.Allowlist,
		rate:      deps.RateLimit,
		replay:    deps.Replay,
		workflows: deps.Workflows,
		recorder:  deps.Recorder,
		hub:       deps.Hub,
		logger:    logger,
	}
}

// Start runs the HTTP server until ctx is cancelled (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting", "listen", s.config.Listen, "debug", s.config.Debug)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Handler returns the configured router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		metrics.EventRejected(metrics.ReasonBadMethod)
		s.respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", "only POST is accepted")
	})

	r.Post("/agents/{agentID}/webhook/events", s.handleEvent)
	r.Options("/agents/{agentID}/webhook/events", s.handlePreflight)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", metrics.Handler())

	if s.config.Debug {
		r.Get("/debug/events", s.handleDebugEvents)
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payload content).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handlePreflight answers CORS preflight so browser-hosted senders can post.
func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderSignature+", "+HeaderTimestamp+", "+HeaderRequestID)
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.config.ServiceName,
		"version": s.config.Version,
	})
}

// handleDebugEvents dumps the telemetry ring buffer. Debug builds only.
func (s *Server) handleDebugEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "bad_request", "since must be an integer event id")
			return
		}
		since = parsed
	}
	s.respondJSON(w, http.StatusOK, s.hub.SnapshotSince(since))
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: code, Message: message})
}
