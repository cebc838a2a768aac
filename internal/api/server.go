// Package api serves the read-only operational surface: decision history,
// the live decision feed (SSE), and a health endpoint.
package api

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
	"github.com/hookgate/hookgate/internal/decision"
	"github.com/hookgate/hookgate/internal/events"
)

// DecisionReader is the store surface the API needs.
type DecisionReader interface {
	List(ctx context.Context, limit int) ([]*decision.Record, error)
	GetByRef(ctx context.Context, ref string) (*decision.Record, error)
	Count(ctx context.Context) (int, error)
}

// Config holds API server configuration.
type Config struct {
	Listen string
	// APIKey is the bearer token protecting every endpoint except /healthz.
	APIKey string
	// Connectors is reported by /healthz.
	Connectors int
}

// Server is the HTTP read API.
type Server struct {
	config    Config
	store     DecisionReader
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a new API server instance.
func New(config Config, store DecisionReader, hub *events.Hub, logger *slog.Logger) *Server {
	return &Server{
		config:    config,
		store:     store,
		hub:       hub,
		logger:    logger,
		startedAt: time.Now(),
	}
}

// Start starts the HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Minute, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// Unauthenticated ops endpoint.
	r.Get("/healthz", s.handleHealthz)

	// Protected API.
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/decisions", s.handleListDecisions)
		r.Get("/decisions/{ref}", s.handleGetDecision)
		r.Get("/events", s.handleEvents)
	})

	return r
}

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
		)
	})
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Connectors    int    `json:"connectors"`
	Decisions     int    `json:"decisions"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	count, err := s.store.Count(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Connectors:    s.config.Connectors,
		Decisions:     count,
	})
}

func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list decisions", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list decisions")
		return
	}
	if records == nil {
		records = []*decision.Record{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"decisions": records})
}

func (s *Server) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	record, err := s.store.GetByRef(r.Context(), ref)
	if err == decision.ErrNotFound {
		s.writeError(w, http.StatusNotFound, "decision not found")
		return
	}
	if err != nil {
		s.logger.Error("failed to load decision", "ref", ref, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to load decision")
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
