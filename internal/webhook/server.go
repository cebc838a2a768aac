package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AcceptResponse is the JSON response for an accepted webhook.
type AcceptResponse struct {
	ExecutionRef string  `json:"execution_ref"`
	EventType    string  `json:"event_type,omitempty"`
	Confidence   float64 `json:"confidence"`
}

// ErrorResponse is the JSON response for rejected webhooks. Bodies stay
// generic for auth-class failures; details never leak.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Server is the webhook ingress: one POST route per connector pipeline.
type Server struct {
	listen    string
	timeout   time.Duration
	pipelines map[string]*Pipeline // path -> pipeline
	logger    *slog.Logger
	server    *http.Server
}

// NewServer builds the ingress server over a set of connector pipelines.
func NewServer(listen string, timeout time.Duration, pipelines []*Pipeline, logger *slog.Logger) *Server {
	byPath := make(map[string]*Pipeline, len(pipelines))
	for _, p := range pipelines {
		byPath[p.Path()] = p
	}
	return &Server{
		listen:    listen,
		timeout:   timeout,
		pipelines: byPath,
		logger:    logger,
	}
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	router := s.setupRoutes()

	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook ingress starting", "listen", s.listen, "connectors", len(s.pipelines))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("webhook ingress shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook ingress shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook ingress error: %w", err)
	}
}

func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	for path := range s.pipelines {
		r.Post(path, s.handleWebhook)
	}

	return r
}

// loggingMiddleware logs HTTP requests. No body content, no header values.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("webhook request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	pipeline, ok := s.pipelines[r.URL.Path]
	if !ok {
		s.respondError(w, http.StatusNotFound, "endpoint not found", "")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	// Read one byte past the connector's limit so the payload guard can
	// report the overflow with its own issue code.
	limit := pipeline.MaxPayloadBytes()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body", "")
		return
	}

	req := requestFromHTTP(r, body)
	event, err := pipeline.Process(ctx, req)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	s.respondJSON(w, http.StatusAccepted, AcceptResponse{
		ExecutionRef: event.ExecutionRef,
		EventType:    event.Outputs.EventType,
		Confidence:   event.Confidence.Score,
	})
}

// requestFromHTTP flattens an *http.Request into the pipeline's view.
// Multi-valued headers keep their first value.
func requestFromHTTP(r *http.Request, body []byte) *IncomingRequest {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}
	return &IncomingRequest{
		Method:      r.Method,
		Path:        r.URL.Path,
		Headers:     headers,
		Body:        body,
		Query:       r.URL.Query(),
		SourceIP:    r.RemoteAddr,
		ReceivedAt:  time.Now().UTC(),
		ContentType: r.Header.Get("Content-Type"),
	}
}

// respondFailure maps pipeline failure codes onto HTTP statuses. Auth-class
// rejections share a generic body.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	var pe *PipelineError
	if !errors.As(err, &pe) {
		s.respondError(w, http.StatusInternalServerError, "internal error", "")
		return
	}

	switch pe.Code {
	case FailPayloadValidation:
		status := http.StatusBadRequest
		for _, issue := range pe.Issues {
			switch issue.Code {
			case IssuePayloadTooLarge:
				status = http.StatusRequestEntityTooLarge
			case IssueContentTypeNotAllowed:
				status = http.StatusUnsupportedMediaType
			}
		}
		s.respondError(w, status, "payload validation failed", string(pe.Code))
	case FailReplayDetected:
		s.respondError(w, http.StatusConflict, "duplicate delivery", string(pe.Code))
	case FailSignatureVerification, FailSourceIPNotAllowed:
		s.respondError(w, http.StatusForbidden, "forbidden", string(pe.Code))
	default:
		s.respondError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message, code string) {
	s.respondJSON(w, status, ErrorResponse{Error: message, Code: code})
}
