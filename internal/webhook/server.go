package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/monitor-relay/internal/telegram"
)

// Server represents the webhook HTTP server.
type Server struct {
	config    Config
	handler   UpdateHandler
	preflight func() error
	logger    *slog.Logger
	server    *http.Server

	// inflight tracks updates still being handled after their response was sent.
	inflight sync.WaitGroup
}

// New creates a new webhook server instance. preflight may be nil; when set
// it runs for every update request before the body is read.
func New(config Config, handler UpdateHandler, preflight func() error, logger *slog.Logger) *Server {
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.SecretHeader == "" {
		config.SecretHeader = DefaultSecretHeader
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		config:    config,
		handler:   handler,
		preflight: preflight,
		logger:    logger.With("component", "webhook"),
	}
}

// Start starts the webhook HTTP server (blocking). On cancellation it stops
// accepting requests and waits for in-flight updates to finish.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("webhook server starting",
		"listen", s.config.Listen,
		"path", s.config.Path,
		"secret_required", s.config.Secret != "",
	)

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
		s.Wait()
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// Wait blocks until every acknowledged update has been handled.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleUpdate)
	if s.config.HealthPath != "" {
		r.Get(s.config.HealthPath, s.handleHealth)
	}

	notFound := func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, http.StatusNotFound, "not found")
	}
	r.NotFound(notFound)
	r.MethodNotAllowed(notFound)

	return r
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, AckResponse{OK: true})
}

// handleUpdate acknowledges one Telegram update and handles it in the background.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !verifySecret(r.Header.Get(s.config.SecretHeader), s.config.Secret) {
		s.logger.Warn("webhook secret mismatch", "path", r.URL.Path, "header", s.config.SecretHeader)
		s.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if s.preflight != nil {
		if err := s.preflight(); err != nil {
			s.logger.Error("relay not configured", "error", err)
			s.respondError(w, http.StatusInternalServerError, "relay not configured")
			return
		}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		s.logger.Warn("malformed update body", "error", err)
		s.respondError(w, http.StatusInternalServerError, "malformed update")
		return
	}

	s.respondJSON(w, http.StatusOK, AckResponse{OK: true})

	ctx := context.WithoutCancel(r.Context())
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.handler.Handle(ctx, update)
	}()
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{OK: false, Error: message})
}
