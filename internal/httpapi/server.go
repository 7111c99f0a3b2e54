// Package httpapi exposes the session supervisor over HTTP: pairing,
// status, messaging and session administration.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/wabridge/internal/metrics"
	"github.com/harun/wabridge/internal/supervisor"
)

// ServerOptions configures the HTTP API server.
type ServerOptions struct {
	Host               string
	Port               int
	RateLimitPerMinute int
}

// Server is the HTTP API server
type Server struct {
	options     ServerOptions
	server      *http.Server
	supervisor  *supervisor.Supervisor
	rateLimiter *RateLimiter
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

// NewServer creates a new API server
func NewServer(options ServerOptions, sup *supervisor.Supervisor, m *metrics.Metrics, logger zerolog.Logger) (*Server, error) {
	if sup == nil {
		return nil, fmt.Errorf("supervisor is required")
	}
	// Set defaults
	if options.Port == 0 {
		options.Port = 3006
	}
	if options.Host == "" {
		options.Host = "0.0.0.0"
	}
	if options.RateLimitPerMinute == 0 {
		options.RateLimitPerMinute = 120
	}

	s := &Server{
		options:     options,
		supervisor:  sup,
		rateLimiter: NewRateLimiter(options.RateLimitPerMinute),
		metrics:     m,
		logger:      logger,
	}
	return s, nil
}

// Handler builds the full route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/connect/{id}", s.handleConnect)
	mux.HandleFunc("POST /api/send/{id}", s.handleSend)
	mux.HandleFunc("POST /api/send-document/{id}", s.handleSendDocument)
	mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return s.withMiddleware(mux)
}

// Start starts the API server and blocks until it stops.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.options.Host, s.options.Port),
		Handler: s.Handler(),
	}

	s.logger.Info().
		Str("host", s.options.Host).
		Int("port", s.options.Port).
		Msg("Starting API server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start API server: %w", err)
	}

	return nil
}

// Stop gracefully stops the API server
func (s *Server) Stop(ctx context.Context) error {
	s.rateLimiter.Stop()
	if s.server == nil {
		return nil
	}
	s.logger.Info().Msg("Stopping API server")
	return s.server.Shutdown(ctx)
}

// withMiddleware wraps the mux with request logging and rate limiting.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.New().String()
		ip := clientIP(r)

		if !s.rateLimiter.CheckLimit(ip) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", s.rateLimiter.GetRetryAfter(ip)))
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)

		s.logger.Debug().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("ip", ip).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
