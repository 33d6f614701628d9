// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/zxkane/contest-checker/internal/domain/request"
	"github.com/zxkane/contest-checker/internal/domain/respond"
)

// Submitter is the arbitration capability the HTTP surface depends on.
type Submitter interface {
	Submit(ctx context.Context, raw request.Raw, participantID, traceID string) (respond.Result, error)
}

// Server wires HTTP routes for the submission API.
type Server struct {
	submitHandler *SubmitHandler
	healthHandler *HealthHandler
	limiter       *rate.Limiter
}

// ServerOption applies a configuration option to the Server.
type ServerOption func(*Server)

// WithRateLimit configures the ingress limiter.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		}
	}
}

// NewServer creates the API server with all handlers.
func NewServer(submitter Submitter, opts ...ServerOption) *Server {
	s := &Server{
		submitHandler: NewSubmitHandler(submitter),
		healthHandler: NewHealthHandler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/submissions",
		TraceMiddleware(RateLimitMiddleware(s.limiter,
			MetricsMiddleware(s.submitHandler.HandleSubmit, "submissions"))))
}

// writeText writes a plain-text response body.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
