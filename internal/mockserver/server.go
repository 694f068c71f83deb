package mockserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/videocms/authkit/internal/middleware"
)

// ShutdownTimeout controls how long to wait for graceful shutdowns.
var ShutdownTimeout = 10 * time.Second

// Server wraps the stub backend in an http.Server with sensible defaults and
// the logging and rate-limiting middleware applied.
type Server struct {
	inner *http.Server
}

// New constructs a stub server listening on the provided port.
func New(port int, logger *slog.Logger) *Server {
	handler := NewHandler()
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	limiter := middleware.NewAddrRateLimiter(30, time.Minute, 10, 5*time.Minute)
	limited := withRateLimit(limiter, mux)
	chained := middleware.RequestLogger(logger)(limited)

	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           chained,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      10 * time.Second,
		},
	}
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

func withRateLimit(limiter middleware.RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow(r.RemoteAddr) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
