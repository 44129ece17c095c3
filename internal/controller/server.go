// Package controller serves the read API and the live event stream.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"jobdeck/internal/auth"
	"jobdeck/internal/controller/handlers"
	"jobdeck/internal/controller/middleware"
)

// Options configure the HTTP server.
type Options struct {
	Addr string
	// Timeout applies to reads and writes of non-stream routes.
	Timeout time.Duration
	// Enqueue rate limit per namespace. Zero disables it.
	RateLimitPerSecond float64
	RateLimitBurst     int
	// APIToken guards enqueue when set.
	APIToken string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the HTTP server for the read API.
type Server struct {
	httpServer *http.Server
}

// New creates a new server over q and events.
func New(q handlers.Querier, events handlers.EventSource, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := handlers.New(q, events, opts.Logger)
	limit := middleware.NewRateLimiter(opts.RateLimitPerSecond, opts.RateLimitBurst,
		middleware.WithNamespaces(q.Namespaces()),
	).Middleware()
	requireToken := middleware.RequireToken(auth.NewVerifier(opts.APIToken))

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}

	mux.HandleFunc("GET /api/v1/backend", h.ListNamespaces)
	mux.HandleFunc("GET /api/v1/backend/{ns}", h.GetBackend)
	mux.HandleFunc("GET /api/v1/backend/{ns}/workers", h.ListWorkers)
	mux.Handle("PUT /api/v1/backend/{ns}/job", requireToken(limit(http.HandlerFunc(h.PushJob))))
	mux.HandleFunc("GET /api/v1/backend/{ns}/job/{id}", h.GetJob)

	// Streams clear their own write deadline.
	mux.HandleFunc("GET /api/v1/events", h.Events)
	mux.HandleFunc("GET /api/v1/events/ws", h.EventsWS)

	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           middleware.RequestID(opts.Logger)(mux),
			ReadHeaderTimeout: opts.Timeout,
			ReadTimeout:       opts.Timeout,
			WriteTimeout:      opts.Timeout,
		},
	}
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
