// package server exposes the download engine over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/videofetcher/internal/shared"
	"github.com/desertthunder/videofetcher/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the route patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the patterns ("GET /health") this handler serves
}

// Router registers handlers behind a shared middleware stack.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// ServerOpts configures a [Server].
type ServerOpts struct {
	Config  *shared.Config
	Manager *tasks.Manager
	Logger  *log.Logger
}

// Server serves the task API for a [tasks.Manager].
type Server struct {
	cfg     *shared.Config
	manager *tasks.Manager
	logger  *log.Logger
	limiter *OwnerLimiter
	router  *BasicRouter
}

// New builds a server and registers its routes.
func New(opts ServerOpts) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = shared.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	s := &Server{
		cfg:     cfg,
		manager: opts.Manager,
		logger:  logger,
		limiter: NewOwnerLimiter(cfg.Server.SubmitRate, cfg.Server.SubmitBurst),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *BasicRouter {
	r := NewBasicRouter()
	r.Handler(&healthHandler{manager: s.manager})

	r.Use(Recover(s.logger), Logging(s.logger), Identity(s.cfg, s.logger))

	limited := RateLimit(s.limiter)
	r.Handle(http.MethodPost, "/api/tasks", limited(http.HandlerFunc(s.handleSubmit)))
	r.Handle(http.MethodGet, "/api/tasks", http.HandlerFunc(s.handleList))
	r.Handle(http.MethodDelete, "/api/tasks", http.HandlerFunc(s.handleClear))
	r.Handle(http.MethodGet, "/api/tasks/{id}", http.HandlerFunc(s.handleGet))
	r.Handle(http.MethodPost, "/api/tasks/{id}/{action}", http.HandlerFunc(s.handleAction))
	r.Handle(http.MethodPost, "/api/tasks/retry-failed", limited(http.HandlerFunc(s.handleRetryFailed)))
	r.Handle(http.MethodPost, "/api/probe", http.HandlerFunc(s.handleProbe))
	r.Handle(http.MethodGet, "/download/{id}", http.HandlerFunc(s.handleDownload))
	r.Handle(http.MethodGet, "/download-all", http.HandlerFunc(s.handleDownloadAll))
	return r
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.logger.Info("server listening", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type healthHandler struct {
	manager *tasks.Manager
}

func (h *healthHandler) Routes() []string { return []string{"GET /health"} }

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"pool":   h.manager.Stats(),
	})
}
