// Package api exposes the execution engine over HTTP: suite submission,
// execution status and reports, and a server-sent-events stream of live
// progress. Executions live in the engine's memory only; restarting the
// server forgets them.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/entrhq/patrol/pkg/engine"
	"github.com/entrhq/patrol/pkg/logging"
	"github.com/entrhq/patrol/pkg/metrics"
)

// DefaultAddr is where the server binds when no address is configured.
// Loopback only; put a reverse proxy in front for anything else.
const DefaultAddr = "127.0.0.1:8420"

// Config controls the API server.
type Config struct {
	Addr string
}

// Server hosts the JSON/HTTP + SSE API over a running engine.
type Server struct {
	cfg        Config
	engine     *engine.Engine
	metrics    *metrics.Metrics
	log        *logging.Logger
	router     *chi.Mux
	httpServer *http.Server
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithLogger routes request logs through log.
func WithLogger(log *logging.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics serves m's registry on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds a server over eng. The engine's lifecycle stays with the
// caller; shutting the server down does not close the engine.
func NewServer(eng *engine.Engine, cfg Config, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		cfg:    cfg,
		engine: eng,
	}
	for _, opt := range opts {
		opt(s)
	}

	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(s.loggingMiddleware)

	router.Route("/api/v1", func(r chi.Router) {
		r.Post("/executions", s.handleSubmitExecution)
		r.Get("/executions", s.handleListExecutions)
		r.Get("/executions/{id}", s.handleExecutionStatus)
		r.Get("/executions/{id}/report", s.handleExecutionReport)
		r.Get("/executions/{id}/events", s.handleExecutionEvents)
	})
	router.Get("/healthz", s.handleHealthz)
	router.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	s.router = router
	return s
}

// Handler returns the routing tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the HTTP server until ctx is cancelled, then shuts it down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: the events endpoint streams for the lifetime
		// of an execution.
		IdleTimeout:    2 * time.Minute,
		MaxHeaderBytes: 1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.infof("serving API on %s", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-serverErr:
		return err
	}
}

type ctxKey string

const requestIDKey ctxKey = "patrol-request-id"

// requestIDMiddleware tags every request with an id, honoring one supplied
// by a proxy.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// loggingMiddleware records method, path, status, and latency per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.infof("%s %s -> %d in %s [%s]",
			r.Method, r.URL.Path, rec.status,
			time.Since(start).Round(time.Millisecond),
			requestIDFrom(r.Context()))
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE streaming working through the wrapper.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) infof(format string, v ...any) {
	if s.log != nil {
		s.log.Infof(format, v...)
	}
}
