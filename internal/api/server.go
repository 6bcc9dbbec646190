// Package api serves catalog propagation and pass prediction over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/star/sattrack/internal/auth"
	"github.com/star/sattrack/internal/config"
	"github.com/star/sattrack/internal/health"
	"github.com/star/sattrack/internal/httputil"
	"github.com/star/sattrack/internal/metrics"
	"github.com/star/sattrack/internal/passes"
	"github.com/star/sattrack/internal/propagation"
	"github.com/star/sattrack/internal/stream"
	"github.com/star/sattrack/internal/tle"
)

// Options holds the dependencies of a Server.
type Options struct {
	Addr      string
	Logger    *slog.Logger
	Auth      auth.Config
	Store     *tle.Store
	Catalog   *propagation.Catalog
	Snapshots stream.Snapshotter // feeds the position stream; defaults to Catalog
	Passes    config.PassConfig
	Stream    stream.Config
	Now       func() time.Time // defaults to time.Now
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(opts Options) *Server {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Snapshots == nil {
		opts.Snapshots = opts.Catalog
	}
	if opts.Passes.CoarseStep <= 0 {
		opts.Passes.CoarseStep = passes.DefaultCoarseStep
	}
	if opts.Passes.Tolerance <= 0 {
		opts.Passes.Tolerance = passes.DefaultTolerance
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           newHandler(opts),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: opts.Logger,
	}
}

func newHandler(opts Options) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(func() bool { return opts.Store.Get() != nil }))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/satellites", satellitesHandler(opts.Logger, opts.Catalog))
	mux.HandleFunc("GET /api/v1/propagate", snapshotHandler(opts.Logger, opts.Catalog, opts.Now))
	mux.HandleFunc("GET /api/v1/propagate/{norad_id}", propagateSingleHandler(opts.Logger, opts.Catalog, opts.Now))
	mux.HandleFunc("GET /api/v1/passes/{norad_id}", passesHandler(opts.Logger, opts.Catalog, opts.Passes, opts.Now))

	streamHandler := stream.NewHandler(opts.Snapshots, opts.Store, opts.Stream, opts.Logger).WithClock(opts.Now)
	mux.HandleFunc("GET /api/v1/stream/positions", streamHandler.HandlePositions)

	// Build middleware chain: metrics -> logging -> auth -> mux.
	var handler http.Handler = mux
	handler = auth.Middleware(opts.Auth, opts.Logger)(handler)
	handler = loggingMiddleware(opts.Logger, opts.Auth.TrustProxy)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush forwards to the wrapped writer so streaming handlers keep working.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger, trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, trustProxy),
			)
		})
	}
}
