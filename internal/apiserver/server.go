// Package apiserver exposes the analysis pipeline over HTTP: one analyze
// endpoint, budget/cache stats, health/readiness probes, and Prometheus
// metrics.
package apiserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/moolen/faultline/internal/engine"
	"github.com/moolen/faultline/internal/logging"
	"github.com/moolen/faultline/internal/models"
	"github.com/moolen/faultline/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Analyzer runs one analysis over an evidence set.
type Analyzer interface {
	Analyze(ctx context.Context, evidence []models.Evidence) *engine.Report
}

// Server handles HTTP API requests.
type Server struct {
	port    int
	server  *http.Server
	router  *http.ServeMux
	logger  *logging.Logger
	engine  Analyzer
	limiter *ratelimit.Limiter
	cache   *ratelimit.Cache
}

// New creates the API server. The Prometheus gatherer backs /metrics;
// pass the registry the pipeline metrics were registered with.
func New(port int, eng Analyzer, limiter *ratelimit.Limiter, cache *ratelimit.Cache, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		port:    port,
		router:  http.NewServeMux(),
		logger:  logging.GetLogger("apiserver"),
		engine:  eng,
		limiter: limiter,
		cache:   cache,
	}

	s.router.HandleFunc("/v1/analyze", s.withMethod(http.MethodPost, s.handleAnalyze))
	s.router.HandleFunc("/v1/stats", s.withMethod(http.MethodGet, s.handleStats))
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.HandleFunc("/ready", s.handleReady)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.corsMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the server's HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// withMethod wraps a handler to enforce HTTP method
func (s *Server) withMethod(method string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
				fmt.Sprintf("method %s not allowed", r.Method))
			return
		}
		handler(w, r)
	}
}

// corsMiddleware adds CORS headers to allow browser access
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start begins listening for requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting API server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")
	return s.server.Shutdown(ctx)
}
