// Package adminserver provides a diagnostics-only HTTP surface for the
// shared-memory administration service. It never exposes Create, Unlink,
// Info, Acquire, or Release — those remain an in-process Go API — and
// carries only health checks, readiness, process status, metrics, and a
// read-only topology snapshot for operators.
package adminserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/penguintechinc/shmem-admin/internal/config"
	"github.com/penguintechinc/shmem-admin/internal/metrics"
	"github.com/penguintechinc/shmem-admin/internal/topology"
)

// Server is the diagnostics HTTP server.
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers
	metrics    *metrics.Metrics
}

// NewServer creates a new diagnostics HTTP server.
func NewServer(cfg *config.Config, topo *topology.Topology, m *metrics.Metrics, version string) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware())
	if m != nil {
		router.Use(metricsMiddleware(m))
	}

	handlers := NewHandlers(version, topo)

	s := &Server{
		config:   cfg,
		router:   router,
		handlers: handlers,
		metrics:  m,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.handlers.HealthCheck)
	s.router.GET("/readyz", s.handlers.ReadinessCheck)
	s.router.GET("/status", s.handlers.Status)
	if s.config.MetricsEnabled {
		s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	s.router.GET("/topology", s.handlers.Topology)
}

// Start starts the diagnostics HTTP server on cfg.DiagHost:cfg.DiagPort.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.DiagHost, s.config.DiagPort)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the diagnostics HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/readyz", "/metrics"},
	})
}

// metricsMiddleware records this diagnostics surface's own request latency
// under the "diag_http" operation label, reusing the same
// OperationDuration histogram the administrative operations record into
// rather than introducing a parallel HTTP-specific metric set for a
// handful of read-only routes.
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.OperationDuration.WithLabelValues("diag_http:" + c.FullPath()).Observe(time.Since(start).Seconds())
	}
}
