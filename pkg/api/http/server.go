package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aescanero/shiptrack/internal/application/orchestrator"
	"github.com/aescanero/shiptrack/pkg/ports"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server
type Server struct {
	router       *gin.Engine
	server       *http.Server
	orchestrator *orchestrator.Manager
	orders       ports.OrderStore
	sessions     ports.SessionValidator
	checks       map[string]HealthCheck
	logger       *zap.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Port int
	// Orchestrator is nil when the process only runs the engine; the
	// shipment routes are not mounted then.
	Orchestrator *orchestrator.Manager
	Orders       ports.OrderStore
	Sessions     ports.SessionValidator
	Gatherer     prometheus.Gatherer
	Checks       map[string]HealthCheck
	Logger       *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(cfg.Logger))
	router.Use(corsMiddleware())

	s := &Server{
		router:       router,
		orchestrator: cfg.Orchestrator,
		orders:       cfg.Orders,
		sessions:     cfg.Sessions,
		checks:       cfg.Checks,
		logger:       cfg.Logger,
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.setupRoutes(gatherer)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures API routes
func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// Metrics
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	if s.orchestrator == nil {
		return
	}

	// API v1
	v1 := s.router.Group("/api/v1")
	if s.sessions != nil {
		v1.Use(sessionMiddleware(s.sessions))
	}
	{
		// Shipment tracking endpoints
		v1.POST("/shipments/:id/tracking", s.handleBeginTracking)
		v1.DELETE("/shipments/:id/tracking", s.handleCancelTracking)
		v1.GET("/shipments/:id/position", s.handleGetPosition)
		v1.GET("/shipments/:id/milestones", s.handleGetMilestones)
	}
}

// SetupWebSocket mounts the WebSocket streams
func (s *Server) SetupWebSocket(handler interface {
	HandleTrack(*gin.Context)
	HandleEvents(*gin.Context)
}) {
	s.router.GET("/api/v1/track/ws", handler.HandleTrack)
	s.router.GET("/api/v1/events/ws", handler.HandleEvents)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.logger.Info("HTTP server shut down complete")
	return nil
}

// requestLogger is a middleware for request logging
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		duration := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()))
	}
}
