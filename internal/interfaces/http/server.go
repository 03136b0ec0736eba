// Package http exposes the approval engine and its administration services over gin.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/hr-approval/internal/application/port"
	"github.com/garyjia/hr-approval/internal/application/service"
	appwf "github.com/garyjia/hr-approval/internal/application/workflow"
)

// RequestIDHeader carries the correlation id echoed on every response
const RequestIDHeader = "X-Request-ID"

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	Mode         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MetricsPath  string
	Version      string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		Mode:         gin.ReleaseMode,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		MetricsPath:  "/metrics",
		Version:      "dev",
	}
}

// Dependencies are the application components the API fronts.
// Metrics is optional; when nil the metrics route is not registered.
type Dependencies struct {
	Engine        appwf.Engine
	Definitions   service.DefinitionService
	Org           service.OrgService
	Notifications service.NotificationService
	Metrics       http.Handler
	Clock         port.Clock
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if deps.Clock == nil {
		deps.Clock = port.SystemClock{}
	}

	server := &Server{
		config: config,
		deps:   deps,
		router: gin.New(),
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// requestIDMiddleware reuses an inbound X-Request-ID or mints a new one
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"request_id", c.GetString("request_id"),
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func (s *Server) setupRoutes() {
	h := &Handlers{
		engine:        s.deps.Engine,
		definitions:   s.deps.Definitions,
		org:           s.deps.Org,
		notifications: s.deps.Notifications,
		clock:         s.deps.Clock,
		version:       s.config.Version,
		logger:        s.logger,
	}

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Metrics != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(s.deps.Metrics))
	}

	api := s.router.Group("/api")
	{
		workflows := api.Group("/workflows")
		workflows.POST("", h.CreateWorkflow)
		workflows.GET("", h.ListWorkflows)
		workflows.GET("/:id", h.GetWorkflow)
		workflows.POST("/:id/activate", h.ActivateWorkflow)
		workflows.POST("/:id/deactivate", h.DeactivateWorkflow)

		approvals := api.Group("/approvals")
		approvals.POST("", h.CreateApproval)
		approvals.POST("/sweep", h.SweepAutoApprovals)
		approvals.GET("/:id", h.GetApproval)
		approvals.GET("/:id/history", h.GetApprovalHistory)
		approvals.GET("/:id/notifications", h.GetApprovalNotifications)
		approvals.POST("/:id/decisions", h.RecordDecision)
		approvals.POST("/:id/cancel", h.CancelApproval)

		api.GET("/entities/:entityType/:entityId/approval", h.GetApprovalByEntity)
		api.GET("/approvers/:userId/pending", h.ListPendingForApprover)

		org := api.Group("/org")
		org.PUT("/departments/:id", h.UpsertDepartment)
		org.PUT("/employees/:id", h.UpsertEmployee)
		org.PUT("/employees/:id/roles/:roleId", h.AssignRole)
		org.DELETE("/employees/:id/roles/:roleId", h.RevokeRole)
	}
}

// Start serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
