// Package server provides the HTTP server for the SiBiSee detection application.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sibisee/sibisee/internal/app"
	"github.com/sibisee/sibisee/internal/ice"
	"github.com/sibisee/sibisee/internal/logger"
	"github.com/sibisee/sibisee/internal/server/api"
)

// Config holds the server configuration.
type Config struct {
	// App serves the detection API. Without it only health, metrics and static files are routed.
	App *app.App

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	// StaticDir holds the web UI.
	StaticDir string

	// Model describes the loaded model in health responses.
	Model string
}

// Server represents the HTTP server for the SiBiSee application.
type Server struct {
	config Config
	engine *gin.Engine
	start  time.Time

	mu   sync.Mutex
	http *http.Server
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(requestLogger(), gin.CustomRecovery(recoverPanic))

	s := &Server{
		config: config,
		engine: engine,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.engine.GET("/api/health", s.handleHealth)

	if s.config.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.config.Metrics))
	}

	if a := s.config.App; a != nil {
		service := a.ICE()
		if service == nil {
			service = ice.NewService(ice.Config{})
		}

		settings := api.NewSettingsHandler(a)
		detect := api.NewDetectHandler(a)
		iceServers := api.NewICEHandler(service)
		liveHandler := api.NewLiveHandler(a)
		sessions := api.NewSessionsHandler(a.Store())
		socket := NewLiveSocketHandler(a.Live())

		group := s.engine.Group("/api")
		group.GET("/config", settings.Config)
		group.PUT("/settings/confidence", settings.SetConfidence)
		group.GET("/ice-servers", iceServers.Servers)
		group.POST("/detect", detect.Detect)
		group.POST("/live/offer", liveHandler.Offer)
		group.GET("/live", liveHandler.List)
		group.DELETE("/live/:id", liveHandler.Close)
		group.GET("/live/ws", socket.Serve)
		group.GET("/sessions", sessions.List)
	}

	var files http.Handler
	if s.config.StaticDir != "" {
		files = http.FileServer(http.Dir(s.config.StaticDir))
	}
	s.engine.NoRoute(func(c *gin.Context) {
		method := c.Request.Method
		if files == nil || strings.HasPrefix(c.Request.URL.Path, "/api/") || (method != http.MethodGet && method != http.MethodHead) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(c *gin.Context) {
	response := gin.H{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
		"model":  s.config.Model,
	}
	if s.config.App != nil {
		response["live_sessions"] = s.config.App.Live().Count()
		response["confidence"] = s.config.App.Confidence()
	}
	c.JSON(http.StatusOK, response)
}

// ListenAndServe starts the HTTP server on the given address. It returns nil
// after Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	logger.Log().Info("http server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a server started with ListenAndServe.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// requestLogger logs one line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Log().Error("http request", fields...)
		case status >= http.StatusBadRequest:
			logger.Log().Warn("http request", fields...)
		default:
			logger.Log().Debug("http request", fields...)
		}
	}
}

func recoverPanic(c *gin.Context, recovered any) {
	logger.Log().Error("panic in http handler",
		zap.Any("panic", recovered),
		zap.String("path", c.Request.URL.Path),
	)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
