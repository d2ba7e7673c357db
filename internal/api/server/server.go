package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/api/middleware"
	"github.com/questlog/questlog/internal/api/rest"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/notify"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/providers/steam"
	"github.com/questlog/questlog/internal/search"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/sweeper"
)

// Config holds the server configuration
type Config struct {
	Debug          bool
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	AllowedOrigins []string
}

// Dependencies bundles the services the API surfaces
type Dependencies struct {
	Store      store.Store
	Auth       auth.Service
	Engine     search.Engine
	Dispatcher notify.Dispatcher
	Steam      steam.Client
	Releases   sweeper.ReleaseSweeper
	Prices     sweeper.PriceSweeper
	Directory  directory.Client
	Clock      adapter.Clock
}

// Server wraps the HTTP server
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
}

// New creates a new API server
func New(cfg Config, deps Dependencies) *Server {
	return &Server{
		config: cfg,
		deps:   deps,
	}
}

// Start initializes and starts the HTTP server
func (s *Server) Start() error {
	// Set Gin mode based on debug flag
	if s.config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Create Gin router
	router := gin.New()

	// Setup middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.SetupCORS(s.config.AllowedOrigins))

	// Create REST handler
	restHandler := rest.NewHandler(
		s.deps.Store,
		s.deps.Auth,
		s.deps.Engine,
		s.deps.Dispatcher,
		s.deps.Steam,
		s.deps.Releases,
		s.deps.Prices,
		s.deps.Directory,
		s.deps.Clock,
	)

	// Setup REST routes
	rest.SetupRoutes(router, restHandler, s.deps.Auth)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	logger.Info("Starting API server",
		zap.String("address", addr),
	)

	// Start server
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Shutting down API server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
	}

	return nil
}
