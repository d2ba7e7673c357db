package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/api/server"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/messaging"
	"github.com/questlog/questlog/internal/notify"
	"github.com/questlog/questlog/internal/providers/catalog/gamesdb"
	"github.com/questlog/questlog/internal/providers/catalog/igdb"
	"github.com/questlog/questlog/internal/providers/catalog/rawg"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/providers/steam"
	"github.com/questlog/questlog/internal/ratelimit"
	"github.com/questlog/questlog/internal/search"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/sweeper"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAPIConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "api-server",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Questlog API")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

	// Initialize adapters
	clock := adapter.NewClock()
	jsonAdapter := adapter.NewJSON()
	httpClient := adapter.NewHTTPClient(cfg.Providers.Timeout)

	// Rate limit outgoing provider calls
	rateLimitProxy, err := ratelimit.NewProxy(cfg.RateLimit)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create rate limit proxy", zap.Error(err))
	}
	defer rateLimitProxy.Close()

	// Directory and auth
	dir := directory.NewClient(cfg.Directory)
	authSvc := auth.NewService(dataStore, dir, clock, cfg.Auth)
	if err := authSvc.EnsureAdmin(ctx); err != nil {
		logger.FatalCtx(ctx, "Failed to ensure admin account", zap.Error(err))
	}

	// Catalog search engine, providers in merge priority order
	providers := []search.Provider{
		igdb.NewClient(httpClient, rateLimitProxy, cfg.Providers.IGDB.TokenURL, cfg.Providers.IGDB.APIURL,
			cfg.Providers.IGDB.ClientID, cfg.Providers.IGDB.ClientSecret, jsonAdapter, clock),
		rawg.NewClient(httpClient, rateLimitProxy, cfg.Providers.RAWG.APIURL, cfg.Providers.RAWG.APIKey, jsonAdapter),
	}
	if cfg.Providers.GamesDB.APIKey != "" {
		providers = append(providers,
			gamesdb.NewClient(httpClient, rateLimitProxy, cfg.Providers.GamesDB.APIURL, cfg.Providers.GamesDB.APIKey, jsonAdapter))
	} else {
		logger.WarnCtx(ctx, "TheGamesDB API key not configured, provider disabled")
	}
	engine := search.NewEngine(providers...)
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error(err)
		}
	}()

	// Steam pricing
	steamClient := steam.NewClient(httpClient, rateLimitProxy, cfg.Steam.StoreAPIURL, cfg.Steam.CountryCode, jsonAdapter)

	// NATS event publisher (optional)
	var publisher messaging.Publisher
	if cfg.NATS.URL != "" {
		publisher, err = messaging.NewPublisher(cfg.NATS, adapter.NewNatsJetStream(), jsonAdapter, clock)
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
		}
		defer publisher.Close()
		logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))
	} else {
		logger.WarnCtx(ctx, "NATS not configured, events will not be published")
	}

	// Notification channels
	mailer := adapter.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	pusher := notify.NewNtfyPusher(httpClient, cfg.Push.ServerURL)
	dispatcher := notify.NewDispatcher(dataStore, dir, mailer, pusher, publisher, cfg.SMTP, cfg.Push)

	// On-demand sweepers for the admin endpoints
	releaseSweeper := sweeper.NewReleaseSweeper(&config.ReleaseSweeperConfig{
		Worker: config.WorkerConfig{WorkerPoolSize: 4, WorkerQueueSize: 64},
	}, dataStore, dispatcher, clock)
	priceSweeper := sweeper.NewPriceSweeper(&config.PriceSweeperConfig{
		Worker: config.WorkerConfig{WorkerPoolSize: 4, WorkerQueueSize: 64},
	}, dataStore, steamClient, jsonAdapter, clock)

	// Create server config
	serverConfig := server.Config{
		Debug:          cfg.Debug,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    time.Duration(cfg.Server.IdleTimeout) * time.Second,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}

	// Create and start server
	srv := server.New(serverConfig, server.Dependencies{
		Store:      dataStore,
		Auth:       authSvc,
		Engine:     engine,
		Dispatcher: dispatcher,
		Steam:      steamClient,
		Releases:   releaseSweeper,
		Prices:     priceSweeper,
		Directory:  dir,
		Clock:      clock,
	})

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "server"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down server...")

	// Shutdown server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("API server stopped")
}
