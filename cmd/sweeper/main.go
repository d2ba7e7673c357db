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
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/messaging"
	"github.com/questlog/questlog/internal/notify"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/providers/steam"
	"github.com/questlog/questlog/internal/ratelimit"
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
	cfg, err := config.LoadSweeperConfig(*configFile, *envPath)
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
			"service": "sweeper",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting Questlog sweeper")

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
	httpClient := adapter.NewHTTPClient(30 * time.Second)

	// Rate limit outgoing Steam calls
	rateLimitProxy, err := ratelimit.NewProxy(cfg.RateLimit)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to create rate limit proxy", zap.Error(err))
	}
	defer rateLimitProxy.Close()

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
	dir := directory.NewClient(cfg.Directory)
	mailer := adapter.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password)
	pusher := notify.NewNtfyPusher(httpClient, cfg.Push.ServerURL)
	dispatcher := notify.NewDispatcher(dataStore, dir, mailer, pusher, publisher, cfg.SMTP, cfg.Push)

	// Steam pricing
	steamClient := steam.NewClient(httpClient, rateLimitProxy, cfg.Steam.StoreAPIURL, cfg.Steam.CountryCode, jsonAdapter)

	// Initialize sweepers
	releaseSweeper := sweeper.NewReleaseSweeper(&cfg.ReleaseSweeper, dataStore, dispatcher, clock)
	priceSweeper := sweeper.NewPriceSweeper(&cfg.PriceSweeper, dataStore, steamClient, jsonAdapter, clock)

	logger.InfoCtx(ctx, "Initialized sweepers",
		zap.Int("release_hour", cfg.ReleaseSweeper.Hour),
		zap.Int("price_weekday", cfg.PriceSweeper.Weekday),
		zap.Int("price_hour", cfg.PriceSweeper.Hour),
	)

	// Start the sweepers in goroutines
	sweepers := []sweeper.Sweeper{releaseSweeper, priceSweeper}
	errChan := make(chan error, len(sweepers))
	for _, sw := range sweepers {
		go func(sw sweeper.Sweeper) {
			if err := sw.Start(ctx); err != nil {
				errChan <- fmt.Errorf("%s: %w", sw.Name(), err)
			}
		}(sw)
	}

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	// Cancel context to stop the sweepers
	cancel()

	// Give the sweepers time to shut down gracefully
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	for _, sw := range sweepers {
		if err := sw.Stop(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err, zap.String("sweeper", sw.Name()))
		}
	}

	logger.InfoCtx(shutdownCtx, "Sweeper stopped")
}
