package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/providers/steam"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/store/schema"
)

// PriceReport summarizes one price refresh sweep
type PriceReport struct {
	GamesChecked int           `json:"gamesChecked"`
	Updated      int           `json:"updated"`
	NoPrice      int           `json:"noPrice"`
	Failures     int           `json:"failures"`
	Duration     time.Duration `json:"duration"`
}

// PriceSweeper extends Sweeper with the on-demand sweep used by the admin
// API, to enable mocking
type PriceSweeper interface {
	Sweeper
	RunOnce(ctx context.Context) (*PriceReport, error)
}

// priceSweeper implements the PriceSweeper interface for the weekly Steam
// price refresh
type priceSweeper struct {
	config    *config.PriceSweeperConfig
	store     store.Store
	steam     steam.Client
	json      adapter.JSON
	clock     adapter.Clock
	running   atomic.Bool
	stopChan  chan struct{}
	stoppedCh chan struct{}
}

// NewPriceSweeper creates a new price sweeper
func NewPriceSweeper(
	cfg *config.PriceSweeperConfig,
	st store.Store,
	steamClient steam.Client,
	jsonAdapter adapter.JSON,
	clock adapter.Clock,
) PriceSweeper {
	return &priceSweeper{
		config:    cfg,
		store:     st,
		steam:     steamClient,
		json:      jsonAdapter,
		clock:     clock,
		stopChan:  make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *priceSweeper) Name() string {
	return "price-sweeper"
}

// Start begins the sweeper's main loop - one sweep per week at the configured
// UTC weekday and hour
func (s *priceSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting price sweeper",
		zap.Int("weekday", s.config.Weekday),
		zap.Int("hour_utc", s.config.Hour),
	)

	for {
		delay := nextWeeklyRun(s.clock.Now(), s.config.Weekday, s.config.Hour)
		logger.InfoCtx(ctx, "Next price sweep scheduled", zap.Duration("in", delay))

		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Price sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Price sweeper stop requested")
			return nil
		case <-s.clock.After(delay):
			if _, err := s.RunOnce(ctx); err != nil {
				logger.ErrorCtx(ctx, err)
			}
		}
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *priceSweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping price sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Price sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Price sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// RunOnce refreshes the cached price of every tracked game with a Steam app
// id. Shared by the weekly loop and the on-demand admin trigger.
func (s *priceSweeper) RunOnce(ctx context.Context) (*PriceReport, error) {
	startTime := s.clock.Now()
	logger.InfoCtx(ctx, "Starting price sweep")

	games, err := s.store.ListGamesWithSteamApp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list games with a Steam app id: %w", err)
	}

	pool := pond.NewPool(
		s.config.Worker.WorkerPoolSize,
		pond.WithQueueSize(s.config.Worker.WorkerQueueSize),
		pond.WithContext(ctx),
	)

	var updated, noPrice, failures atomic.Int32

	for _, game := range games {
		game := game
		pool.Submit(func() {
			s.refreshPrice(ctx, game, &updated, &noPrice, &failures)
		})
	}

	pool.StopAndWait()

	report := &PriceReport{
		GamesChecked: len(games),
		Updated:      int(updated.Load()),
		NoPrice:      int(noPrice.Load()),
		Failures:     int(failures.Load()),
		Duration:     s.clock.Since(startTime),
	}

	logger.InfoCtx(ctx, "Price sweep completed",
		zap.Int("games_checked", report.GamesChecked),
		zap.Int("updated", report.Updated),
		zap.Int("no_price", report.NoPrice),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// refreshPrice queries the store price of one game and overwrites the cache.
// Each item is independent and best-effort.
func (s *priceSweeper) refreshPrice(ctx context.Context, game *schema.TrackedGame, updated, noPrice, failures *atomic.Int32) {
	price, err := s.steam.GetPrice(ctx, *game.SteamAppID)
	if err != nil {
		if errors.Is(err, domain.ErrPriceNotFound) {
			// Free to play, unreleased or delisted: nothing to cache
			noPrice.Add(1)
			return
		}
		logger.WarnCtx(ctx, "price lookup failed",
			zap.Int64("game_id", game.ID),
			zap.Stringp("steam_app_id", game.SteamAppID),
			zap.Error(err))
		failures.Add(1)
		return
	}

	data, err := s.json.Marshal(price)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to marshal price info: %w", err),
			zap.Int64("game_id", game.ID))
		failures.Add(1)
		return
	}

	if err := s.store.UpdateGamePrice(ctx, game.ID, datatypes.JSON(data), s.clock.Now()); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to cache price: %w", err),
			zap.Int64("game_id", game.ID))
		failures.Add(1)
		return
	}

	updated.Add(1)
}

// nextWeeklyRun computes the wait until the next occurrence of the given UTC
// weekday (0=Sunday) and hour
func nextWeeklyRun(now time.Time, weekday, hour int) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	days := (weekday - int(next.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, days)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next.Sub(now)
}
