package sweeper

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/config"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/notify"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/store/schema"
)

// SweepReport summarizes one release sweep
type SweepReport struct {
	UsersChecked  int           `json:"usersChecked"`
	GamesChecked  int           `json:"gamesChecked"`
	RemindersSent int           `json:"remindersSent"`
	Released      int           `json:"released"`
	Failures      int           `json:"failures"`
	Duration      time.Duration `json:"duration"`
}

// ReleaseSweeper extends Sweeper with the on-demand sweep used by the admin
// API, to enable mocking
type ReleaseSweeper interface {
	Sweeper
	RunOnce(ctx context.Context) (*SweepReport, error)
}

// releaseSweeper implements the ReleaseSweeper interface for release
// reminders and the unreleased-to-wishlist transition
type releaseSweeper struct {
	config     *config.ReleaseSweeperConfig
	store      store.Store
	dispatcher notify.Dispatcher
	clock      adapter.Clock
	running    atomic.Bool
	stopChan   chan struct{}
	stoppedCh  chan struct{}
}

// NewReleaseSweeper creates a new release sweeper
func NewReleaseSweeper(
	cfg *config.ReleaseSweeperConfig,
	st store.Store,
	dispatcher notify.Dispatcher,
	clock adapter.Clock,
) ReleaseSweeper {
	return &releaseSweeper{
		config:     cfg,
		store:      st,
		dispatcher: dispatcher,
		clock:      clock,
		stopChan:   make(chan struct{}),
		stoppedCh:  make(chan struct{}),
	}
}

// Name returns the sweeper's name
func (s *releaseSweeper) Name() string {
	return "release-sweeper"
}

// Start begins the sweeper's main loop - one sweep per day at the configured
// UTC hour
func (s *releaseSweeper) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("sweeper already running")
	}
	defer func() {
		s.running.Store(false)
		close(s.stoppedCh)
	}()

	logger.InfoCtx(ctx, "Starting release sweeper",
		zap.Int("hour_utc", s.config.Hour),
		zap.Int("worker_pool_size", s.config.Worker.WorkerPoolSize),
	)

	for {
		delay := nextDailyRun(s.clock.Now(), s.config.Hour)
		logger.InfoCtx(ctx, "Next release sweep scheduled", zap.Duration("in", delay))

		select {
		case <-ctx.Done():
			logger.InfoCtx(ctx, "Release sweeper stopping due to context cancellation", zap.Error(ctx.Err()))
			return nil
		case <-s.stopChan:
			logger.InfoCtx(ctx, "Release sweeper stop requested")
			return nil
		case <-s.clock.After(delay):
			if _, err := s.RunOnce(ctx); err != nil {
				logger.ErrorCtx(ctx, err)
			}
		}
	}
}

// Stop gracefully stops the sweeper with timeout support
func (s *releaseSweeper) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil // Already stopped
	}

	logger.InfoCtx(ctx, "Stopping release sweeper")
	close(s.stopChan)

	select {
	case <-s.stoppedCh:
		logger.InfoCtx(ctx, "Release sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		logger.WarnCtx(ctx, "Release sweeper stop interrupted by context timeout")
		return ctx.Err()
	}
}

// RunOnce runs a single sweep over every user's unreleased games. It is the
// shared code path for the daily loop and the on-demand admin trigger.
func (s *releaseSweeper) RunOnce(ctx context.Context) (*SweepReport, error) {
	startTime := s.clock.Now()
	logger.InfoCtx(ctx, "Starting release sweep")

	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	pool := pond.NewPool(
		s.config.Worker.WorkerPoolSize,
		pond.WithQueueSize(s.config.Worker.WorkerQueueSize),
		pond.WithContext(ctx),
	)

	var gamesChecked, remindersSent, released, failures atomic.Int32

	for _, user := range users {
		games, err := s.store.ListGamesByStatus(ctx, user.ID, domain.GameStatusUnreleased)
		if err != nil {
			// One user's store error never aborts the sweep
			logger.ErrorCtx(ctx, fmt.Errorf("failed to list unreleased games: %w", err),
				zap.String("username", user.Username))
			failures.Add(1)
			continue
		}

		for _, game := range games {
			if game.ReleaseDate == nil {
				continue
			}

			user, game := user, game
			pool.Submit(func() {
				gamesChecked.Add(1)
				s.checkGame(ctx, user, game, startTime, &remindersSent, &released, &failures)
			})
		}
	}

	pool.StopAndWait()

	report := &SweepReport{
		UsersChecked:  len(users),
		GamesChecked:  int(gamesChecked.Load()),
		RemindersSent: int(remindersSent.Load()),
		Released:      int(released.Load()),
		Failures:      int(failures.Load()),
		Duration:      s.clock.Since(startTime),
	}

	logger.InfoCtx(ctx, "Release sweep completed",
		zap.Int("users_checked", report.UsersChecked),
		zap.Int("games_checked", report.GamesChecked),
		zap.Int("reminders_sent", report.RemindersSent),
		zap.Int("released", report.Released),
		zap.Int("failures", report.Failures),
		zap.Duration("duration", report.Duration),
	)

	return report, nil
}

// checkGame decides what a single unreleased game needs: the release
// transition when the date has passed, an edge-triggered reminder on the
// exact 30 and 7 day offsets, or nothing
func (s *releaseSweeper) checkGame(
	ctx context.Context,
	user *schema.User,
	game *schema.TrackedGame,
	now time.Time,
	remindersSent, released, failures *atomic.Int32,
) {
	diffDays, err := domain.DaysUntilRelease(*game.ReleaseDate, now)
	if err != nil {
		logger.WarnCtx(ctx, "skipping game with unparseable release date",
			zap.String("username", user.Username),
			zap.Int64("game_id", game.ID),
			zap.Stringp("release_date", game.ReleaseDate),
			zap.Error(err))
		failures.Add(1)
		return
	}

	if diffDays <= 0 {
		s.releaseGame(ctx, user, game, released, failures)
		return
	}

	kind, ok := domain.KindForOffset(diffDays)
	if !ok {
		// Edge-triggered: a missed day is never caught up
		return
	}

	sent, err := s.store.WasReminderSent(ctx, user.ID, game.ID, kind)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to check reminder ledger: %w", err),
			zap.String("username", user.Username),
			zap.Int64("game_id", game.ID))
		failures.Add(1)
		return
	}
	if sent {
		return
	}

	event := domain.LibraryEvent{
		Type:        domain.EventReleaseReminder,
		Username:    user.Username,
		GameID:      game.ID,
		GameName:    game.Name,
		ReleaseDate: game.ReleaseDate,
		Kind:        kind,
		DaysUntil:   &diffDays,
		OccurredAt:  now,
	}
	result := s.dispatcher.Dispatch(ctx, user, event)

	// Mark even when every channel failed: reminders are at-most-once and
	// never retried on a later sweep
	if err := s.store.MarkReminderSent(ctx, user.ID, game.ID, kind); err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to mark reminder sent: %w", err),
			zap.String("username", user.Username),
			zap.Int64("game_id", game.ID),
			zap.String("kind", string(kind)))
		failures.Add(1)
		return
	}

	logger.InfoCtx(ctx, "Release reminder dispatched",
		zap.String("username", user.Username),
		zap.String("game", game.Name),
		zap.String("kind", string(kind)),
		zap.Any("result", result))
	remindersSent.Add(1)
}

// releaseGame flips an overdue game to wishlist and fires the release event.
// The conditional transition in the store makes the event fire exactly once
// even across concurrent sweeps.
func (s *releaseSweeper) releaseGame(
	ctx context.Context,
	user *schema.User,
	game *schema.TrackedGame,
	released, failures *atomic.Int32,
) {
	transitioned, err := s.store.ReleaseTrackedGame(ctx, game.ID)
	if err != nil {
		logger.ErrorCtx(ctx, fmt.Errorf("failed to release tracked game: %w", err),
			zap.String("username", user.Username),
			zap.Int64("game_id", game.ID))
		failures.Add(1)
		return
	}
	if !transitioned {
		return
	}

	event := domain.LibraryEvent{
		Type:        domain.EventGameReleased,
		Username:    user.Username,
		GameID:      game.ID,
		GameName:    game.Name,
		Status:      domain.GameStatusWishlist,
		ReleaseDate: game.ReleaseDate,
		OccurredAt:  s.clock.Now(),
	}
	result := s.dispatcher.Dispatch(ctx, user, event)

	logger.InfoCtx(ctx, "Game released",
		zap.String("username", user.Username),
		zap.String("game", game.Name),
		zap.Any("result", result))
	released.Add(1)
}

// nextDailyRun computes the wait until the next occurrence of the given UTC
// hour
func nextDailyRun(now time.Time, hour int) time.Duration {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
