package store

import (
	"context"
	"time"

	"gorm.io/datatypes"

	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/store/schema"
)

// Store defines the interface for database operations
type Store interface {
	// Users
	GetUserByID(ctx context.Context, userID int64) (*schema.User, error)
	GetUserByUsername(ctx context.Context, username string) (*schema.User, error)
	ListUsers(ctx context.Context) ([]*schema.User, error)
	CreateUser(ctx context.Context, user *schema.User) error
	GetOrCreateDirectoryUser(ctx context.Context, username string) (*schema.User, error)
	UpdateUserEmail(ctx context.Context, userID int64, email *string) error
	// UpdateDirectoryProfile refreshes fields learned from the directory.
	// Nil values leave the current value in place.
	UpdateDirectoryProfile(ctx context.Context, userID int64, displayName, email *string) error
	UpdateUserPushTopic(ctx context.Context, userID int64, topic *string) error
	UpdateUserSharing(ctx context.Context, userID int64, sharesLibrary bool) error
	UpdateUserAdmin(ctx context.Context, userID int64, isAdmin bool) error
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error
	ListSharingUsers(ctx context.Context) ([]*schema.User, error)
	DeleteUser(ctx context.Context, userID int64) error

	// Login rate limiting, keyed by client address
	CountLoginAttempts(ctx context.Context, clientIP string, since time.Time) (int64, error)
	RecordLoginAttempt(ctx context.Context, clientIP string, at time.Time) error
	ClearLoginAttempts(ctx context.Context, clientIP string) error

	// Library
	ListGames(ctx context.Context, userID int64) ([]*schema.TrackedGame, error)
	ListGamesByStatus(ctx context.Context, userID int64, status domain.GameStatus) ([]*schema.TrackedGame, error)
	GetGame(ctx context.Context, userID, gameID int64) (*schema.TrackedGame, error)
	AddGame(ctx context.Context, game *schema.TrackedGame) error
	UpdateGame(ctx context.Context, game *schema.TrackedGame) error
	UpdateGameStatus(ctx context.Context, userID, gameID int64, status domain.GameStatus) error
	DeleteGame(ctx context.Context, userID, gameID int64) error
	ListGamesWithSteamApp(ctx context.Context) ([]*schema.TrackedGame, error)
	// ReleaseTrackedGame flips a game from unreleased to wishlist. It reports
	// whether the transition happened; a game whose status changed in the
	// meantime is left untouched.
	ReleaseTrackedGame(ctx context.Context, gameID int64) (bool, error)
	UpdateGamePrice(ctx context.Context, gameID int64, priceInfo datatypes.JSON, at time.Time) error

	// Reminder ledger
	WasReminderSent(ctx context.Context, userID, gameID int64, kind domain.ReminderKind) (bool, error)
	MarkReminderSent(ctx context.Context, userID, gameID int64, kind domain.ReminderKind) error

	// Library sharing
	ListSharesFrom(ctx context.Context, fromUserID int64) ([]*schema.LibraryShare, error)
	ListSharesTo(ctx context.Context, toUserID int64) ([]*schema.LibraryShare, error)
	SetShares(ctx context.Context, fromUserID int64, toUserIDs []int64) error
	HasShare(ctx context.Context, fromUserID, toUserID int64) (bool, error)

	// Health
	Ping(ctx context.Context) error
	Counts(ctx context.Context) (*Counts, error)
}

// Counts holds the row counts reported by the health endpoint
type Counts struct {
	Users int64 `json:"users"`
	Games int64 `json:"games"`
}
