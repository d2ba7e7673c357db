package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM database connection.
// If any of the pool settings are 0, reasonable defaults are used.
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// GetUserByID retrieves a user by its internal ID
func (s *pgStore) GetUserByID(ctx context.Context, userID int64) (*schema.User, error) {
	var user schema.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by its canonical username
func (s *pgStore) GetUserByUsername(ctx context.Context, username string) (*schema.User, error) {
	var user schema.User
	err := s.db.WithContext(ctx).
		Where("username = ?", domain.NormalizeUsername(username)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ListUsers retrieves all users ordered by username
func (s *pgStore) ListUsers(ctx context.Context) ([]*schema.User, error) {
	var users []*schema.User
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// CreateUser creates a new user. The username is canonicalized before insert.
// Returns domain.ErrUserExists when the username is already taken.
func (s *pgStore) CreateUser(ctx context.Context, user *schema.User) error {
	user.Username = domain.NormalizeUsername(user.Username)

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(user).Error
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	// ID stays 0 when the insert hit the conflict clause
	if user.ID == 0 {
		return domain.ErrUserExists
	}

	return nil
}

// GetOrCreateDirectoryUser returns the user with the given name, creating a
// directory-origin account on first login
func (s *pgStore) GetOrCreateDirectoryUser(ctx context.Context, username string) (*schema.User, error) {
	username = domain.NormalizeUsername(username)

	user := schema.User{
		Username: username,
		Origin:   domain.OriginDirectory,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoNothing: true,
	}).Clauses(clause.Returning{Columns: []clause.Column{}}).
		Create(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create directory user: %w", err)
	}

	// If user.ID is 0 the account already existed, so fetch it
	if user.ID == 0 {
		return s.GetUserByUsername(ctx, username)
	}

	return &user, nil
}

// UpdateUserEmail updates the notification email of a user. Passing nil clears it.
func (s *pgStore) UpdateUserEmail(ctx context.Context, userID int64, email *string) error {
	return s.updateUserColumn(ctx, userID, "email", email)
}

// UpdateDirectoryProfile refreshes fields learned from the directory.
// Nil values leave the current value in place.
func (s *pgStore) UpdateDirectoryProfile(ctx context.Context, userID int64, displayName, email *string) error {
	updates := map[string]interface{}{
		"updated_at": time.Now(),
	}
	if displayName != nil {
		updates["display_name"] = *displayName
	}
	if email != nil {
		updates["email"] = *email
	}

	result := s.db.WithContext(ctx).
		Model(&schema.User{}).
		Where("id = ?", userID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update directory profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdateUserPushTopic updates the push topic of a user. Passing nil clears it.
func (s *pgStore) UpdateUserPushTopic(ctx context.Context, userID int64, topic *string) error {
	return s.updateUserColumn(ctx, userID, "push_topic", topic)
}

// UpdateUserSharing flips whether the user's library is browsable by everyone
func (s *pgStore) UpdateUserSharing(ctx context.Context, userID int64, sharesLibrary bool) error {
	return s.updateUserColumn(ctx, userID, "shares_library", sharesLibrary)
}

// UpdateUserAdmin flips the admin flag of a user
func (s *pgStore) UpdateUserAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	return s.updateUserColumn(ctx, userID, "is_admin", isAdmin)
}

// UpdateUserPassword replaces the password hash of a user
func (s *pgStore) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string) error {
	return s.updateUserColumn(ctx, userID, "password_hash", passwordHash)
}

// ListSharingUsers returns all users whose library is open for browsing
func (s *pgStore) ListSharingUsers(ctx context.Context) ([]*schema.User, error) {
	var users []*schema.User
	err := s.db.WithContext(ctx).
		Where("shares_library = ?", true).
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list sharing users: %w", err)
	}
	return users, nil
}

func (s *pgStore) updateUserColumn(ctx context.Context, userID int64, column string, value interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&schema.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			column:       value,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update user %s: %w", column, result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes a user together with its library, shares and reminder
// ledger entries
func (s *pgStore) DeleteUser(ctx context.Context, userID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user schema.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.ErrUserNotFound
			}
			return fmt.Errorf("failed to get user: %w", err)
		}

		if err := tx.Where("user_id = ?", userID).Delete(&schema.NotificationRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete notification records: %w", err)
		}
		if err := tx.Where("from_user_id = ? OR to_user_id = ?", userID, userID).Delete(&schema.LibraryShare{}).Error; err != nil {
			return fmt.Errorf("failed to delete shares: %w", err)
		}
		if err := tx.Where("user_id = ?", userID).Delete(&schema.TrackedGame{}).Error; err != nil {
			return fmt.Errorf("failed to delete games: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}

// CountLoginAttempts counts failed login attempts from a client address since the given time
func (s *pgStore) CountLoginAttempts(ctx context.Context, clientIP string, since time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.LoginAttempt{}).
		Where("client_ip = ? AND attempted_at >= ?", clientIP, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count login attempts: %w", err)
	}
	return count, nil
}

// RecordLoginAttempt records a failed login attempt
func (s *pgStore) RecordLoginAttempt(ctx context.Context, clientIP string, at time.Time) error {
	attempt := schema.LoginAttempt{
		ClientIP:    clientIP,
		AttemptedAt: at,
	}
	if err := s.db.WithContext(ctx).Create(&attempt).Error; err != nil {
		return fmt.Errorf("failed to record login attempt: %w", err)
	}
	return nil
}

// ClearLoginAttempts removes all recorded attempts from a client address after a successful login
func (s *pgStore) ClearLoginAttempts(ctx context.Context, clientIP string) error {
	err := s.db.WithContext(ctx).
		Where("client_ip = ?", clientIP).
		Delete(&schema.LoginAttempt{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear login attempts: %w", err)
	}
	return nil
}

// ListGames retrieves all games in a user's library ordered by name
func (s *pgStore) ListGames(ctx context.Context, userID int64) ([]*schema.TrackedGame, error) {
	var games []*schema.TrackedGame
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name").
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

// ListGamesByStatus retrieves games of a user filtered by status
func (s *pgStore) ListGamesByStatus(ctx context.Context, userID int64, status domain.GameStatus) ([]*schema.TrackedGame, error) {
	var games []*schema.TrackedGame
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("name").
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list games by status: %w", err)
	}
	return games, nil
}

// GetGame retrieves a single game scoped to its owner
func (s *pgStore) GetGame(ctx context.Context, userID, gameID int64) (*schema.TrackedGame, error) {
	var game schema.TrackedGame
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", gameID, userID).
		First(&game).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get game: %w", err)
	}
	return &game, nil
}

// AddGame adds a game to a user's library
func (s *pgStore) AddGame(ctx context.Context, game *schema.TrackedGame) error {
	if game.ReleaseDate == nil {
		game.Status = domain.GameStatusUnreleased
	}
	if err := s.db.WithContext(ctx).Create(game).Error; err != nil {
		return fmt.Errorf("failed to add game: %w", err)
	}
	return nil
}

// UpdateGame saves changed fields of a game. A game left without a release
// date always goes back to the unreleased status.
func (s *pgStore) UpdateGame(ctx context.Context, game *schema.TrackedGame) error {
	if game.ReleaseDate == nil {
		game.Status = domain.GameStatusUnreleased
	}
	game.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(game).Error; err != nil {
		return fmt.Errorf("failed to update game: %w", err)
	}
	return nil
}

// UpdateGameStatus updates the library status of a game
func (s *pgStore) UpdateGameStatus(ctx context.Context, userID, gameID int64, status domain.GameStatus) error {
	result := s.db.WithContext(ctx).
		Model(&schema.TrackedGame{}).
		Where("id = ? AND user_id = ?", gameID, userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update game status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrGameNotFound
	}
	return nil
}

// DeleteGame removes a game and its reminder ledger entries
func (s *pgStore) DeleteGame(ctx context.Context, userID, gameID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND user_id = ?", gameID, userID).Delete(&schema.TrackedGame{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete game: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return domain.ErrGameNotFound
		}
		if err := tx.Where("user_id = ? AND game_id = ?", userID, gameID).Delete(&schema.NotificationRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete notification records: %w", err)
		}
		return nil
	})
}

// ListGamesWithSteamApp retrieves all games across users that carry a Steam app id
func (s *pgStore) ListGamesWithSteamApp(ctx context.Context) ([]*schema.TrackedGame, error) {
	var games []*schema.TrackedGame
	err := s.db.WithContext(ctx).
		Where("steam_app_id IS NOT NULL AND steam_app_id <> ''").
		Order("id").
		Find(&games).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list games with steam app id: %w", err)
	}
	return games, nil
}

// ReleaseTrackedGame flips a game from unreleased to wishlist.
// The WHERE clause guards against games whose status changed in the meantime.
func (s *pgStore) ReleaseTrackedGame(ctx context.Context, gameID int64) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&schema.TrackedGame{}).
		Where("id = ? AND status = ?", gameID, domain.GameStatusUnreleased).
		Updates(map[string]interface{}{
			"status":     domain.GameStatusWishlist,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to release game: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// UpdateGamePrice stores a fresh price snapshot for a game
func (s *pgStore) UpdateGamePrice(ctx context.Context, gameID int64, priceInfo datatypes.JSON, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&schema.TrackedGame{}).
		Where("id = ?", gameID).
		Updates(map[string]interface{}{
			"price_info":       priceInfo,
			"price_updated_at": at,
			"updated_at":       time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update game price: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrGameNotFound
	}
	return nil
}

// WasReminderSent checks the reminder ledger for a (user, game, kind) entry
func (s *pgStore) WasReminderSent(ctx context.Context, userID, gameID int64, kind domain.ReminderKind) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.NotificationRecord{}).
		Where("user_id = ? AND game_id = ? AND kind = ?", userID, gameID, kind).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check reminder ledger: %w", err)
	}
	return count > 0, nil
}

// MarkReminderSent records a reminder in the ledger. Marking the same
// (user, game, kind) twice is a no-op.
func (s *pgStore) MarkReminderSent(ctx context.Context, userID, gameID int64, kind domain.ReminderKind) error {
	record := schema.NotificationRecord{
		UserID: userID,
		GameID: gameID,
		Kind:   kind,
		SentAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "game_id"}, {Name: "kind"}},
		DoNothing: true,
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return nil
}

// ListSharesFrom retrieves the share grants issued by a user
func (s *pgStore) ListSharesFrom(ctx context.Context, fromUserID int64) ([]*schema.LibraryShare, error) {
	var shares []*schema.LibraryShare
	err := s.db.WithContext(ctx).
		Where("from_user_id = ?", fromUserID).
		Order("shared_at").
		Find(&shares).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, nil
}

// ListSharesTo retrieves the share grants issued to a user
func (s *pgStore) ListSharesTo(ctx context.Context, toUserID int64) ([]*schema.LibraryShare, error) {
	var shares []*schema.LibraryShare
	err := s.db.WithContext(ctx).
		Where("to_user_id = ?", toUserID).
		Order("shared_at").
		Find(&shares).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	return shares, nil
}

// SetShares replaces the set of users a library is shared with.
// Sharing with oneself is rejected with domain.ErrSelfShare.
func (s *pgStore) SetShares(ctx context.Context, fromUserID int64, toUserIDs []int64) error {
	for _, toUserID := range toUserIDs {
		if toUserID == fromUserID {
			return domain.ErrSelfShare
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("from_user_id = ?", fromUserID).Delete(&schema.LibraryShare{}).Error; err != nil {
			return fmt.Errorf("failed to clear shares: %w", err)
		}

		if len(toUserIDs) == 0 {
			return nil
		}

		now := time.Now()
		shares := make([]schema.LibraryShare, 0, len(toUserIDs))
		for _, toUserID := range toUserIDs {
			shares = append(shares, schema.LibraryShare{
				FromUserID: fromUserID,
				ToUserID:   toUserID,
				SharedAt:   now,
			})
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "from_user_id"}, {Name: "to_user_id"}},
			DoNothing: true,
		}).Create(&shares).Error; err != nil {
			return fmt.Errorf("failed to create shares: %w", err)
		}
		return nil
	})
}

// HasShare checks whether fromUser shares their library with toUser
func (s *pgStore) HasShare(ctx context.Context, fromUserID, toUserID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&schema.LibraryShare{}).
		Where("from_user_id = ? AND to_user_id = ?", fromUserID, toUserID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check share: %w", err)
	}
	return count > 0, nil
}

// Ping verifies database connectivity
func (s *pgStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Counts reports the row counts surfaced by the health endpoint
func (s *pgStore) Counts(ctx context.Context) (*Counts, error) {
	var counts Counts
	if err := s.db.WithContext(ctx).Model(&schema.User{}).Count(&counts.Users).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&schema.TrackedGame{}).Count(&counts.Games).Error; err != nil {
		return nil, fmt.Errorf("failed to count games: %w", err)
	}
	return &counts, nil
}
