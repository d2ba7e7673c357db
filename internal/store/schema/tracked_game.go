package schema

import (
	"time"

	"gorm.io/datatypes"

	"github.com/questlog/questlog/internal/domain"
)

// TrackedGame represents the tracked_games table - a game in a user's library
type TrackedGame struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// UserID references the owning user
	UserID int64 `gorm:"column:user_id;not null;index:idx_tracked_games_user_name,priority:1"`
	// Name is the display name of the game
	Name string `gorm:"column:name;not null;type:text;index:idx_tracked_games_user_name,priority:2"`
	// Status is the library status (wishlist, playing, done, unreleased)
	Status domain.GameStatus `gorm:"column:status;not null;type:text;index"`
	// CatalogID is the provider-scoped identifier the game was added from (e.g. "igdb_1942")
	CatalogID *string `gorm:"column:catalog_id;type:text"`
	// Source names the provider the metadata came from
	Source *string `gorm:"column:source;type:text"`
	// ReleaseDate is the release date in YYYY-MM-DD form (nil when unknown)
	ReleaseDate *string `gorm:"column:release_date;type:text"`
	// CoverURL is the cover art URL
	CoverURL *string `gorm:"column:cover_url;type:text"`
	// SteamAppID is the Steam store application id used for price lookups
	SteamAppID *string `gorm:"column:steam_app_id;type:text"`
	// PriceInfo is the cached Steam price snapshot as JSON (nil when never fetched)
	PriceInfo datatypes.JSON `gorm:"column:price_info;type:jsonb"`
	// PriceUpdatedAt records when the price snapshot was last refreshed
	PriceUpdatedAt *time.Time `gorm:"column:price_updated_at;type:timestamptz"`
	// CreatedAt is the timestamp when the game was added to the library
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this record was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the TrackedGame model
func (TrackedGame) TableName() string {
	return "tracked_games"
}
