package schema

import (
	"time"

	"github.com/questlog/questlog/internal/domain"
)

// User represents the users table - accounts that own a game library
type User struct {
	// ID is the internal database primary key
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Username is the canonical (lowercased) account name
	Username string `gorm:"column:username;not null;uniqueIndex;type:text"`
	// PasswordHash is the bcrypt hash for local accounts (nil for directory-only accounts)
	PasswordHash *string `gorm:"column:password_hash;type:text"`
	// Origin records where the account came from (local or directory)
	Origin domain.UserOrigin `gorm:"column:origin;not null;type:text;default:local"`
	// DisplayName is the human readable name, refreshed from the directory for directory accounts
	DisplayName *string `gorm:"column:display_name;type:text"`
	// Email is the address reminder mails are sent to (nil falls back to the directory, then the global default)
	Email *string `gorm:"column:email;type:text"`
	// PushTopic is the per-user ntfy topic (nil falls back to the global default topic)
	PushTopic *string `gorm:"column:push_topic;type:text"`
	// SharesLibrary marks the library as browsable by every logged-in user
	SharesLibrary bool `gorm:"column:shares_library;not null;default:false"`
	// IsAdmin grants access to the admin endpoints
	IsAdmin bool `gorm:"column:is_admin;not null;default:false"`
	// CreatedAt is the timestamp when this account was created
	CreatedAt time.Time `gorm:"column:created_at;not null;default:now();type:timestamptz"`
	// UpdatedAt is the timestamp when this account was last updated
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now();type:timestamptz"`

	// Associations
	Games []TrackedGame `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}
