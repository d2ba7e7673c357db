package schema

import (
	"time"

	"github.com/questlog/questlog/internal/domain"
)

// NotificationRecord represents the notification_records table - the durable
// ledger of reminders already sent, keyed by (user, game, kind)
type NotificationRecord struct {
	// UserID references the user the reminder was sent to
	UserID int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	// GameID references the tracked game the reminder was about
	GameID int64 `gorm:"column:game_id;primaryKey;autoIncrement:false"`
	// Kind is the reminder kind (30days, 7days, release)
	Kind domain.ReminderKind `gorm:"column:kind;primaryKey;type:text"`
	// SentAt records when the reminder was marked sent
	SentAt time.Time `gorm:"column:sent_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the NotificationRecord model
func (NotificationRecord) TableName() string {
	return "notification_records"
}
