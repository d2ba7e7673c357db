package schema

import "time"

// LibraryShare represents the library_shares table - read grants between users
type LibraryShare struct {
	// FromUserID is the user whose library is shared
	FromUserID int64 `gorm:"column:from_user_id;primaryKey;autoIncrement:false"`
	// ToUserID is the user the library is shared with
	ToUserID int64 `gorm:"column:to_user_id;primaryKey;autoIncrement:false"`
	// SharedAt records when the grant was created
	SharedAt time.Time `gorm:"column:shared_at;not null;default:now();type:timestamptz"`
}

// TableName specifies the table name for the LibraryShare model
func (LibraryShare) TableName() string {
	return "library_shares"
}
