package schema

import "time"

// LoginAttempt represents the login_attempts table - failed logins recorded
// per client IP for rate limiting, persisted so limits survive restarts
type LoginAttempt struct {
	// ID is an auto-incrementing sequence number
	ID int64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ClientIP is the remote address the attempt came from
	ClientIP string `gorm:"column:client_ip;not null;type:text;index:idx_login_attempts_ip_time,priority:1"`
	// AttemptedAt records when the failed attempt happened
	AttemptedAt time.Time `gorm:"column:attempted_at;not null;default:now();type:timestamptz;index:idx_login_attempts_ip_time,priority:2"`
}

// TableName specifies the table name for the LoginAttempt model
func (LoginAttempt) TableName() string {
	return "login_attempts"
}
