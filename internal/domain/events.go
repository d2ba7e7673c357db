package domain

import "time"

// EventType identifies a library event published to the message broker and
// fanned out to notification channels
type EventType string

const (
	// EventGameAdded fires when a user adds a game to their library
	EventGameAdded EventType = "game_added"
	// EventStatusChanged fires when a user changes a tracked game's status
	EventStatusChanged EventType = "status_changed"
	// EventGameReleased fires once when the scheduler (or a user-driven status
	// change) observes a tracked unreleased game crossing its release date
	EventGameReleased EventType = "game_released"
	// EventReleaseReminder fires for the edge-triggered 30/7/0 day reminders
	EventReleaseReminder EventType = "release_reminder"
	// EventTestNotification is sent on demand from the admin endpoint to
	// verify channel configuration
	EventTestNotification EventType = "test_notification"
)

// LibraryEvent is a single logical notification event for one user and game
type LibraryEvent struct {
	Type        EventType    `json:"type"`
	Username    string       `json:"username"`
	GameID      int64        `json:"gameId"`
	GameName    string       `json:"gameName"`
	Status      GameStatus   `json:"status,omitempty"`
	ReleaseDate *string      `json:"releaseDate,omitempty"`
	Kind        ReminderKind `json:"kind,omitempty"`
	DaysUntil   *int         `json:"daysUntil,omitempty"`
	OccurredAt  time.Time    `json:"occurredAt"`
}

// ChannelStatus is the outcome class of one delivery channel attempt
type ChannelStatus string

const (
	// ChannelSent means the channel accepted the notification
	ChannelSent ChannelStatus = "sent"
	// ChannelSkipped means the channel had no recipient or is not configured
	ChannelSkipped ChannelStatus = "skipped"
	// ChannelFailed means the delivery attempt errored
	ChannelFailed ChannelStatus = "failed"
)

// ChannelOutcome reports what happened on a single delivery channel
type ChannelOutcome struct {
	Status ChannelStatus `json:"status"`
	Detail string        `json:"detail,omitempty"`
}

// DispatchResult reports per-channel outcomes of one dispatch. Channels are
// independent: one failing never affects the other.
type DispatchResult struct {
	Email ChannelOutcome `json:"email"`
	Push  ChannelOutcome `json:"push"`
}

// Attempted reports whether at least one channel attempted delivery
func (r DispatchResult) Attempted() bool {
	return r.Email.Status != ChannelSkipped || r.Push.Status != ChannelSkipped
}
