package notify

import (
	"fmt"

	"github.com/questlog/questlog/internal/domain"
)

// message is a rendered notification, with separate email and push forms
type message struct {
	subject string
	text    string
	title   string
	body    string
}

// render builds the notification texts for a library event
func render(event domain.LibraryEvent) message {
	switch event.Type {
	case domain.EventGameAdded:
		text := fmt.Sprintf("User %s added %q to their library.", event.Username, event.GameName)
		return message{
			subject: fmt.Sprintf("Game added: %s", event.GameName),
			text:    text,
			title:   "Game Added",
			body:    text,
		}

	case domain.EventStatusChanged:
		text := fmt.Sprintf("User %s changed status of %q to %s.", event.Username, event.GameName, event.Status)
		return message{
			subject: fmt.Sprintf("Game status changed: %s", event.GameName),
			text:    text,
			title:   "Game Status Changed",
			body:    text,
		}

	case domain.EventGameReleased:
		text := fmt.Sprintf("%q has been released!", event.GameName)
		return message{
			subject: fmt.Sprintf("Game released: %s", event.GameName),
			text:    text,
			title:   "Game Released",
			body:    text,
		}

	case domain.EventReleaseReminder:
		when := "today"
		if event.DaysUntil != nil && *event.DaysUntil > 0 {
			when = fmt.Sprintf("in %d days", *event.DaysUntil)
		}
		releaseDate := ""
		if event.ReleaseDate != nil {
			releaseDate = *event.ReleaseDate
		}
		text := fmt.Sprintf("The game %q you are following releases %s (%s).", event.GameName, when, releaseDate)
		return message{
			subject: fmt.Sprintf("Reminder: %q releases %s!", event.GameName, when),
			text:    text,
			title:   "Game Release Reminder",
			body:    text,
		}
	case domain.EventTestNotification:
		text := fmt.Sprintf("This is a test notification for user %s. Your channels are configured correctly.", event.Username)
		return message{
			subject: "Questlog test notification",
			text:    text,
			title:   "Test Notification",
			body:    text,
		}
	}

	text := fmt.Sprintf("Update for %q.", event.GameName)
	return message{
		subject: fmt.Sprintf("Game update: %s", event.GameName),
		text:    text,
		title:   "Game Update",
		body:    text,
	}
}
