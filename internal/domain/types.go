package domain

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the wire and storage format for release dates (bare ISO dates,
// no time component).
const DateLayout = "2006-01-02"

// GameStatus represents the tracking status of a game in a user's library
type GameStatus string

const (
	// GameStatusWishlist marks a released game the user wants to play
	GameStatusWishlist GameStatus = "wishlist"
	// GameStatusPlaying marks a game the user is currently playing
	GameStatusPlaying GameStatus = "playing"
	// GameStatusDone marks a game the user has finished
	GameStatusDone GameStatus = "done"
	// GameStatusUnreleased marks a game that has not been released yet
	GameStatusUnreleased GameStatus = "unreleased"
)

// Valid reports whether the status is one of the known values
func (s GameStatus) Valid() bool {
	switch s {
	case GameStatusWishlist, GameStatusPlaying, GameStatusDone, GameStatusUnreleased:
		return true
	}
	return false
}

// ReminderKind identifies a pre-release reminder category
type ReminderKind string

const (
	// Kind30Days fires exactly 30 days before the release date
	Kind30Days ReminderKind = "30days"
	// Kind7Days fires exactly 7 days before the release date
	Kind7Days ReminderKind = "7days"
	// KindRelease fires on the release day
	KindRelease ReminderKind = "release"
)

// KindForOffset maps a day offset to a reminder kind. Reminders are
// edge-triggered: only the exact offsets 30, 7 and 0 produce a kind.
func KindForOffset(diffDays int) (ReminderKind, bool) {
	switch diffDays {
	case 30:
		return Kind30Days, true
	case 7:
		return Kind7Days, true
	case 0:
		return KindRelease, true
	}
	return "", false
}

// UserOrigin identifies where a user account came from
type UserOrigin string

const (
	// OriginLocal is a locally created account with a bcrypt password
	OriginLocal UserOrigin = "local"
	// OriginDirectory is an account provisioned from the directory service
	OriginDirectory UserOrigin = "directory"
)

// CatalogSource tags which external catalog a search result came from
type CatalogSource string

const (
	CatalogSourceIGDB    CatalogSource = "igdb"
	CatalogSourceRAWG    CatalogSource = "rawg"
	CatalogSourceGamesDB CatalogSource = "gamesdb"
)

// ProviderResult is a single normalized item returned by one catalog provider.
// It is transient: produced fresh on every search or refresh call.
type ProviderResult struct {
	// ID is synthesized as <source>_<providerNativeID> so ids stay globally
	// unique across providers
	ID          string
	Name        string
	ReleaseDate *string
	CoverURL    *string
	Source      CatalogSource
	SteamAppID  *string
}

// MergedResult is a deduplicated, gap-filled search record combining data from
// multiple catalog providers
type MergedResult struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	ReleaseDate *string       `json:"releaseDate"`
	CoverURL    *string       `json:"coverUrl"`
	Source      CatalogSource `json:"source"`
	SteamAppID  *string       `json:"steamAppId"`
}

// PriceInfo is the cached result of a pricing provider lookup
type PriceInfo struct {
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	DiscountPercent int    `json:"discountPercent"`
	OriginalPrice   string `json:"originalPrice,omitempty"`
}

// NormalizeUsername canonicalizes a username to lowercase. Every lookup, write
// and comparison on usernames must go through this, otherwise case variants of
// the same account can diverge.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// DaysUntilRelease computes the ceiling day offset between today's UTC
// midnight and the release date's midnight. Zero means the game releases
// today, negative means it is already out.
func DaysUntilRelease(releaseDate string, now time.Time) (int, error) {
	release, err := time.ParseInLocation(DateLayout, releaseDate, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid release date %q: %w", releaseDate, err)
	}

	today := time.Date(now.UTC().Year(), now.UTC().Month(), now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	diff := release.Sub(today)

	days := int(diff / (24 * time.Hour))
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return days, nil
}
