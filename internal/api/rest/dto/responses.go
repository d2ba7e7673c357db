package dto

import (
	"encoding/json"
	"time"

	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/store/schema"
)

// UserResponse is the public view of a user account
type UserResponse struct {
	ID            int64             `json:"id"`
	Username      string            `json:"username"`
	DisplayName   *string           `json:"displayName,omitempty"`
	Email         *string           `json:"email,omitempty"`
	PushTopic     *string           `json:"pushTopic,omitempty"`
	Origin        domain.UserOrigin `json:"origin"`
	IsAdmin       bool              `json:"isAdmin"`
	SharesLibrary bool              `json:"sharesLibrary"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// FromUser maps a user row to its public view
func FromUser(user *schema.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Username:      user.Username,
		DisplayName:   user.DisplayName,
		Email:         user.Email,
		PushTopic:     user.PushTopic,
		Origin:        user.Origin,
		IsAdmin:       user.IsAdmin,
		SharesLibrary: user.SharesLibrary,
		CreatedAt:     user.CreatedAt,
	}
}

// FromUsers maps user rows to their public views
func FromUsers(users []*schema.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, user := range users {
		out = append(out, FromUser(user))
	}
	return out
}

// LoginResponse is the body returned by a successful login
type LoginResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

// GameResponse is the public view of a tracked game
type GameResponse struct {
	ID             int64             `json:"id"`
	Name           string            `json:"name"`
	Status         domain.GameStatus `json:"status"`
	CatalogID      *string           `json:"catalogId,omitempty"`
	Source         *string           `json:"source,omitempty"`
	ReleaseDate    *string           `json:"releaseDate,omitempty"`
	CoverURL       *string           `json:"coverUrl,omitempty"`
	SteamAppID     *string           `json:"steamAppId,omitempty"`
	PriceInfo      *domain.PriceInfo `json:"priceInfo,omitempty"`
	PriceUpdatedAt *time.Time        `json:"priceUpdatedAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// FromGame maps a tracked game row to its public view
func FromGame(game *schema.TrackedGame) GameResponse {
	resp := GameResponse{
		ID:             game.ID,
		Name:           game.Name,
		Status:         game.Status,
		CatalogID:      game.CatalogID,
		Source:         game.Source,
		ReleaseDate:    game.ReleaseDate,
		CoverURL:       game.CoverURL,
		SteamAppID:     game.SteamAppID,
		PriceUpdatedAt: game.PriceUpdatedAt,
		CreatedAt:      game.CreatedAt,
		UpdatedAt:      game.UpdatedAt,
	}
	if len(game.PriceInfo) > 0 {
		var price domain.PriceInfo
		if err := json.Unmarshal(game.PriceInfo, &price); err == nil {
			resp.PriceInfo = &price
		}
	}
	return resp
}

// FromGames maps tracked game rows to their public views
func FromGames(games []*schema.TrackedGame) []GameResponse {
	out := make([]GameResponse, 0, len(games))
	for _, game := range games {
		out = append(out, FromGame(game))
	}
	return out
}

// ShareResponse is one library share grant
type ShareResponse struct {
	Username string    `json:"username"`
	SharedAt time.Time `json:"sharedAt"`
}

// RefreshItem is the per-game outcome of a metadata refresh run
type RefreshItem struct {
	GameID  int64  `json:"gameId"`
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// RefreshReport summarizes a metadata refresh run
type RefreshReport struct {
	Checked int           `json:"checked"`
	Updated int           `json:"updated"`
	Items   []RefreshItem `json:"items"`
}

// DirectorySyncItem is the per-user outcome of a directory sync run
type DirectorySyncItem struct {
	Username string `json:"username"`
	Outcome  string `json:"outcome"`
	Detail   string `json:"detail,omitempty"`
}

// DirectorySyncReport summarizes a directory sync run
type DirectorySyncReport struct {
	Checked int                 `json:"checked"`
	Updated int                 `json:"updated"`
	Items   []DirectorySyncItem `json:"items"`
}
