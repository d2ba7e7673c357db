package dto

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/questlog/questlog/internal/domain"
)

// LoginRequest is the body of POST /api/v1/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (r *LoginRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return errors.New("username is required")
	}
	if r.Password == "" {
		return errors.New("password is required")
	}
	return nil
}

// CreateUserRequest is the body of POST /api/v1/users
type CreateUserRequest struct {
	Username  string  `json:"username"`
	Password  string  `json:"password"`
	Email     *string `json:"email,omitempty"`
	PushTopic *string `json:"pushTopic,omitempty"`
	IsAdmin   bool    `json:"isAdmin"`
}

func (r *CreateUserRequest) Validate() error {
	if domain.NormalizeUsername(r.Username) == "" {
		return errors.New("username is required")
	}
	if len(r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// UpdateUserRequest is the body of PUT /api/v1/users/:username.
// Nil fields are left unchanged; empty strings clear the value.
type UpdateUserRequest struct {
	Email         *string `json:"email,omitempty"`
	PushTopic     *string `json:"pushTopic,omitempty"`
	Password      *string `json:"password,omitempty"`
	IsAdmin       *bool   `json:"isAdmin,omitempty"`
	SharesLibrary *bool   `json:"sharesLibrary,omitempty"`
}

func (r *UpdateUserRequest) Validate() error {
	if r.Password != nil && len(*r.Password) < 8 {
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// SettingsRequest is the body of PUT /api/v1/me/settings.
// Nil fields are left unchanged; empty strings clear the value.
type SettingsRequest struct {
	Email     *string `json:"email,omitempty"`
	PushTopic *string `json:"pushTopic,omitempty"`
}

func (r *SettingsRequest) Validate() error {
	if r.Email == nil && r.PushTopic == nil {
		return errors.New("nothing to update")
	}
	return nil
}

// SharingRequest is the body of PUT /api/v1/me/sharing
type SharingRequest struct {
	SharesLibrary bool `json:"sharesLibrary"`
}

// AddGameRequest is the body of POST /api/v1/users/:username/games
type AddGameRequest struct {
	Name        string            `json:"name"`
	Status      domain.GameStatus `json:"status"`
	CatalogID   *string           `json:"catalogId,omitempty"`
	Source      *string           `json:"source,omitempty"`
	ReleaseDate *string           `json:"releaseDate,omitempty"`
	CoverURL    *string           `json:"coverUrl,omitempty"`
	SteamAppID  *string           `json:"steamAppId,omitempty"`
}

func (r *AddGameRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	if r.Status == "" {
		r.Status = domain.GameStatusWishlist
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	return validateReleaseDate(r.ReleaseDate)
}

// UpdateGameRequest is the body of PUT /api/v1/users/:username/games/:gameID.
// Nil fields are left unchanged.
type UpdateGameRequest struct {
	Name        *string            `json:"name,omitempty"`
	Status      *domain.GameStatus `json:"status,omitempty"`
	ReleaseDate *string            `json:"releaseDate,omitempty"`
	CoverURL    *string            `json:"coverUrl,omitempty"`
	SteamAppID  *string            `json:"steamAppId,omitempty"`
}

func (r *UpdateGameRequest) Validate() error {
	if r.Name != nil && strings.TrimSpace(*r.Name) == "" {
		return errors.New("name must not be empty")
	}
	if r.Status != nil && !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", *r.Status)
	}
	if r.ReleaseDate != nil && *r.ReleaseDate != "" {
		return validateReleaseDate(r.ReleaseDate)
	}
	return nil
}

// SetSharesRequest is the body of POST /api/v1/users/:username/shares. The
// listed usernames replace the current grant set.
type SetSharesRequest struct {
	Usernames []string `json:"usernames"`
}

// TestNotificationRequest is the body of POST /api/v1/admin/notifications/test
type TestNotificationRequest struct {
	Username string `json:"username"`
}

func (r *TestNotificationRequest) Validate() error {
	if domain.NormalizeUsername(r.Username) == "" {
		return errors.New("username is required")
	}
	return nil
}

func validateReleaseDate(date *string) error {
	if date == nil || *date == "" {
		return nil
	}
	if _, err := time.Parse(domain.DateLayout, *date); err != nil {
		return fmt.Errorf("releaseDate must be formatted as %s", domain.DateLayout)
	}
	return nil
}
