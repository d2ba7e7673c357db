package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/adapter"
	"github.com/questlog/questlog/internal/api/middleware"
	"github.com/questlog/questlog/internal/api/rest/dto"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/notify"
	"github.com/questlog/questlog/internal/providers/directory"
	"github.com/questlog/questlog/internal/providers/steam"
	"github.com/questlog/questlog/internal/search"
	"github.com/questlog/questlog/internal/store"
	"github.com/questlog/questlog/internal/store/schema"
	"github.com/questlog/questlog/internal/sweeper"
)

// Handler defines the interface for REST API handlers
type Handler interface {
	// Login authenticates a user and returns a JWT
	// POST /api/v1/auth/login
	Login(c *gin.Context)

	// CreateUser creates a local user account (admin only)
	// POST /api/v1/users
	CreateUser(c *gin.Context)

	// ListUsers lists all user accounts (admin only)
	// GET /api/v1/users
	ListUsers(c *gin.Context)

	// UpdateUser updates a user account (admin only)
	// PUT /api/v1/users/:username
	UpdateUser(c *gin.Context)

	// DeleteUser removes a user account together with its library (admin only)
	// DELETE /api/v1/users/:username
	DeleteUser(c *gin.Context)

	// UpdateSettings updates the calling user's notification settings
	// PUT /api/v1/me/settings
	UpdateSettings(c *gin.Context)

	// UpdateSharing flips the calling user's library-sharing flag
	// PUT /api/v1/me/sharing
	UpdateSharing(c *gin.Context)

	// ListSharedLibraries lists users whose library is open for browsing
	// GET /api/v1/shared-libraries
	ListSharedLibraries(c *gin.Context)

	// ListGames lists a user's game library. Owners and admins always have
	// access; other users need a share grant or the owner's sharing flag.
	// GET /api/v1/users/:username/games
	ListGames(c *gin.Context)

	// AddGame adds a game to the user's library and emits a game_added event
	// POST /api/v1/users/:username/games
	AddGame(c *gin.Context)

	// UpdateGame updates a tracked game. A status change emits a
	// status_changed event; taking an unreleased game to a released status
	// with a past date also emits game_released.
	// PUT /api/v1/users/:username/games/:gameID
	UpdateGame(c *gin.Context)

	// DeleteGame removes a game from the user's library
	// DELETE /api/v1/users/:username/games/:gameID
	DeleteGame(c *gin.Context)

	// RefreshMetadata re-searches every library entry by name and updates
	// release date, cover art and missing Steam app ids from exact matches
	// POST /api/v1/users/:username/games/refresh
	RefreshMetadata(c *gin.Context)

	// SearchGames searches the catalog providers and merges the results
	// GET /api/v1/games/search?q=<query>
	SearchGames(c *gin.Context)

	// GetPrice fetches the live Steam store price for an app
	// GET /api/v1/games/price/:steamAppID
	GetPrice(c *gin.Context)

	// SetShares replaces the user's share grant set
	// POST /api/v1/users/:username/shares
	SetShares(c *gin.Context)

	// ListShares lists who the user shares their library with
	// GET /api/v1/users/:username/shares
	ListShares(c *gin.Context)

	// ListSharedWithMe lists libraries shared with the calling user
	// GET /api/v1/me/shared-with-me
	ListSharedWithMe(c *gin.Context)

	// RevokeShare removes a single share grant
	// DELETE /api/v1/users/:username/shares/:toUsername
	RevokeShare(c *gin.Context)

	// RevokeSharedWithMe lets the calling user reject a library shared with them
	// DELETE /api/v1/me/shared-with-me/:fromUsername
	RevokeSharedWithMe(c *gin.Context)

	// TestNotification sends a test notification to a user (admin only)
	// POST /api/v1/admin/notifications/test
	TestNotification(c *gin.Context)

	// CheckReleases runs the release sweep on demand (admin only)
	// POST /api/v1/admin/releases/check
	CheckReleases(c *gin.Context)

	// RefreshPrices runs the price sweep on demand (admin only)
	// POST /api/v1/admin/prices/refresh
	RefreshPrices(c *gin.Context)

	// SyncDirectory refreshes directory-sourced profile fields (admin only)
	// POST /api/v1/admin/directory/sync
	SyncDirectory(c *gin.Context)

	// HealthCheck returns the health status of the API
	// GET /health
	HealthCheck(c *gin.Context)
}

// handler implements the Handler interface
type handler struct {
	store      store.Store
	auth       auth.Service
	engine     search.Engine
	dispatcher notify.Dispatcher
	steam      steam.Client
	releases   sweeper.ReleaseSweeper
	prices     sweeper.PriceSweeper
	directory  directory.Client
	clock      adapter.Clock
}

// NewHandler creates a new REST API handler
func NewHandler(
	st store.Store,
	authSvc auth.Service,
	engine search.Engine,
	dispatcher notify.Dispatcher,
	steamClient steam.Client,
	releases sweeper.ReleaseSweeper,
	prices sweeper.PriceSweeper,
	dir directory.Client,
	clock adapter.Clock,
) Handler {
	return &handler{
		store:      st,
		auth:       authSvc,
		engine:     engine,
		dispatcher: dispatcher,
		steam:      steamClient,
		releases:   releases,
		prices:     prices,
		directory:  dir,
		clock:      clock,
	}
}

// Login authenticates a user and returns a JWT
func (h *handler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	token, user, err := h.auth.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	switch {
	case errors.Is(err, domain.ErrLoginLocked):
		respondRateLimited(c, "Too many failed login attempts, try again later")
		return
	case errors.Is(err, domain.ErrInvalidCredentials):
		respondUnauthorized(c, "Invalid username or password")
		return
	case err != nil:
		respondInternalError(c, err, "Failed to log in")
		return
	}

	c.JSON(http.StatusOK, dto.LoginResponse{
		Token: token,
		User:  dto.FromUser(user),
	})
}

// CreateUser creates a local user account
func (h *handler) CreateUser(c *gin.Context) {
	var req dto.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		respondInternalError(c, err, "Failed to create user")
		return
	}

	user := &schema.User{
		Username:     domain.NormalizeUsername(req.Username),
		PasswordHash: &hash,
		Origin:       domain.OriginLocal,
		Email:        req.Email,
		PushTopic:    req.PushTopic,
		IsAdmin:      req.IsAdmin,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			respondConflict(c, "Username is already taken")
			return
		}
		respondInternalError(c, err, "Failed to create user")
		return
	}

	c.JSON(http.StatusCreated, dto.FromUser(user))
}

// ListUsers lists all user accounts
func (h *handler) ListUsers(c *gin.Context) {
	users, err := h.store.ListUsers(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": dto.FromUsers(users)})
}

// UpdateUser updates a user account
func (h *handler) UpdateUser(c *gin.Context) {
	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUserByUsername(ctx, c.Param("username"))
	if err != nil {
		respondInternalError(c, err, "Failed to update user")
		return
	}
	if user == nil {
		respondNotFound(c, "User not found")
		return
	}

	if req.Password != nil {
		if user.Origin != domain.OriginLocal {
			respondValidationError(c, "Directory accounts have no local password")
			return
		}
		hash, err := h.auth.HashPassword(*req.Password)
		if err != nil {
			respondInternalError(c, err, "Failed to update user")
			return
		}
		if err := h.store.UpdateUserPassword(ctx, user.ID, hash); err != nil {
			respondInternalError(c, err, "Failed to update user")
			return
		}
	}
	if req.Email != nil {
		if err := h.store.UpdateUserEmail(ctx, user.ID, emptyToNil(req.Email)); err != nil {
			respondInternalError(c, err, "Failed to update user")
			return
		}
		user.Email = emptyToNil(req.Email)
	}
	if req.PushTopic != nil {
		if err := h.store.UpdateUserPushTopic(ctx, user.ID, emptyToNil(req.PushTopic)); err != nil {
			respondInternalError(c, err, "Failed to update user")
			return
		}
		user.PushTopic = emptyToNil(req.PushTopic)
	}
	if req.IsAdmin != nil {
		if err := h.store.UpdateUserAdmin(ctx, user.ID, *req.IsAdmin); err != nil {
			respondInternalError(c, err, "Failed to update user")
			return
		}
		user.IsAdmin = *req.IsAdmin
	}
	if req.SharesLibrary != nil {
		if err := h.store.UpdateUserSharing(ctx, user.ID, *req.SharesLibrary); err != nil {
			respondInternalError(c, err, "Failed to update user")
			return
		}
		user.SharesLibrary = *req.SharesLibrary
	}

	c.JSON(http.StatusOK, dto.FromUser(user))
}

// DeleteUser removes a user account together with its library
func (h *handler) DeleteUser(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := h.store.GetUserByUsername(ctx, c.Param("username"))
	if err != nil {
		respondInternalError(c, err, "Failed to delete user")
		return
	}
	if user == nil {
		respondNotFound(c, "User not found")
		return
	}

	claims := middleware.Claims(c)
	if claims != nil && claims.Username == user.Username {
		respondValidationError(c, "Cannot delete your own account")
		return
	}

	if err := h.store.DeleteUser(ctx, user.ID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			respondNotFound(c, "User not found")
			return
		}
		respondInternalError(c, err, "Failed to delete user")
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateSettings updates the calling user's notification settings
func (h *handler) UpdateSettings(c *gin.Context) {
	var req dto.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if req.Email != nil {
		if err := h.store.UpdateUserEmail(ctx, user.ID, emptyToNil(req.Email)); err != nil {
			respondInternalError(c, err, "Failed to update settings")
			return
		}
		user.Email = emptyToNil(req.Email)
	}
	if req.PushTopic != nil {
		if err := h.store.UpdateUserPushTopic(ctx, user.ID, emptyToNil(req.PushTopic)); err != nil {
			respondInternalError(c, err, "Failed to update settings")
			return
		}
		user.PushTopic = emptyToNil(req.PushTopic)
	}

	c.JSON(http.StatusOK, dto.FromUser(user))
}

// UpdateSharing flips the calling user's library-sharing flag
func (h *handler) UpdateSharing(c *gin.Context) {
	var req dto.SharingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	if err := h.store.UpdateUserSharing(c.Request.Context(), user.ID, req.SharesLibrary); err != nil {
		respondInternalError(c, err, "Failed to update sharing")
		return
	}
	user.SharesLibrary = req.SharesLibrary

	c.JSON(http.StatusOK, dto.FromUser(user))
}

// ListSharedLibraries lists users whose library is open for browsing
func (h *handler) ListSharedLibraries(c *gin.Context) {
	users, err := h.store.ListSharingUsers(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Failed to list shared libraries")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": dto.FromUsers(users)})
}

// HealthCheck returns the health status of the API
func (h *handler) HealthCheck(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.store.Ping(ctx); err != nil {
		respondInternalError(c, err, "Database unavailable")
		return
	}
	counts, err := h.store.Counts(ctx)
	if err != nil {
		respondInternalError(c, err, "Database unavailable")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "questlog-api",
		"counts":  counts,
	})
}

// currentUser loads the user row for the validated token. A missing row means
// the account was deleted after the token was issued.
func (h *handler) currentUser(c *gin.Context) (*schema.User, bool) {
	claims := middleware.Claims(c)
	if claims == nil {
		respondUnauthorized(c, "Authentication required")
		return nil, false
	}
	user, err := h.store.GetUserByUsername(c.Request.Context(), claims.Username)
	if err != nil {
		respondInternalError(c, err, "Failed to load account")
		return nil, false
	}
	if user == nil {
		respondUnauthorized(c, "Account no longer exists")
		return nil, false
	}
	return user, true
}

// targetUser resolves the :username path parameter and checks whether the
// caller may manage that library (owner or admin)
func (h *handler) targetUser(c *gin.Context) (*schema.User, bool) {
	username := domain.NormalizeUsername(c.Param("username"))
	claims := middleware.Claims(c)
	if claims == nil {
		respondUnauthorized(c, "Authentication required")
		return nil, false
	}
	if claims.Username != username && !claims.IsAdmin {
		respondForbidden(c, "Not your library")
		return nil, false
	}

	user, err := h.store.GetUserByUsername(c.Request.Context(), username)
	if err != nil {
		respondInternalError(c, err, "Failed to load user")
		return nil, false
	}
	if user == nil {
		respondNotFound(c, "User not found")
		return nil, false
	}
	return user, true
}

func emptyToNil(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}
