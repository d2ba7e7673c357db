package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/questlog/questlog/internal/api/middleware"
	"github.com/questlog/questlog/internal/api/rest/dto"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/logger"
	"github.com/questlog/questlog/internal/store/schema"
)

// ListGames lists a user's game library
func (h *handler) ListGames(c *gin.Context) {
	ctx := c.Request.Context()
	username := domain.NormalizeUsername(c.Param("username"))
	claims := middleware.Claims(c)
	if claims == nil {
		respondUnauthorized(c, "Authentication required")
		return
	}

	owner, err := h.store.GetUserByUsername(ctx, username)
	if err != nil {
		respondInternalError(c, err, "Failed to list games")
		return
	}
	if owner == nil {
		respondNotFound(c, "User not found")
		return
	}

	if claims.Username != username && !claims.IsAdmin && !owner.SharesLibrary {
		viewer, err := h.store.GetUserByUsername(ctx, claims.Username)
		if err != nil {
			respondInternalError(c, err, "Failed to list games")
			return
		}
		granted := false
		if viewer != nil {
			granted, err = h.store.HasShare(ctx, owner.ID, viewer.ID)
			if err != nil {
				respondInternalError(c, err, "Failed to list games")
				return
			}
		}
		if !granted {
			respondForbidden(c, "Library is not shared with you")
			return
		}
	}

	games, err := h.store.ListGames(ctx, owner.ID)
	if err != nil {
		respondInternalError(c, err, "Failed to list games")
		return
	}

	c.JSON(http.StatusOK, gin.H{"games": dto.FromGames(games)})
}

// AddGame adds a game to the user's library and emits a game_added event
func (h *handler) AddGame(c *gin.Context) {
	var req dto.AddGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	owner, ok := h.targetUser(c)
	if !ok {
		return
	}

	game := &schema.TrackedGame{
		UserID:      owner.ID,
		Name:        strings.TrimSpace(req.Name),
		Status:      req.Status,
		CatalogID:   req.CatalogID,
		Source:      req.Source,
		ReleaseDate: emptyToNil(req.ReleaseDate),
		CoverURL:    emptyToNil(req.CoverURL),
		SteamAppID:  emptyToNil(req.SteamAppID),
	}
	// A game without a release date can only be unreleased
	if game.ReleaseDate == nil {
		game.Status = domain.GameStatusUnreleased
	}
	if err := h.store.AddGame(c.Request.Context(), game); err != nil {
		respondInternalError(c, err, "Failed to add game")
		return
	}

	h.dispatch(c.Request.Context(), owner, domain.LibraryEvent{
		Type:        domain.EventGameAdded,
		Username:    owner.Username,
		GameID:      game.ID,
		GameName:    game.Name,
		Status:      game.Status,
		ReleaseDate: game.ReleaseDate,
		OccurredAt:  h.clock.Now(),
	})

	c.JSON(http.StatusCreated, dto.FromGame(game))
}

// UpdateGame updates a tracked game and emits status events as needed
func (h *handler) UpdateGame(c *gin.Context) {
	var req dto.UpdateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	owner, ok := h.targetUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	game, ok := h.pathGame(c, owner.ID)
	if !ok {
		return
	}

	previousStatus := game.Status
	if req.Name != nil {
		game.Name = strings.TrimSpace(*req.Name)
	}
	if req.Status != nil {
		game.Status = *req.Status
	}
	if req.ReleaseDate != nil {
		game.ReleaseDate = emptyToNil(req.ReleaseDate)
	}
	if req.CoverURL != nil {
		game.CoverURL = emptyToNil(req.CoverURL)
	}
	if req.SteamAppID != nil {
		game.SteamAppID = emptyToNil(req.SteamAppID)
	}
	// Clearing the release date puts the game back to unreleased
	if game.ReleaseDate == nil {
		game.Status = domain.GameStatusUnreleased
	}

	if err := h.store.UpdateGame(ctx, game); err != nil {
		respondInternalError(c, err, "Failed to update game")
		return
	}

	if game.Status != previousStatus {
		h.dispatch(ctx, owner, domain.LibraryEvent{
			Type:        domain.EventStatusChanged,
			Username:    owner.Username,
			GameID:      game.ID,
			GameName:    game.Name,
			Status:      game.Status,
			ReleaseDate: game.ReleaseDate,
			OccurredAt:  h.clock.Now(),
		})

		// A user marking an unreleased game as out counts as a release,
		// provided the date is actually past
		if previousStatus == domain.GameStatusUnreleased && h.isReleased(game) {
			h.dispatch(ctx, owner, domain.LibraryEvent{
				Type:        domain.EventGameReleased,
				Username:    owner.Username,
				GameID:      game.ID,
				GameName:    game.Name,
				Status:      game.Status,
				ReleaseDate: game.ReleaseDate,
				OccurredAt:  h.clock.Now(),
			})
		}
	}

	c.JSON(http.StatusOK, dto.FromGame(game))
}

// DeleteGame removes a game from the user's library
func (h *handler) DeleteGame(c *gin.Context) {
	owner, ok := h.targetUser(c)
	if !ok {
		return
	}
	game, ok := h.pathGame(c, owner.ID)
	if !ok {
		return
	}

	if err := h.store.DeleteGame(c.Request.Context(), owner.ID, game.ID); err != nil {
		if errors.Is(err, domain.ErrGameNotFound) {
			respondNotFound(c, "Game not found")
			return
		}
		respondInternalError(c, err, "Failed to delete game")
		return
	}

	c.Status(http.StatusNoContent)
}

// RefreshMetadata re-searches every library entry by name and updates
// release date, cover art and missing Steam app ids from exact matches
func (h *handler) RefreshMetadata(c *gin.Context) {
	owner, ok := h.targetUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	games, err := h.store.ListGames(ctx, owner.ID)
	if err != nil {
		respondInternalError(c, err, "Failed to refresh metadata")
		return
	}

	report := dto.RefreshReport{Items: make([]dto.RefreshItem, 0, len(games))}
	for _, game := range games {
		report.Checked++
		item := h.refreshGame(ctx, game)
		if item.Outcome == "updated" {
			report.Updated++
		}
		report.Items = append(report.Items, item)
	}

	c.JSON(http.StatusOK, report)
}

// refreshGame searches the catalogs for one library entry and applies the
// metadata of an exact (case-insensitive) name match
func (h *handler) refreshGame(ctx context.Context, game *schema.TrackedGame) dto.RefreshItem {
	item := dto.RefreshItem{GameID: game.ID, Name: game.Name}

	results, err := h.engine.Search(ctx, game.Name)
	if err != nil {
		item.Outcome = "failed"
		item.Detail = err.Error()
		return item
	}

	var match *domain.MergedResult
	for i := range results {
		if strings.EqualFold(results[i].Name, game.Name) {
			match = &results[i]
			break
		}
	}
	if match == nil {
		item.Outcome = "no_match"
		return item
	}

	changed := false
	if match.ReleaseDate != nil && !equalPtr(game.ReleaseDate, match.ReleaseDate) {
		game.ReleaseDate = match.ReleaseDate
		changed = true
	}
	if match.CoverURL != nil && !equalPtr(game.CoverURL, match.CoverURL) {
		game.CoverURL = match.CoverURL
		changed = true
	}
	// Steam app ids are only filled in, never overwritten
	if game.SteamAppID == nil && match.SteamAppID != nil {
		game.SteamAppID = match.SteamAppID
		changed = true
	}

	if !changed {
		item.Outcome = "unchanged"
		return item
	}

	if err := h.store.UpdateGame(ctx, game); err != nil {
		item.Outcome = "failed"
		item.Detail = err.Error()
		return item
	}
	item.Outcome = "updated"
	return item
}

// SearchGames searches the catalog providers and merges the results
func (h *handler) SearchGames(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		respondBadRequest(c, "Query parameter q is required")
		return
	}

	results, err := h.engine.Search(c.Request.Context(), query)
	if err != nil {
		respondInternalError(c, err, "Search failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}

// GetPrice fetches the live Steam store price for an app
func (h *handler) GetPrice(c *gin.Context) {
	appID := c.Param("steamAppID")
	if appID == "" {
		respondBadRequest(c, "Steam app id is required")
		return
	}

	price, err := h.steam.GetPrice(c.Request.Context(), appID)
	if err != nil {
		if errors.Is(err, domain.ErrPriceNotFound) {
			respondNotFound(c, "No price available for this app")
			return
		}
		respondInternalError(c, err, "Failed to fetch price")
		return
	}

	c.JSON(http.StatusOK, price)
}

// pathGame parses the :gameID parameter and loads the game row
func (h *handler) pathGame(c *gin.Context, userID int64) (*schema.TrackedGame, bool) {
	gameID, err := strconv.ParseInt(c.Param("gameID"), 10, 64)
	if err != nil {
		respondBadRequest(c, "Invalid game id")
		return nil, false
	}

	game, err := h.store.GetGame(c.Request.Context(), userID, gameID)
	if err != nil {
		respondInternalError(c, err, "Failed to load game")
		return nil, false
	}
	if game == nil {
		respondNotFound(c, "Game not found")
		return nil, false
	}
	return game, true
}

// dispatch delivers a library event, logging failed channels without
// affecting the API response
func (h *handler) dispatch(ctx context.Context, user *schema.User, event domain.LibraryEvent) {
	result := h.dispatcher.Dispatch(ctx, user, event)
	if result.Email.Status == domain.ChannelFailed || result.Push.Status == domain.ChannelFailed {
		logger.WarnCtx(ctx, "notification channel failed",
			zap.String("username", user.Username),
			zap.String("event", string(event.Type)),
			zap.Any("result", result))
	}
}

// isReleased reports whether the game's release date is today or past
func (h *handler) isReleased(game *schema.TrackedGame) bool {
	if game.ReleaseDate == nil {
		return false
	}
	days, err := domain.DaysUntilRelease(*game.ReleaseDate, h.clock.Now())
	if err != nil {
		return false
	}
	return days <= 0
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
