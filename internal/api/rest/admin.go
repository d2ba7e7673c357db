package rest

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/api/rest/dto"
	"github.com/questlog/questlog/internal/domain"
)

// TestNotification sends a test notification to a user
func (h *handler) TestNotification(c *gin.Context) {
	var req dto.TestNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		respondValidationError(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	user, err := h.store.GetUserByUsername(ctx, req.Username)
	if err != nil {
		respondInternalError(c, err, "Failed to send test notification")
		return
	}
	if user == nil {
		respondNotFound(c, "User not found")
		return
	}

	result := h.dispatcher.Dispatch(ctx, user, domain.LibraryEvent{
		Type:       domain.EventTestNotification,
		Username:   user.Username,
		OccurredAt: h.clock.Now(),
	})

	c.JSON(http.StatusOK, result)
}

// CheckReleases runs the release sweep on demand
func (h *handler) CheckReleases(c *gin.Context) {
	report, err := h.releases.RunOnce(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Release check failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

// RefreshPrices runs the price sweep on demand
func (h *handler) RefreshPrices(c *gin.Context) {
	report, err := h.prices.RunOnce(c.Request.Context())
	if err != nil {
		respondInternalError(c, err, "Price refresh failed")
		return
	}
	c.JSON(http.StatusOK, report)
}

// SyncDirectory refreshes directory-sourced profile fields of directory
// accounts
func (h *handler) SyncDirectory(c *gin.Context) {
	if h.directory == nil || !h.directory.Enabled() {
		respondBadRequest(c, "Directory is not configured")
		return
	}

	ctx := c.Request.Context()
	users, err := h.store.ListUsers(ctx)
	if err != nil {
		respondInternalError(c, err, "Directory sync failed")
		return
	}

	report := dto.DirectorySyncReport{Items: make([]dto.DirectorySyncItem, 0)}
	for _, user := range users {
		if user.Origin != domain.OriginDirectory {
			continue
		}
		report.Checked++
		item := dto.DirectorySyncItem{Username: user.Username}

		entry, err := h.directory.Lookup(ctx, user.Username)
		if err != nil {
			item.Outcome = "failed"
			item.Detail = err.Error()
			report.Items = append(report.Items, item)
			continue
		}

		var displayName *string
		if entry.DisplayName != "" {
			displayName = &entry.DisplayName
		}
		if err := h.store.UpdateDirectoryProfile(ctx, user.ID, displayName, entry.Email); err != nil {
			item.Outcome = "failed"
			item.Detail = err.Error()
		} else {
			item.Outcome = "updated"
			report.Updated++
		}
		report.Items = append(report.Items, item)
	}

	c.JSON(http.StatusOK, report)
}
