package rest

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/api/rest/dto"
	"github.com/questlog/questlog/internal/domain"
	"github.com/questlog/questlog/internal/store/schema"
)

// SetShares replaces the user's share grant set
func (h *handler) SetShares(c *gin.Context) {
	var req dto.SetSharesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidationError(c, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	owner, ok := h.targetUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	toIDs := make([]int64, 0, len(req.Usernames))
	seen := make(map[int64]bool)
	for _, name := range req.Usernames {
		username := domain.NormalizeUsername(name)
		if username == owner.Username {
			respondValidationError(c, "Cannot share a library with its owner")
			return
		}
		target, err := h.store.GetUserByUsername(ctx, username)
		if err != nil {
			respondInternalError(c, err, "Failed to set shares")
			return
		}
		if target == nil {
			respondValidationError(c, fmt.Sprintf("Unknown user %q", username))
			return
		}
		if !seen[target.ID] {
			seen[target.ID] = true
			toIDs = append(toIDs, target.ID)
		}
	}

	if err := h.store.SetShares(ctx, owner.ID, toIDs); err != nil {
		respondInternalError(c, err, "Failed to set shares")
		return
	}

	h.respondShares(c, owner.ID)
}

// ListShares lists who the user shares their library with
func (h *handler) ListShares(c *gin.Context) {
	owner, ok := h.targetUser(c)
	if !ok {
		return
	}
	h.respondShares(c, owner.ID)
}

// ListSharedWithMe lists libraries shared with the calling user
func (h *handler) ListSharedWithMe(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	shares, err := h.store.ListSharesTo(ctx, user.ID)
	if err != nil {
		respondInternalError(c, err, "Failed to list shared libraries")
		return
	}

	out := make([]dto.ShareResponse, 0, len(shares))
	for _, share := range shares {
		from, err := h.store.GetUserByID(ctx, share.FromUserID)
		if err != nil {
			respondInternalError(c, err, "Failed to list shared libraries")
			return
		}
		if from == nil {
			continue
		}
		out = append(out, dto.ShareResponse{Username: from.Username, SharedAt: share.SharedAt})
	}

	c.JSON(http.StatusOK, gin.H{"shares": out})
}

// RevokeShare removes a single share grant
func (h *handler) RevokeShare(c *gin.Context) {
	owner, ok := h.targetUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	toUsername := domain.NormalizeUsername(c.Param("toUsername"))
	target, err := h.store.GetUserByUsername(ctx, toUsername)
	if err != nil {
		respondInternalError(c, err, "Failed to revoke share")
		return
	}
	if target == nil {
		respondNotFound(c, "User not found")
		return
	}

	found, err := h.removeShare(ctx, owner.ID, target.ID)
	if err != nil {
		respondInternalError(c, err, "Failed to revoke share")
		return
	}
	if !found {
		respondNotFound(c, "Share not found")
		return
	}

	c.Status(http.StatusNoContent)
}

// RevokeSharedWithMe lets the calling user reject a library shared with them
func (h *handler) RevokeSharedWithMe(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	fromUsername := domain.NormalizeUsername(c.Param("fromUsername"))
	from, err := h.store.GetUserByUsername(ctx, fromUsername)
	if err != nil {
		respondInternalError(c, err, "Failed to revoke share")
		return
	}
	if from == nil {
		respondNotFound(c, "User not found")
		return
	}

	found, err := h.removeShare(ctx, from.ID, user.ID)
	if err != nil {
		respondInternalError(c, err, "Failed to revoke share")
		return
	}
	if !found {
		respondNotFound(c, "Share not found")
		return
	}

	c.Status(http.StatusNoContent)
}

// removeShare drops a single grant, reporting whether it existed
func (h *handler) removeShare(ctx context.Context, fromUserID, toUserID int64) (bool, error) {
	shares, err := h.store.ListSharesFrom(ctx, fromUserID)
	if err != nil {
		return false, err
	}

	found := false
	remaining := make([]int64, 0, len(shares))
	for _, share := range shares {
		if share.ToUserID == toUserID {
			found = true
			continue
		}
		remaining = append(remaining, share.ToUserID)
	}
	if !found {
		return false, nil
	}

	return true, h.store.SetShares(ctx, fromUserID, remaining)
}

// respondShares writes the user's current grant set
func (h *handler) respondShares(c *gin.Context, fromUserID int64) {
	ctx := c.Request.Context()
	shares, err := h.store.ListSharesFrom(ctx, fromUserID)
	if err != nil {
		respondInternalError(c, err, "Failed to list shares")
		return
	}

	out, err := h.shareViews(ctx, shares)
	if err != nil {
		respondInternalError(c, err, "Failed to list shares")
		return
	}
	c.JSON(http.StatusOK, gin.H{"shares": out})
}

// shareViews resolves grant rows to usernames
func (h *handler) shareViews(ctx context.Context, shares []*schema.LibraryShare) ([]dto.ShareResponse, error) {
	out := make([]dto.ShareResponse, 0, len(shares))
	for _, share := range shares {
		to, err := h.store.GetUserByID(ctx, share.ToUserID)
		if err != nil {
			return nil, err
		}
		if to == nil {
			continue
		}
		out = append(out, dto.ShareResponse{Username: to.Username, SharedAt: share.SharedAt})
	}
	return out, nil
}
