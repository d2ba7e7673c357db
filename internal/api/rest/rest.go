package rest

import (
	"github.com/gin-gonic/gin"

	"github.com/questlog/questlog/internal/api/middleware"
	"github.com/questlog/questlog/internal/auth"
)

// SetupRoutes configures all REST API routes
func SetupRoutes(router *gin.Engine, handler Handler, authSvc auth.Service) {
	// Health check endpoint (no auth, no version prefix)
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Login (public, rate limited per client address)
		v1.POST("/auth/login", handler.Login)

		authed := v1.Group("", middleware.Auth(authSvc))
		{
			// Self-service settings
			authed.PUT("/me/settings", handler.UpdateSettings)
			authed.PUT("/me/sharing", handler.UpdateSharing)
			authed.GET("/me/shared-with-me", handler.ListSharedWithMe)
			authed.DELETE("/me/shared-with-me/:fromUsername", handler.RevokeSharedWithMe)

			// Libraries browsable by everyone
			authed.GET("/shared-libraries", handler.ListSharedLibraries)

			// Catalog search and pricing
			authed.GET("/games/search", handler.SearchGames)
			authed.GET("/games/price/:steamAppID", handler.GetPrice)

			// Library management (owner or admin; reads also honor grants)
			authed.GET("/users/:username/games", handler.ListGames)
			authed.POST("/users/:username/games", handler.AddGame)
			authed.PUT("/users/:username/games/:gameID", handler.UpdateGame)
			authed.DELETE("/users/:username/games/:gameID", handler.DeleteGame)
			authed.POST("/users/:username/games/refresh", handler.RefreshMetadata)

			// Share grants
			authed.POST("/users/:username/shares", handler.SetShares)
			authed.GET("/users/:username/shares", handler.ListShares)
			authed.DELETE("/users/:username/shares/:toUsername", handler.RevokeShare)

			// User administration
			admin := authed.Group("", middleware.AdminOnly())
			{
				admin.POST("/users", handler.CreateUser)
				admin.GET("/users", handler.ListUsers)
				admin.PUT("/users/:username", handler.UpdateUser)
				admin.DELETE("/users/:username", handler.DeleteUser)

				admin.POST("/admin/notifications/test", handler.TestNotification)
				admin.POST("/admin/releases/check", handler.CheckReleases)
				admin.POST("/admin/prices/refresh", handler.RefreshPrices)
				admin.POST("/admin/directory/sync", handler.SyncDirectory)
			}
		}
	}
}
