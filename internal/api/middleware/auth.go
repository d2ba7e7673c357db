package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/questlog/questlog/internal/api/shared/errors"
	"github.com/questlog/questlog/internal/auth"
	"github.com/questlog/questlog/internal/logger"
)

const claimsKey = "jwt_claims"

// Auth returns a gin middleware that validates the Bearer token and stores
// the claims in the request context
func Auth(authSvc auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(c.GetHeader("Authorization"), authSvc)
		if err != nil {
			logger.Warn("Authentication failed",
				zap.Error(err),
				zap.String("path", c.Request.URL.Path),
				zap.String("client_ip", c.ClientIP()),
			)
			apiErr := apierrors.NewUnauthorizedError("Authentication failed", err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, apiErr)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// AdminOnly returns a gin middleware that rejects non-admin tokens. It must
// run after Auth.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil || !claims.IsAdmin {
			apiErr := apierrors.NewForbiddenError("Admin access required")
			c.AbortWithStatusJSON(http.StatusForbidden, apiErr)
			return
		}
		c.Next()
	}
}

// Claims returns the validated token claims stored by Auth, or nil
func Claims(c *gin.Context) *auth.Claims {
	value, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, ok := value.(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}

// authenticate validates the Authorization header and returns the claims
func authenticate(authHeader string, authSvc auth.Service) (*auth.Claims, error) {
	if authHeader == "" {
		return nil, errors.New("missing Authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return nil, errors.New("invalid Authorization header format")
	}

	return authSvc.ValidateToken(parts[1])
}
