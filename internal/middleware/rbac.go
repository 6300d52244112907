package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/wigshare/wigshare-api/internal/models"
	appErrors "github.com/wigshare/wigshare-api/pkg/errors"
	"github.com/wigshare/wigshare-api/pkg/response"
)

// RequireRoles blocks callers whose role is not in the allowed set.
// Finer ownership checks stay in the services; this gate only keeps
// whole role classes off a route.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claimsValue, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims := claimsValue.(*models.JWTClaims)

		if _, ok := allowed[claims.Role]; ok {
			c.Next()
			return
		}

		response.Error(c, appErrors.ErrForbidden)
		c.Abort()
	}
}
