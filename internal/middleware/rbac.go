package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

// RBAC lets the request through only when the caller holds one of the roles.
func RBAC(allowed ...string) gin.HandlerFunc {
	roles := make(map[models.UserRole]struct{}, len(allowed))
	for _, a := range allowed {
		roles[models.UserRole(a)] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := roles[claims.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRoles is RBAC for typed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
