package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
)

// actorID returns the authenticated user id or "" for anonymous calls.
func actorID(c *gin.Context) string {
	if claims := middleware.CurrentClaims(c); claims != nil {
		return claims.UserID
	}
	return ""
}
