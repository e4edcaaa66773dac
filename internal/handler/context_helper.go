package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/sisforge/sis-core-api/internal/middleware"
	"github.com/sisforge/sis-core-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.CurrentClaims(c)
	if !ok {
		return nil
	}
	return claims
}

// actorID returns the authenticated user's ID, or "" for anonymous calls.
func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return ""
}
