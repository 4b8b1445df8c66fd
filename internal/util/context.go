package util

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUserIDFromContext extracts the authenticated user id from the Gin
// context. If the user is not authenticated it responds 401 and returns
// false.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	userIDStr, ok := userID.(string)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user ID in context"})
		return "", false
	}
	return userIDStr, true
}

// IsAdminFromContext reports whether the caller carries the admin claim
func IsAdminFromContext(c *gin.Context) bool {
	admin, exists := c.Get("is_admin")
	if !exists {
		return false
	}
	b, ok := admin.(bool)
	return ok && b
}
