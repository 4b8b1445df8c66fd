package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/veilchat/whispermatch/internal/auth"
	"github.com/veilchat/whispermatch/internal/errors"
	"github.com/veilchat/whispermatch/internal/util"
)

// AuthMiddleware validates the bearer token and stores the caller's
// identity in the context.
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			util.RespondUnauthorized(c, "missing bearer token")
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			util.RespondUnauthorized(c, "invalid token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("is_admin", claims.Admin)
		c.Next()
	}
}

// AdminOnly rejects callers without the admin claim. Must run after
// AuthMiddleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !util.IsAdminFromContext(c) {
			util.RespondWithAPIError(c, errors.Forbidden("admin access required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
