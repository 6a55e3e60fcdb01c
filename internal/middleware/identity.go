package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// IdentityMiddleware resolves the caller from the X-User-ID header set by the
// gateway. Token validation happens upstream; this service only needs a
// trusted member identity to key thread views.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("X-User-ID")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing user identity"})
			return
		}

		userID, err := strconv.Atoi(header)
		if err != nil || userID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid user identity"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}
