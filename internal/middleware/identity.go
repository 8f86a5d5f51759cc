package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"wafferli-chat-service/internal/repositories"
)

// Identity resolves the X-User-ID header against the marketplace accounts
// and stores the id in the request context. The API gateway in front of
// this service has already authenticated the token and set the header.
func Identity(users repositories.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("X-User-ID")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		userID, err := strconv.ParseInt(header, 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid identity"})
			return
		}

		known, err := users.Exists(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity check failed"})
			return
		}
		if !known {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
			return
		}

		c.Set("userID", userID)
		c.Next()
	}
}

// UserID reads the authenticated user id stored by Identity.
func UserID(c *gin.Context) int64 {
	return c.GetInt64("userID")
}
