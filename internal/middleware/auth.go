// Package middleware provides gin middleware for identity, request
// logging, and metrics.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/poolpay/poolpay/internal/auth"
)

// userIDKey is the gin context key for the authenticated user ID.
const userIDKey = "user_id"

// GetUserID extracts the authenticated user ID from the gin context.
// Returns empty string if the request was not authenticated.
func GetUserID(c *gin.Context) string {
	userID, _ := c.Value(userIDKey).(string)
	return userID
}

// RequireAuth validates the Bearer token and stores the caller's user ID
// in the request context. Requests without a valid token are rejected.
func RequireAuth(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrMissingToken.Error()})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
			return
		}

		claims, err := jwtManager.Validate(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": auth.ErrInvalidToken.Error()})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}
