package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogging logs every request with method, path, status, caller, and
// duration. Errors (4xx/5xx) log at warn so they stand out at the default
// level.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"user_id", GetUserID(c),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if status >= 400 {
			slog.Warn("Request failed", attrs...)
		} else {
			slog.Info("Request completed", attrs...)
		}
	}
}
