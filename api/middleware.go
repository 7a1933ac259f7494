package api

import (
	"net/http"
	"strings"

	"audiograb/config"

	"github.com/gin-gonic/gin"
)

// UnlockMiddleware gates mutating endpoints behind the static unlock code
// when enabled.
func UnlockMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AuthEnable {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid Authorization header format"})
			return
		}

		if parts[1] != cfg.UnlockCode {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "error", "message": "Invalid unlock code"})
			return
		}

		c.Next()
	}
}
