package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const AdminKeyHeader = "X-Admin-Key"

// AdminKey requires the admin key in X-Admin-Key or as a bearer token.
// An empty key rejects every request.
func AdminKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.GetHeader(AdminKeyHeader)
		if given == "" {
			if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				given = strings.TrimSpace(token)
			}
		}

		if key == "" || given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
