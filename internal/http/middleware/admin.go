// Admin authentication middleware.
//
// The service trusts its chat gateway for end-user identity; administrators
// authenticate with a shared token carried in X-Admin-Token. The token is the
// whole authorization decision ("is administrator"); per-admin identity is
// reporting-only and comes from X-Admin-ID.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAdminToken carries the shared admin secret.
	HeaderAdminToken = "X-Admin-Token"
	// HeaderAdminID carries the acting administrator's identity (reporting only).
	HeaderAdminID = "X-Admin-ID"
)

// AdminAuth guards a route group with a constant-time comparison against the
// configured token. An empty configured token disables the admin surface
// entirely rather than leaving it open.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code":    "forbidden",
				"message": "admin API disabled",
			})
			return
		}
		got := c.GetHeader(HeaderAdminToken)
		if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "unauthorized",
				"message": "invalid admin token",
			})
			return
		}

		if id := strings.TrimSpace(c.GetHeader(HeaderAdminID)); id != "" {
			c.Set("adminID", id)
		}
		c.Next()
	}
}
