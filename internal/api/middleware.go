package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// securityHeaders sets standard response headers on every response.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// adminAuth checks the shared admin token, the same way original_source's
// _ensure_admin does: header x-admin-token, falling back to the ?token=
// query parameter (browsers can't set a custom header on a WebSocket
// upgrade request). An empty configured token disables the check
// entirely, matching settings.ui_admin_token's "unset = no auth" default.
func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminToken == "" {
			c.Next()
			return
		}
		token := c.GetHeader("x-admin-token")
		if token == "" {
			token = c.Query("token")
		}
		if token != s.adminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing/invalid admin token; provide ?token=... or header x-admin-token",
			})
			return
		}
		c.Next()
	}
}
