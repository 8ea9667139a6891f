package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	resp := HealthResponse{Status: "healthy"}

	if s.pool != nil {
		resp.Pool = s.pool.Health(c.Request.Context())
		if !resp.Pool.IsHealthy {
			resp.Status = "degraded"
		}
	}
	if s.warnings != nil {
		if warnings := s.warnings.List(); len(warnings) > 0 {
			resp.Warnings = warnings
		}
	}

	c.JSON(http.StatusOK, resp)
}

// systemWarningsHandler handles GET /api/system/warnings.
func (s *Server) systemWarningsHandler(c *gin.Context) {
	if s.warnings == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, s.warnings.List())
}
