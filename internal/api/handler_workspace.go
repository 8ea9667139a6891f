package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// listWorkspacesHandler handles GET /api/workspaces.
func (s *Server) listWorkspacesHandler(c *gin.Context) {
	workspaces, err := s.workspaces.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, workspaces)
}

// createWorkspaceHandler handles POST /api/workspaces.
func (s *Server) createWorkspaceHandler(c *gin.Context) {
	var req CreateWorkspaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ws, err := s.workspaces.Create(c.Request.Context(), req.Name, req.FSPath)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}
