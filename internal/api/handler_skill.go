package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/benchforge/workbench/internal/models"
)

// listSkillsHandler handles GET /api/skills.
func (s *Server) listSkillsHandler(c *gin.Context) {
	skills, err := s.skills.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, skills)
}

// createSkillHandler handles POST /api/skills.
func (s *Server) createSkillHandler(c *gin.Context) {
	var req CreateSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sk := &models.Skill{
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		AllowedTools: req.AllowedTools,
		DefaultMode:  req.DefaultMode,
		Enabled:      true,
	}
	created, err := s.skills.Create(c.Request.Context(), sk)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, created)
}

// importSkillHandler handles POST /api/skills/import.
func (s *Server) importSkillHandler(c *gin.Context) {
	var req ImportSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var (
		sk  *models.Skill
		err error
	)
	switch {
	case req.SourceURL != "":
		sk, err = s.skills.ImportFromURL(c.Request.Context(), req.SourceURL)
	case req.SourceFile != "":
		sk, err = s.skills.ImportFromFile(c.Request.Context(), req.SourceFile)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_url or source_file is required"})
		return
	}
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sk)
}
