package api

import "github.com/benchforge/workbench/internal/models"

// CreateTaskRequest is the body for POST /api/tasks.
type CreateTaskRequest struct {
	WorkspaceID string         `json:"workspace_id" binding:"required"`
	SkillID     string         `json:"skill_id" binding:"required"`
	Goal        string         `json:"goal" binding:"required"`
	Mode        models.Mode    `json:"mode"`
	Backend     models.Backend `json:"backend"`
}

// AutoCreateTaskRequest is the body for POST /api/tasks/auto.
type AutoCreateTaskRequest struct {
	Goal        string      `json:"goal" binding:"required"`
	Hint        string      `json:"hint"`
	Mode        models.Mode `json:"mode"`
	WorkspaceID string      `json:"workspace_id"`
}

// ApprovalRequest is the body for POST /api/tasks/:id/approve/:step_id.
type ApprovalRequest struct {
	Decision string `json:"decision" binding:"required"` // "approve" or "reject"
	Reason   string `json:"reason"`
}

// ContinueRequest is the body for POST /api/tasks/:id/continue.
type ContinueRequest struct {
	Message string `json:"message" binding:"required"`
}

// CancelRequest is the body for POST /api/tasks/:id/cancel.
type CancelRequest struct {
	Reason string `json:"reason"`
}

// CreateWorkspaceRequest is the body for POST /api/workspaces.
type CreateWorkspaceRequest struct {
	Name   string `json:"name" binding:"required"`
	FSPath string `json:"fs_path" binding:"required"`
}

// CreateSkillRequest is the body for POST /api/skills.
type CreateSkillRequest struct {
	Name         string      `json:"name" binding:"required"`
	Description  string      `json:"description"`
	SystemPrompt string      `json:"system_prompt" binding:"required"`
	AllowedTools []string    `json:"allowed_tools"`
	DefaultMode  models.Mode `json:"default_mode"`
}

// ImportSkillRequest is the body for POST /api/skills/import. Exactly
// one of SourceURL or SourceFile must be set.
type ImportSkillRequest struct {
	SourceURL  string `json:"source_url"`
	SourceFile string `json:"source_file"`
}
