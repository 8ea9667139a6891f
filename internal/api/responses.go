package api

import (
	"github.com/benchforge/workbench/internal/queue"
	"github.com/benchforge/workbench/internal/services"
)

// TaskCreatedResponse is returned by POST /api/tasks.
type TaskCreatedResponse struct {
	OK     bool   `json:"ok"`
	TaskID string `json:"task_id"`
}

// AutoTaskCreatedResponse is returned by POST /api/tasks/auto, echoing
// back the workspace/skill/mode the router resolved.
type AutoTaskCreatedResponse struct {
	OK          bool   `json:"ok"`
	TaskID      string `json:"task_id"`
	WorkspaceID string `json:"workspace_id"`
	SkillID     string `json:"skill_id"`
	Mode        string `json:"mode"`
}

// OKResponse is the generic {"ok": true} acknowledgement used by
// mutation endpoints that don't otherwise return anything interesting.
type OKResponse struct {
	OK bool `json:"ok"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                    `json:"status"`
	Pool     *queue.PoolHealth         `json:"pool,omitempty"`
	Warnings []*services.SystemWarning `json:"warnings,omitempty"`
}
