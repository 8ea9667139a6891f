package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// createTaskHandler handles POST /api/tasks.
func (s *Server) createTaskHandler(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	task, err := s.tasks.CreateTask(c.Request.Context(), req.WorkspaceID, req.SkillID, req.Goal, req.Mode, req.Backend)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, TaskCreatedResponse{OK: true, TaskID: task.ID})
}

// autoCreateTaskHandler handles POST /api/tasks/auto. Workspace
// resolution is explicit body field > default_workspace_id cookie >
// first workspace; on success the cookie is (re)set to whatever
// workspace was actually used, matching original_source's
// api_create_task_auto.
func (s *Server) autoCreateTaskHandler(c *gin.Context) {
	var req AutoCreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cookieWorkspaceID, _ := c.Cookie("default_workspace_id")

	res, err := s.tasks.AutoCreateTask(c.Request.Context(), req.Goal, req.Hint, cookieWorkspaceID, req.Mode, req.WorkspaceID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.SetCookie("default_workspace_id", res.WorkspaceID, 3600*24*365, "/", "", false, true)
	c.JSON(http.StatusOK, AutoTaskCreatedResponse{
		OK:          true,
		TaskID:      res.Task.ID,
		WorkspaceID: res.WorkspaceID,
		SkillID:     res.SkillID,
		Mode:        string(res.Mode),
	})
}

// listTasksHandler handles GET /api/tasks.
func (s *Server) listTasksHandler(c *gin.Context) {
	tasks, err := s.tasks.ListTasks(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// getTaskHandler handles GET /api/tasks/:id.
func (s *Server) getTaskHandler(c *gin.Context) {
	detail, err := s.tasks.GetTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"task":      detail.Task,
		"steps":     detail.Steps,
		"approvals": detail.Approvals,
	})
}

// deleteTaskHandler handles DELETE /api/tasks/:id. A second delete of
// the same id is a no-op per spec.md §4.9, so this never 404s.
func (s *Server) deleteTaskHandler(c *gin.Context) {
	if err := s.tasks.DeleteTask(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, OKResponse{OK: true})
}

// approveStepHandler handles POST /api/tasks/:id/approve/:step_id.
func (s *Server) approveStepHandler(c *gin.Context) {
	var req ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	approved, ok := isApproveDecision(req.Decision)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "decision must be 'approve' or 'reject'"})
		return
	}
	if err := s.tasks.ApproveStep(c.Request.Context(), c.Param("id"), c.Param("step_id"), approved, req.Reason); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, OKResponse{OK: true})
}

func isApproveDecision(decision string) (approved bool, ok bool) {
	switch decision {
	case "approve", "approved", "yes":
		return true, true
	case "reject", "rejected", "no", "deny", "denied":
		return false, true
	default:
		return false, false
	}
}

// continueTaskHandler handles POST /api/tasks/:id/continue.
func (s *Server) continueTaskHandler(c *gin.Context) {
	var req ContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.tasks.ContinueTask(c.Request.Context(), c.Param("id"), req.Message); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, OKResponse{OK: true})
}

// cancelTaskHandler handles POST /api/tasks/:id/cancel.
func (s *Server) cancelTaskHandler(c *gin.Context) {
	var req CancelRequest
	_ = c.ShouldBindJSON(&req)
	if err := s.tasks.CancelTask(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, OKResponse{OK: true})
}

// taskEventsHandler handles GET /api/tasks/:id/events, the paginated
// replay half of spec.md §4.9's events(); the live half is subscribeEvents
// over the /api/ws websocket.
func (s *Server) taskEventsHandler(c *gin.Context) {
	afterSeq := parseInt64Query(c, "after", 0)
	limit := int(parseInt64Query(c, "limit", 200))
	if limit < 1 {
		limit = 1
	}
	if limit > 2000 {
		limit = 2000
	}
	tail := c.Query("tail") == "true" || c.Query("tail") == "1"

	rows, err := s.store.ListEvents(c.Request.Context(), c.Param("id"), afterSeq, limit, tail)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

func parseInt64Query(c *gin.Context, key string, def int64) int64 {
	v := c.Query(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return def
	}
	return n
}
