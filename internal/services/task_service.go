package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
)

// Dispatcher starts a freshly queued task running; internal/queue's
// Pool implements this, and internal/scheduler depends on the same
// interface for its own task creation path.
type Dispatcher interface {
	StartTask(ctx context.Context, taskID string) error
}

// Runner is the subset of internal/orchestrator.RunEngine and
// internal/agentloop.RunEngine that TaskService needs to drive
// approvals and cancellation; RunTask itself is only ever reached
// through the Dispatcher so a task is never run outside the queue's
// concurrency control.
type Runner interface {
	ApproveStep(ctx context.Context, taskID, stepID string, approved bool, reason string) error
	Cancel(ctx context.Context, taskID, reason string) error
}

// ContinuableRunner is additionally implemented by the agent-loop
// backend: continueTask on a non-waiting_approval task only makes sense
// for a backend that can append a user turn and resume its loop.
type ContinuableRunner interface {
	Runner
	Continue(ctx context.Context, taskID, message string) error
}

// TaskService implements the boundary operations of spec.md §4.9:
// create/list/get/delete/approve/continue/cancel. It holds no run logic
// of its own — that lives in internal/orchestrator and
// internal/agentloop — only the validation, routing, and cascading
// side effects (artifact cleanup, chat-message seeding) around it.
type TaskService struct {
	Store      *store.Store
	Dispatcher Dispatcher
	Router     *SkillRouter

	Classic   Runner
	AgentLoop ContinuableRunner

	ArtifactsDir string
	OutputsDir   string
}

func (s *TaskService) runnerFor(backend models.Backend) Runner {
	if backend == models.BackendAgentLoop {
		return s.AgentLoop
	}
	return s.Classic
}

// CreateTask validates workspace/skill existence, persists a new queued
// task, and hands it to the dispatcher.
func (s *TaskService) CreateTask(ctx context.Context, workspaceID, skillID, goal string, mode models.Mode, backend models.Backend) (*models.Task, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, NewValidationError("goal", "required")
	}
	if _, err := s.Store.GetWorkspace(ctx, workspaceID); err != nil {
		return nil, validationOrWrap("workspace_id", "unknown workspace", err)
	}
	if _, err := s.Store.GetSkill(ctx, skillID); err != nil {
		return nil, validationOrWrap("skill_id", "unknown skill", err)
	}
	if mode == "" {
		mode = models.ModeFast
	}
	if backend == "" {
		backend = models.BackendClassic
	}

	task, err := s.Store.CreateTask(ctx, workspaceID, skillID, goal, mode, backend)
	if err != nil {
		return nil, fmt.Errorf("services: create task: %w", err)
	}
	if err := s.Dispatcher.StartTask(ctx, task.ID); err != nil {
		return nil, fmt.Errorf("services: start task: %w", err)
	}
	return task, nil
}

// AutoCreateTaskResult is the resolved selection autoCreateTask made
// before creating the task, echoed back per spec.md §4.9 so the caller
// can display what was picked.
type AutoCreateTaskResult struct {
	Task        *models.Task
	WorkspaceID string
	SkillID     string
	Mode        models.Mode
}

// AutoCreateTask resolves a workspace (explicit > cookieWorkspaceID >
// first) and a skill (via Router) and then creates the task exactly as
// CreateTask would.
func (s *TaskService) AutoCreateTask(ctx context.Context, goal, hint, cookieWorkspaceID string, mode models.Mode, explicitWorkspaceID string) (*AutoCreateTaskResult, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, NewValidationError("goal", "required")
	}
	if mode == "" {
		mode = models.ModeFast
	}

	workspaceID, err := s.resolveWorkspace(ctx, explicitWorkspaceID, cookieWorkspaceID)
	if err != nil {
		return nil, err
	}

	skills, err := s.Store.ListSkills(ctx)
	if err != nil {
		return nil, fmt.Errorf("services: list skills: %w", err)
	}
	enabled := make([]models.Skill, 0, len(skills))
	for _, sk := range skills {
		if sk.Enabled {
			enabled = append(enabled, sk)
		}
	}
	if len(enabled) == 0 {
		return nil, NewValidationError("skill_id", "no enabled skills available")
	}

	skillID, err := s.Router.Choose(ctx, goal, hint, mode, enabled)
	if err != nil {
		return nil, fmt.Errorf("services: route skill: %w", err)
	}

	task, err := s.CreateTask(ctx, workspaceID, skillID, goal, mode, models.BackendClassic)
	if err != nil {
		return nil, err
	}
	return &AutoCreateTaskResult{Task: task, WorkspaceID: workspaceID, SkillID: skillID, Mode: mode}, nil
}

func (s *TaskService) resolveWorkspace(ctx context.Context, explicit, cookie string) (string, error) {
	if explicit != "" {
		if _, err := s.Store.GetWorkspace(ctx, explicit); err != nil {
			return "", validationOrWrap("workspace_id", "unknown workspace", err)
		}
		return explicit, nil
	}
	if cookie != "" {
		if _, err := s.Store.GetWorkspace(ctx, cookie); err == nil {
			return cookie, nil
		}
	}
	workspaces, err := s.Store.ListWorkspaces(ctx)
	if err != nil {
		return "", fmt.Errorf("services: list workspaces: %w", err)
	}
	if len(workspaces) == 0 {
		return "", NewValidationError("workspace_id", "no workspaces available")
	}
	return workspaces[0].ID, nil
}

// ListTasks returns every task, newest first.
func (s *TaskService) ListTasks(ctx context.Context) ([]models.Task, error) {
	return s.Store.ListTasks(ctx)
}

// TaskDetail bundles a task with its steps and approvals, the shape
// getTask returns per spec.md §4.9.
type TaskDetail struct {
	Task      *models.Task
	Steps     []models.Step
	Approvals []models.Approval
}

// GetTask loads a task plus its steps and approvals.
func (s *TaskService) GetTask(ctx context.Context, taskID string) (*TaskDetail, error) {
	task, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	steps, err := s.Store.ListSteps(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("services: list steps: %w", err)
	}
	approvals, err := s.Store.ListApprovals(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("services: list approvals: %w", err)
	}
	return &TaskDetail{Task: task, Steps: steps, Approvals: approvals}, nil
}

// DeleteTask removes the task's store rows and best-effort deletes its
// artifact and output directories. A second call on an already-deleted
// task id is a no-op, matching Store.DeleteTask.
func (s *TaskService) DeleteTask(ctx context.Context, taskID string) error {
	if err := s.Store.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("services: delete task: %w", err)
	}
	if s.ArtifactsDir != "" {
		_ = os.RemoveAll(filepath.Join(s.ArtifactsDir, taskID))
	}
	if s.OutputsDir != "" {
		_ = os.RemoveAll(filepath.Join(s.OutputsDir, taskID))
	}
	return nil
}

// ApproveStep records an approval decision and resumes the task's run
// engine.
func (s *TaskService) ApproveStep(ctx context.Context, taskID, stepID string, approved bool, reason string) error {
	task, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	runner := s.runnerFor(task.Backend)
	if runner == nil {
		return fmt.Errorf("services: no runner registered for backend %q", task.Backend)
	}
	return runner.ApproveStep(ctx, taskID, stepID, approved, reason)
}

// CancelTask marks the task canceled, which the run engine treats as an
// absorbing terminal state.
func (s *TaskService) CancelTask(ctx context.Context, taskID, reason string) error {
	task, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	runner := s.runnerFor(task.Backend)
	if runner == nil {
		return fmt.Errorf("services: no runner registered for backend %q", task.Backend)
	}
	return runner.Cancel(ctx, taskID, reason)
}

// ContinueTask implements spec.md §4.9's dual meaning: while the task
// is waiting_approval, message is parsed as a bilingual approve/reject
// decision against the most recent pending approval; otherwise, for the
// agent-loop backend only, it is appended as a new user turn and the
// loop is re-launched.
func (s *TaskService) ContinueTask(ctx context.Context, taskID, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return NewValidationError("message", "required")
	}
	task, err := s.Store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	if task.Status == models.TaskWaitingApproval {
		decision, ok := parseApprovalDecision(message)
		if !ok {
			return NewValidationError("message", "task is waiting approval; reply approve/reject (同意/拒绝)")
		}
		approvals, err := s.Store.ListApprovals(ctx, taskID)
		if err != nil {
			return fmt.Errorf("services: list approvals: %w", err)
		}
		var stepID string
		for i := len(approvals) - 1; i >= 0; i-- {
			if approvals[i].Status == models.ApprovalPending {
				stepID = approvals[i].StepID
				break
			}
		}
		if stepID == "" {
			return fmt.Errorf("%w: task is waiting approval but no pending approval found", ErrBusy)
		}
		return s.ApproveStep(ctx, taskID, stepID, decision, message)
	}

	if task.Status == models.TaskQueued || task.Status == models.TaskPlanning || task.Status == models.TaskRunning {
		return fmt.Errorf("%w: task is busy (status=%s)", ErrBusy, task.Status)
	}

	// A finished or canceled agent-loop task may still be continued: the
	// loop simply picks the conversation back up. AgentLoop.Continue
	// itself rejects the canceled case, matching the guarantee that
	// cancellation is an absorbing terminal state.
	if task.Backend != models.BackendAgentLoop {
		return NewValidationError("backend", "continue is supported only for the agent-loop backend")
	}
	if s.AgentLoop == nil {
		return fmt.Errorf("services: no agent-loop runner registered")
	}
	return s.AgentLoop.Continue(ctx, taskID, message)
}

// parseApprovalDecision mirrors the bilingual keyword matching the
// original runner exposed at its /continue endpoint: reject phrases are
// checked first since a negated agree phrase like "不同意" contains the
// positive keyword "同意" as a substring.
func parseApprovalDecision(message string) (approved bool, ok bool) {
	lower := strings.ToLower(message)
	for _, kw := range []string{"拒绝", "不同意", "不允许"} {
		if strings.Contains(message, kw) {
			return false, true
		}
	}
	switch lower {
	case "no", "n", "reject", "deny", "refuse":
		return false, true
	}
	for _, kw := range []string{"同意", "允许"} {
		if strings.Contains(message, kw) {
			return true, true
		}
	}
	switch lower {
	case "yes", "y", "ok", "approve", "allow":
		return true, true
	}
	return false, false
}

func validationOrWrap(field, message string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewValidationError(field, message)
	}
	return fmt.Errorf("services: %s: %w", field, err)
}
