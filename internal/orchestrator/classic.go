// Package orchestrator implements the classic run engine: a synchronous,
// resumable state machine driving a task's plan to a terminal status
// (spec.md §4.6). It is one of two run backends — internal/agentloop
// implements the other, streaming-tool-call-loop backend.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/benchforge/workbench/internal/agentroles"
	"github.com/benchforge/workbench/internal/masking"
	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/policy"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
)

// MaxCriticIterations bounds how many times the critic may send a task
// back for another round of fix steps before the run is declared
// non-convergent.
const MaxCriticIterations = 3

// RunEngine drives classic-backend tasks to completion. One RunEngine is
// shared process-wide; RunTask is safe to call concurrently for distinct
// task IDs (store writes serialize at the SQLite layer).
type RunEngine struct {
	Store    *store.Store
	Tools    *tools.Registry
	Policy   *policy.Engine
	Planner  *agentroles.Planner
	Executor *agentroles.Executor
	Critic   *agentroles.Critic

	ArtifactsDir string
	Logger       *slog.Logger

	// Masking redacts secret-shaped tool output before it's persisted.
	// Nil disables masking.
	Masking *masking.Service
}

func (e *RunEngine) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// RunTask drives a task from its current state to a terminal status, or
// until it needs to pause for approval. It returns nil even when the
// task ends up "failed" or "waiting_approval" — those are successful
// runs of the state machine. A non-nil error means the engine itself
// could not progress the task at all (e.g. the workspace/skill/task rows
// are missing), and is also recorded on the task before returning.
func (e *RunEngine) RunTask(ctx context.Context, taskID string) error {
	task, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("orchestrator: load task: %w", err)
	}
	if task.Status == models.TaskCanceled {
		return nil
	}

	ws, err := e.Store.GetWorkspace(ctx, task.WorkspaceID)
	if err != nil {
		return e.failTask(ctx, taskID, fmt.Errorf("load workspace: %w", err))
	}
	sk, err := e.Store.GetSkill(ctx, task.SkillID)
	if err != nil {
		return e.failTask(ctx, taskID, fmt.Errorf("load skill: %w", err))
	}
	wsRoot := ws.FSPath
	allowedTools := sk.AllowedTools

	promptVars := map[string]string{
		"task_id":        taskID,
		"workspace_root": wsRoot,
		"outputs_dir":    filepath.Join(wsRoot, "outputs", taskID),
		"artifacts_dir":  filepath.Join(e.ArtifactsDir, taskID),
	}
	skillPrompt := renderPromptTemplate(sk.SystemPrompt, promptVars)
	toolSummaries := e.toolSummaries(allowedTools)

	if task.Plan == nil {
		if e.canceled(ctx, taskID) {
			return nil
		}
		planningStatus := models.TaskPlanning
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &planningStatus}); err != nil {
			return e.failTask(ctx, taskID, err)
		}

		plan, err := e.Planner.Plan(ctx, task.Goal, allowedTools, string(task.Mode), skillPrompt, toolSummaries)
		if err != nil {
			return e.failTask(ctx, taskID, err)
		}
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Plan: plan}); err != nil {
			return e.failTask(ctx, taskID, err)
		}
		if _, err := e.Store.DeleteStepsFrom(ctx, taskID, 0); err != nil {
			return e.failTask(ctx, taskID, err)
		}
		for i, ps := range plan.Steps {
			if _, err := e.Store.CreateStep(ctx, taskID, i, ps.Name, ps.Tool, ps.Args, ps.RequiresApproval); err != nil {
				return e.failTask(ctx, taskID, err)
			}
		}
		if e.canceled(ctx, taskID) {
			return nil
		}
		running := models.TaskRunning
		zero := 0
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &running, CurrentStep: &zero}); err != nil {
			return e.failTask(ctx, taskID, err)
		}
	} else {
		if e.canceled(ctx, taskID) {
			return nil
		}
		running := models.TaskRunning
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &running}); err != nil {
			return e.failTask(ctx, taskID, err)
		}
	}

	for criticIter := 0; criticIter < MaxCriticIterations; criticIter++ {
		if e.canceled(ctx, taskID) {
			return nil
		}
		task, err = e.Store.GetTask(ctx, taskID)
		if err != nil {
			return e.failTask(ctx, taskID, err)
		}
		plan := task.Plan
		steps, err := e.Store.ListSteps(ctx, taskID)
		if err != nil {
			return e.failTask(ctx, taskID, err)
		}
		idx := task.CurrentStep

		for idx < len(steps) {
			if e.canceled(ctx, taskID) {
				return nil
			}
			step := steps[idx]

			if step.Status == models.StepSucceeded {
				idx++
				if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{CurrentStep: &idx}); err != nil {
					return e.failTask(ctx, taskID, err)
				}
				continue
			}

			if step.Status == models.StepWaitingApproval {
				decided, approved := e.approvalDecisionForStep(ctx, taskID, step.ID)
				if decided && approved {
					pending := models.StepPending
					if err := e.Store.UpdateStep(ctx, step.ID, store.StepFields{Status: &pending}); err != nil {
						return e.failTask(ctx, taskID, err)
					}
					step.Status = models.StepPending
				} else {
					if !e.canceled(ctx, taskID) {
						waiting := models.TaskWaitingApproval
						_ = e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &waiting})
					}
					return nil
				}
			}

			running := models.StepRunning
			noErr := ""
			if err := e.Store.UpdateStep(ctx, step.ID, store.StepFields{Status: &running, Error: &noErr}); err != nil {
				return e.failTask(ctx, taskID, err)
			}

			decision, err := e.Policy.Evaluate(ctx, ws.ID, step.Tool, taskID, step.RequiresApproval)
			if err != nil {
				return e.failTask(ctx, taskID, err)
			}
			switch decision.Mode {
			case policy.ModeDeny:
				failed := models.StepFailed
				_ = e.Store.UpdateStep(ctx, step.ID, store.StepFields{Status: &failed, Error: &decision.Reason})
				return e.failTask(ctx, taskID, errors.New(decision.Reason))
			case policy.ModeRequireApproval:
				if _, err := e.Store.CreateApproval(ctx, taskID, step.ID); err != nil {
					return e.failTask(ctx, taskID, err)
				}
				waitingStep := models.StepWaitingApproval
				if err := e.Store.UpdateStep(ctx, step.ID, store.StepFields{Status: &waitingStep}); err != nil {
					return e.failTask(ctx, taskID, err)
				}
				waitingTask := models.TaskWaitingApproval
				_ = e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &waitingTask})
				return nil
			}

			toolCtx := &tools.Context{Context: ctx, WorkspaceRoot: wsRoot, TaskID: taskID, StepID: step.ID}
			result, runErr := e.Tools.Run(toolCtx, step.Tool, step.Args)
			if runErr != nil {
				failed := models.StepFailed
				msg := runErr.Error()
				_ = e.Store.UpdateStep(ctx, step.ID, store.StepFields{Status: &failed, Error: &msg})
				return e.failTask(ctx, taskID, runErr)
			}
			succeeded := models.StepSucceeded
			result = e.Masking.MaskMap(result)
			if err := e.Store.UpdateStep(ctx, step.ID, store.StepFields{Status: &succeeded, Result: result}); err != nil {
				return e.failTask(ctx, taskID, err)
			}
			idx++
			if e.canceled(ctx, taskID) {
				return nil
			}
			runningTask := models.TaskRunning
			if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{CurrentStep: &idx, Status: &runningTask}); err != nil {
				return e.failTask(ctx, taskID, err)
			}

			recent := []agentroles.RecentResult{{StepIdx: step.Idx, Tool: step.Tool, Result: result}}
			patch, patchErr := e.Executor.Propose(ctx, task.Goal, plan, idx, recent, allowedTools, string(task.Mode), skillPrompt, toolSummaries)
			if patchErr == nil && patch != nil {
				if err := applyPatch(ctx, e.Store, taskID, patch); err != nil {
					e.log().Warn("discarding executor patch", "task_id", taskID, "error", err)
				} else if steps, err = e.Store.ListSteps(ctx, taskID); err != nil {
					return e.failTask(ctx, taskID, err)
				}
			}
		}

		artifacts, err := collectArtifacts(e.ArtifactsDir, taskID)
		if err != nil {
			return e.failTask(ctx, taskID, err)
		}
		mdPath, _, err := writeRunReport(wsRoot, taskID, task.Goal, plan, steps, artifacts)
		if err != nil {
			return e.failTask(ctx, taskID, err)
		}
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{OutputPath: &mdPath}); err != nil {
			return e.failTask(ctx, taskID, err)
		}

		verdict, err := e.Critic.Review(ctx, task.Goal, plan, artifacts, string(task.Mode), skillPrompt)
		if err != nil {
			return e.failTask(ctx, taskID, err)
		}
		if verdict.OK {
			if e.canceled(ctx, taskID) {
				return nil
			}
			succeededTask := models.TaskSucceeded
			empty := ""
			if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &succeededTask, Error: &empty}); err != nil {
				return e.failTask(ctx, taskID, err)
			}
			e.Policy.ClearTaskGrants(taskID)
			return nil
		}

		if len(verdict.FixSteps) == 0 {
			return e.failTask(ctx, taskID, errors.New("critic reported issues but provided no fix steps"))
		}
		if err := applyPatch(ctx, e.Store, taskID, &agentroles.Patch{Reason: "critic_fix", AddSteps: verdict.FixSteps}); err != nil {
			return e.failTask(ctx, taskID, err)
		}
		if e.canceled(ctx, taskID) {
			return nil
		}
		runningTask := models.TaskRunning
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &runningTask}); err != nil {
			return e.failTask(ctx, taskID, err)
		}
	}

	if e.canceled(ctx, taskID) {
		return nil
	}
	return e.failTask(ctx, taskID, errors.New("exceeded critic iterations; run did not converge"))
}

// ApproveStep records a user's approve/reject decision for a step's
// pending approval, grants the step's scope for the remainder of the
// task on approval, and resumes the run engine synchronously — mirroring
// the ported implementation's approve_step, which always decides then
// immediately re-enters the runner loop rather than leaving resumption
// to a separate call.
func (e *RunEngine) ApproveStep(ctx context.Context, taskID, stepID string, approved bool, reason string) error {
	ap, err := e.Store.GetPendingApprovalForStep(ctx, stepID)
	if err != nil {
		return fmt.Errorf("orchestrator: no pending approval for step: %w", err)
	}
	if _, err := e.Store.DecideApproval(ctx, ap.ID, approved, reason); err != nil {
		return err
	}

	step, err := e.Store.GetStep(ctx, stepID)
	if err != nil {
		return err
	}

	if approved {
		scope := tools.ScopeForTool(step.Tool)
		e.Policy.Grant(taskID, scope)
		running := models.TaskRunning
		_ = e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &running})
		return e.RunTask(ctx, taskID)
	}

	msg := "rejected by user: " + reason
	failedStep := models.StepFailed
	_ = e.Store.UpdateStep(ctx, stepID, store.StepFields{Status: &failedStep, Error: &msg})
	return e.failTask(ctx, taskID, errors.New(msg))
}

// Cancel marks a task canceled. Terminal tasks are left untouched
// (UpdateTask's absorbing-state rule already no-ops the write), and
// ask-once grants are dropped so a later, unrelated task for the same
// workspace starts from a clean slate.
func (e *RunEngine) Cancel(ctx context.Context, taskID, reason string) error {
	if reason == "" {
		reason = "canceled by user"
	}
	canceled := models.TaskCanceled
	if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &canceled, Error: &reason}); err != nil {
		return err
	}
	e.Policy.ClearTaskGrants(taskID)
	return nil
}

func (e *RunEngine) canceled(ctx context.Context, taskID string) bool {
	t, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return false
	}
	return t.Status == models.TaskCanceled
}

// failTask records err as the task's terminal failure, unless the task
// was canceled out from under the run in the meantime (cancellation
// always wins). Returns err unchanged so callers can `return
// e.failTask(...)` directly.
func (e *RunEngine) failTask(ctx context.Context, taskID string, err error) error {
	if e.canceled(ctx, taskID) {
		return nil
	}
	failed := models.TaskFailed
	msg := err.Error()
	if uerr := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &failed, Error: &msg}); uerr != nil {
		e.log().Error("failed to record task failure", "task_id", taskID, "original_error", err, "store_error", uerr)
	}
	e.Policy.ClearTaskGrants(taskID)
	return err
}

// approvalDecisionForStep reports whether step's most recent approval has
// been decided, and if so, whether it was an approval. Used when the
// runner loop encounters a step already parked in waiting_approval — the
// normal resume path is ApproveStep re-entering RunTask directly, but a
// process restart mid-wait must reach the same conclusion by re-reading
// the approvals table.
func (e *RunEngine) approvalDecisionForStep(ctx context.Context, taskID, stepID string) (decided, approved bool) {
	approvals, err := e.Store.ListApprovals(ctx, taskID)
	if err != nil {
		return false, false
	}
	var latest *models.Approval
	for i := range approvals {
		a := &approvals[i]
		if a.StepID != stepID {
			continue
		}
		if latest == nil || a.RequestedAt.After(latest.RequestedAt) {
			latest = a
		}
	}
	if latest == nil || latest.Status == models.ApprovalPending {
		return false, false
	}
	return true, latest.Status == models.ApprovalApproved
}

func (e *RunEngine) toolSummaries(allowed []string) []agentroles.ToolSummary {
	specs := e.Tools.List(allowed)
	out := make([]agentroles.ToolSummary, 0, len(specs))
	for _, s := range specs {
		out = append(out, agentroles.ToolSummary{Name: s.Name, Description: s.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
