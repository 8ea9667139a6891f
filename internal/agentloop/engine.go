// Package agentloop implements the agent-loop run backend: a streaming,
// native tool-calling ReAct loop driven directly by internal/llm, as an
// alternative to internal/orchestrator's plan-then-execute state machine
// (spec.md §4.6 names both as the two run backends a task may select).
//
// The ported implementation this is grounded on (the "uak" backend in
// original_source/services/orchestrator/app/runner/uak_engine.py)
// delegates its actual tool-calling loop to an external agent-kernel
// framework that has no Go equivalent in this codebase's dependency
// set. What's ported here is the *behavioral contract* that framework
// gave the rest of the system: chat history reconstructed from the
// event log rather than kept in memory (_load_chat_history), tool
// calls requiring approval suspended as a synthesized step
// (_insert_pending_approval_step) with the task's interrupt/resume
// fields persisted so a process restart can pick the run back up, and
// a run report tagged with backend/run metadata (_write_uak_report).
// The loop itself is original, built on the same internal/llm,
// internal/tools, and internal/policy packages internal/orchestrator
// uses.
package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/masking"
	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/policy"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
	"github.com/google/uuid"
)

// MaxIterations bounds how many LLM round-trips a single run may take
// before the loop is treated as non-convergent, mirroring the
// MaxCriticIterations-style hard stop internal/orchestrator applies to
// its own loop.
const MaxIterations = 20

// RunEngine drives a task's conversation to a final assistant answer
// (or a suspension for approval) via repeated tool-calling LLM calls.
type RunEngine struct {
	Store        *store.Store
	Tools        *tools.Registry
	Policy       *policy.Engine
	Provider     llm.ChatProvider
	ModelFast    string
	ModelPro     string
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

func (e *RunEngine) model(mode models.Mode) string {
	if mode == models.ModeFast {
		return e.ModelFast
	}
	return e.ModelPro
}

// RunTask drives taskID's conversation forward until it produces a
// final answer, pauses for approval, or exhausts MaxIterations. It is
// idempotent and resumable: every call reconstructs the conversation
// from the durable event log rather than from any in-memory state, so
// calling it again after a process restart picks up exactly where the
// last one left off.
func (e *RunEngine) RunTask(ctx context.Context, taskID string) error {
	task, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("agentloop: load task: %w", err)
	}
	if task.Status == models.TaskCanceled || task.Status.IsTerminal() {
		return nil
	}

	ws, err := e.Store.GetWorkspace(ctx, task.WorkspaceID)
	if err != nil {
		return fmt.Errorf("agentloop: load workspace: %w", err)
	}
	sk, err := e.Store.GetSkill(ctx, task.SkillID)
	if err != nil {
		return fmt.Errorf("agentloop: load skill: %w", err)
	}

	runID := task.BackendRunID
	if runID == "" {
		runID = uuid.NewString()
	}
	running := models.TaskRunning
	if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &running, BackendRunID: &runID}); err != nil {
		return fmt.Errorf("agentloop: mark running: %w", err)
	}

	vars := map[string]string{
		"workspace_root": ws.FSPath,
		"artifacts_dir":  e.ArtifactsDir,
		"task_id":        taskID,
	}
	systemPrompt := renderPromptTemplate(sk.SystemPrompt, vars)
	system := llm.Message{Role: llm.RoleSystem, Content: systemPrompt}

	toolDefs := buildToolDefs(e.Tools.List(sk.AllowedTools))
	model := e.model(task.Mode)

	for iter := 0; iter < MaxIterations; iter++ {
		if e.canceled(ctx, taskID) {
			return nil
		}

		history, err := loadChatHistory(ctx, e.Store, taskID)
		if err != nil {
			return e.failTask(ctx, taskID, err)
		}

		resp, err := e.Provider.Chat(ctx, llm.Request{
			Model:       model,
			Messages:    append([]llm.Message{system}, history...),
			Tools:       toolDefs,
			Temperature: 0.2,
		})
		if err != nil {
			return e.failTask(ctx, taskID, fmt.Errorf("agentloop: chat call failed: %w", err))
		}

		assistantMsg := llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls}
		if err := appendChatMessage(ctx, e.Store, taskID, assistantMsg); err != nil {
			return e.failTask(ctx, taskID, err)
		}

		if len(resp.ToolCalls) == 0 {
			return e.finish(ctx, taskID, runID, task.Goal, ws.FSPath)
		}

		for _, tc := range resp.ToolCalls {
			suspended, err := e.dispatchToolCall(ctx, taskID, ws, tc)
			if err != nil {
				return e.failTask(ctx, taskID, err)
			}
			if suspended {
				return nil
			}
		}
	}

	return e.failTask(ctx, taskID, fmt.Errorf("agentloop: exceeded %d iterations without a final answer", MaxIterations))
}

// dispatchToolCall evaluates policy for one requested tool call and
// either runs it (appending its result as a tool chat message), denies
// it outright, or suspends the run for approval. It reports suspended
// = true when the caller must stop driving the loop and wait.
func (e *RunEngine) dispatchToolCall(ctx context.Context, taskID string, ws *models.Workspace, tc llm.ToolCall) (suspended bool, err error) {
	spec, known := e.Tools.Get(tc.Name)
	risky := known && spec.Risky

	decision, err := e.Policy.Evaluate(ctx, ws.ID, tc.Name, taskID, risky)
	if err != nil {
		return false, fmt.Errorf("agentloop: policy evaluate: %w", err)
	}

	switch decision.Mode {
	case policy.ModeDeny:
		return false, fmt.Errorf("agentloop: %s", decision.Reason)

	case policy.ModeRequireApproval:
		step, err := insertPendingApprovalStep(ctx, e.Store, taskID, tc)
		if err != nil {
			return false, err
		}
		if _, err := e.Store.CreateApproval(ctx, taskID, step.ID); err != nil {
			return false, fmt.Errorf("agentloop: create approval: %w", err)
		}
		waiting := models.TaskWaitingApproval
		interruptID := tc.ID
		if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &waiting, BackendInterruptID: &interruptID}); err != nil {
			return false, fmt.Errorf("agentloop: mark waiting_approval: %w", err)
		}
		return true, nil

	default: // ModeAuto
		result := e.runTool(ctx, taskID, ws, tc)
		resultJSON, _ := json.Marshal(result)
		toolMsg := llm.Message{Role: llm.RoleTool, Content: string(resultJSON), ToolCallID: tc.ID, Name: tc.Name}
		if err := appendChatMessage(ctx, e.Store, taskID, toolMsg); err != nil {
			return false, err
		}
		return false, nil
	}
}

// runTool executes a tool call, turning a handler error into a
// {"error": "..."} result so the model sees the failure as a normal
// tool response instead of the run aborting on every tool mistake.
func (e *RunEngine) runTool(ctx context.Context, taskID string, ws *models.Workspace, tc llm.ToolCall) map[string]any {
	args := map[string]any{}
	if tc.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			return map[string]any{"error": fmt.Sprintf("invalid tool arguments: %v", err)}
		}
	}
	toolCtx := &tools.Context{Context: ctx, WorkspaceRoot: ws.FSPath, TaskID: taskID}
	result, err := e.Tools.Run(toolCtx, tc.Name, args)
	if err != nil {
		e.log().Warn("agentloop tool call failed", "tool", tc.Name, "error", err)
		return map[string]any{"error": err.Error()}
	}
	return e.Masking.MaskMap(result)
}

// finish collects artifacts, writes the run report, and marks the task
// succeeded.
func (e *RunEngine) finish(ctx context.Context, taskID, runID, goal, wsRoot string) error {
	history, err := loadChatHistory(ctx, e.Store, taskID)
	if err != nil {
		return e.failTask(ctx, taskID, err)
	}
	artifacts, err := collectArtifacts(e.ArtifactsDir, taskID)
	if err != nil {
		return e.failTask(ctx, taskID, err)
	}
	mdPath, _, err := writeRunReport(wsRoot, taskID, runID, goal, history, artifacts)
	if err != nil {
		return e.failTask(ctx, taskID, err)
	}

	succeeded := models.TaskSucceeded
	clearErr := ""
	if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &succeeded, OutputPath: &mdPath, Error: &clearErr}); err != nil {
		return fmt.Errorf("agentloop: mark succeeded: %w", err)
	}
	e.Policy.ClearTaskGrants(taskID)
	return nil
}

// Continue appends a new user message to an idle task's transcript and
// drives the loop again, grounded on the ported implementation's
// continue_task_uak_background: a finished conversation can be
// extended by the user without starting a new task.
func (e *RunEngine) Continue(ctx context.Context, taskID, message string) error {
	task, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("agentloop: load task: %w", err)
	}
	if task.Status == models.TaskRunning || task.Status == models.TaskPlanning {
		return fmt.Errorf("agentloop: task %s is already running", taskID)
	}
	if task.Status == models.TaskCanceled {
		return fmt.Errorf("agentloop: task %s is canceled", taskID)
	}

	if err := appendChatMessage(ctx, e.Store, taskID, llm.Message{Role: llm.RoleUser, Content: message}); err != nil {
		return err
	}
	running := models.TaskRunning
	clearErr := ""
	if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &running, Error: &clearErr}); err != nil {
		return fmt.Errorf("agentloop: mark running: %w", err)
	}
	return e.RunTask(ctx, taskID)
}

// ApproveStep decides a pending approval. On approval it runs the held
// tool call, appends its result, and resumes the loop; on rejection it
// fails the task outright, matching internal/orchestrator's
// ApproveStep contract so internal/queue can dispatch either backend's
// approvals uniformly.
func (e *RunEngine) ApproveStep(ctx context.Context, taskID, stepID string, approved bool, reason string) error {
	pending, err := e.Store.GetPendingApprovalForStep(ctx, stepID)
	if err != nil {
		return fmt.Errorf("agentloop: load pending approval: %w", err)
	}
	if _, err := e.Store.DecideApproval(ctx, pending.ID, approved, reason); err != nil {
		return fmt.Errorf("agentloop: decide approval: %w", err)
	}

	step, err := e.Store.GetStep(ctx, stepID)
	if err != nil {
		return fmt.Errorf("agentloop: load step: %w", err)
	}
	toolName, _ := step.Args["tool"].(string)
	toolCallID, _ := step.Args["tool_call_id"].(string)
	arguments, _ := step.Args["arguments"].(string)
	tc := llm.ToolCall{ID: toolCallID, Name: toolName, Arguments: arguments}

	noErr := ""
	if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{BackendInterruptID: &noErr, BackendResumeToken: &noErr}); err != nil {
		return fmt.Errorf("agentloop: clear interrupt: %w", err)
	}

	if !approved {
		failMsg := fmt.Sprintf("rejected by user: %s", reason)
		failed := models.StepFailed
		if err := e.Store.UpdateStep(ctx, stepID, store.StepFields{Status: &failed, Error: &failMsg}); err != nil {
			return fmt.Errorf("agentloop: mark step failed: %w", err)
		}
		return e.failTask(ctx, taskID, fmt.Errorf("agentloop: %s", failMsg))
	}

	task, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("agentloop: load task: %w", err)
	}
	ws, err := e.Store.GetWorkspace(ctx, task.WorkspaceID)
	if err != nil {
		return fmt.Errorf("agentloop: load workspace: %w", err)
	}

	scope := tools.ScopeForTool(toolName)
	e.Policy.Grant(taskID, scope)

	result := e.runTool(ctx, taskID, ws, tc)
	resultJSON, _ := json.Marshal(result)
	succeeded := models.StepSucceeded
	if err := e.Store.UpdateStep(ctx, stepID, store.StepFields{Status: &succeeded, Result: result}); err != nil {
		return fmt.Errorf("agentloop: mark step succeeded: %w", err)
	}
	if err := appendChatMessage(ctx, e.Store, taskID, llm.Message{Role: llm.RoleTool, Content: string(resultJSON), ToolCallID: tc.ID, Name: tc.Name}); err != nil {
		return err
	}

	running := models.TaskRunning
	if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &running}); err != nil {
		return fmt.Errorf("agentloop: mark running: %w", err)
	}
	return e.RunTask(ctx, taskID)
}

// Cancel marks a task canceled, the same absorbing terminal state
// internal/orchestrator.RunEngine.Cancel sets.
func (e *RunEngine) Cancel(ctx context.Context, taskID, reason string) error {
	if reason == "" {
		reason = "canceled by user"
	}
	canceled := models.TaskCanceled
	if err := e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &canceled, Error: &reason}); err != nil {
		return fmt.Errorf("agentloop: cancel task: %w", err)
	}
	e.Policy.ClearTaskGrants(taskID)
	return nil
}

func (e *RunEngine) canceled(ctx context.Context, taskID string) bool {
	task, err := e.Store.GetTask(ctx, taskID)
	if err != nil {
		return false
	}
	return task.Status == models.TaskCanceled
}

// failTask records err as the task's terminal failure, unless the task
// was canceled out from under the run, in which case cancellation wins
// silently.
func (e *RunEngine) failTask(ctx context.Context, taskID string, err error) error {
	if e.canceled(ctx, taskID) {
		return nil
	}
	msg := err.Error()
	failed := models.TaskFailed
	_ = e.Store.UpdateTask(ctx, taskID, store.TaskFields{Status: &failed, Error: &msg})
	e.Policy.ClearTaskGrants(taskID)
	return err
}

// buildToolDefs converts registered tool specs into the function-calling
// definitions a ChatProvider sends to the model.
func buildToolDefs(specs []*tools.Spec) []llm.ToolDef {
	defs := make([]llm.ToolDef, 0, len(specs))
	for _, s := range specs {
		schema := s.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, llm.ToolDef{Name: s.Name, Description: s.Description, Parameters: schema})
	}
	return defs
}
