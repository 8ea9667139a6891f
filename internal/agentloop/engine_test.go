package agentloop

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/policy"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
	"github.com/stretchr/testify/require"
)

// scriptedProvider returns one scripted llm.Response per call, in
// order, repeating the last once exhausted.
type scriptedProvider struct {
	responses []llm.Response
	calls     int
}

func (p *scriptedProvider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	resp := p.responses[i]
	return &resp, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newRegistry(t *testing.T, risky bool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	err := reg.Register(tools.Spec{
		Name:        "tool.noop",
		Description: "always succeeds",
		Risky:       risky,
		Handler: func(ctx *tools.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	})
	require.NoError(t, err)
	return reg
}

func newTestEngine(t *testing.T, s *store.Store, reg *tools.Registry, provider llm.ChatProvider) (*RunEngine, string) {
	t.Helper()
	ctx := context.Background()
	ws, err := s.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := s.CreateSkill(ctx, &models.Skill{Name: "sk", SystemPrompt: "You are helpful."})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendAgentLoop)
	require.NoError(t, err)

	e := &RunEngine{
		Store:        s,
		Tools:        reg,
		Policy:       policy.NewEngine(s),
		Provider:     provider,
		ModelFast:    "fast-model",
		ModelPro:     "pro-model",
		ArtifactsDir: t.TempDir(),
	}
	return e, task.ID
}

func TestRunTaskSucceedsWithoutToolCalls(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	provider := &scriptedProvider{responses: []llm.Response{{Content: "all done"}}}
	e, taskID := newTestEngine(t, s, newRegistry(t, false), provider)

	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)
	require.NotEmpty(t, task.OutputPath)
	require.Equal(t, 1, provider.calls)
}

func TestRunTaskRunsToolThenFinishes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call1", Name: "tool.noop", Arguments: "{}"}}},
		{Content: "finished after tool call"},
	}}
	e, taskID := newTestEngine(t, s, newRegistry(t, false), provider)

	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)
	require.Equal(t, 2, provider.calls)

	history, err := loadChatHistory(ctx, s, taskID)
	require.NoError(t, err)
	var sawToolResult bool
	for _, m := range history {
		if m.Role == llm.RoleTool && m.ToolCallID == "call1" {
			sawToolResult = true
		}
	}
	require.True(t, sawToolResult)
}

func TestRunTaskPausesForApprovalThenResumes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call1", Name: "tool.noop", Arguments: "{}"}}},
		{Content: "finished after approval"},
	}}
	e, taskID := newTestEngine(t, s, newRegistry(t, true), provider)

	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskWaitingApproval, task.Status)
	require.Equal(t, "call1", task.BackendInterruptID)

	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, models.StepWaitingApproval, steps[0].Status)
	require.Equal(t, "tool.noop", steps[0].Tool)

	require.NoError(t, e.ApproveStep(ctx, taskID, steps[0].ID, true, "looks fine"))

	task, err = s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)
	require.Empty(t, task.BackendInterruptID)
}

func TestRunTaskFailsTaskOnRejectedApproval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "call1", Name: "tool.noop", Arguments: "{}"}}},
	}}
	e, taskID := newTestEngine(t, s, newRegistry(t, true), provider)

	require.NoError(t, e.RunTask(ctx, taskID))
	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, steps, 1)

	require.Error(t, e.ApproveStep(ctx, taskID, steps[0].ID, false, "too risky"))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskFailed, task.Status)
	require.Contains(t, task.Error, "rejected by user")
}

func TestRunTaskFailsAfterExceedingIterations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	provider := &scriptedProvider{responses: []llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "loop", Name: "tool.noop", Arguments: "{}"}}},
	}}
	e, taskID := newTestEngine(t, s, newRegistry(t, false), provider)

	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskFailed, task.Status)
	require.Contains(t, task.Error, "exceeded")
}

func TestContinueAppendsMessageAndReruns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	provider := &scriptedProvider{responses: []llm.Response{
		{Content: "first answer"},
		{Content: "second answer"},
	}}
	e, taskID := newTestEngine(t, s, newRegistry(t, false), provider)

	require.NoError(t, e.RunTask(ctx, taskID))
	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)

	require.NoError(t, e.Continue(ctx, taskID, "one more thing"))

	task, err = s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)
	require.Equal(t, 2, provider.calls)

	history, err := loadChatHistory(ctx, s, taskID)
	require.NoError(t, err)
	var sawContinuation bool
	for _, m := range history {
		if m.Role == llm.RoleUser && m.Content == "one more thing" {
			sawContinuation = true
		}
	}
	require.True(t, sawContinuation)
}

func TestRunTaskOnCanceledTaskIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	provider := &scriptedProvider{responses: []llm.Response{{Content: "should not run"}}}
	e, taskID := newTestEngine(t, s, newRegistry(t, false), provider)

	require.NoError(t, e.Cancel(ctx, taskID, "stop"))
	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskCanceled, task.Status)
	require.Equal(t, 0, provider.calls)
}
