package orchestrator

import (
	"context"
	"testing"

	"github.com/benchforge/workbench/internal/agentroles"
	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/policy"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
	"github.com/stretchr/testify/require"
)

// queuedProvider returns its canned responses in order, repeating the
// last one once exhausted.
type queuedProvider struct {
	responses []string
	calls     int
}

func (q *queuedProvider) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	i := q.calls
	if i >= len(q.responses) {
		i = len(q.responses) - 1
	}
	q.calls++
	return &llm.Response{Content: q.responses[i]}, nil
}

func newNoopRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	err := reg.Register(tools.Spec{
		Name:        "tool.noop",
		Description: "always succeeds",
		Handler: func(ctx *tools.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"ok": true}, nil
		},
	})
	require.NoError(t, err)
	return reg
}

func newEngine(t *testing.T, s *store.Store, plannerJSON, executorJSON string, criticJSON ...string) (*RunEngine, string) {
	t.Helper()
	ctx := context.Background()
	ws, err := s.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := s.CreateSkill(ctx, &models.Skill{Name: "sk"})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)

	e := &RunEngine{
		Store:        s,
		Tools:        newNoopRegistry(t),
		Policy:       policy.NewEngine(s),
		Planner:      &agentroles.Planner{Provider: &queuedProvider{responses: []string{plannerJSON}}},
		Executor:     &agentroles.Executor{Provider: &queuedProvider{responses: []string{executorJSON}}},
		Critic:       &agentroles.Critic{Provider: &queuedProvider{responses: criticJSON}},
		ArtifactsDir: t.TempDir(),
	}
	return e, task.ID
}

func TestRunTaskSucceedsOnFirstPass(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e, taskID := newEngine(t, s,
		`{"summary":"s","steps":[{"name":"step1","tool":"tool.noop","args":{}}]}`,
		`{"patch": null}`,
		`{"ok":true,"issues":[],"fix_steps":[]}`,
	)

	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)
	require.NotEmpty(t, task.OutputPath)
}

func TestRunTaskPausesForApprovalThenResumes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e, taskID := newEngine(t, s,
		`{"summary":"s","steps":[{"name":"risky","tool":"tool.noop","args":{},"requires_approval":true}]}`,
		`{"patch": null}`,
		`{"ok":true,"issues":[],"fix_steps":[]}`,
	)

	require.NoError(t, e.RunTask(ctx, taskID))
	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskWaitingApproval, task.Status)

	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	require.Equal(t, models.StepWaitingApproval, steps[0].Status)

	require.NoError(t, e.ApproveStep(ctx, taskID, steps[0].ID, true, "looks fine"))

	task, err = s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)
}

func TestRunTaskFailsTaskOnRejectedApproval(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e, taskID := newEngine(t, s,
		`{"summary":"s","steps":[{"name":"risky","tool":"tool.noop","args":{},"requires_approval":true}]}`,
		`{"patch": null}`,
		`{"ok":true,"issues":[],"fix_steps":[]}`,
	)

	require.NoError(t, e.RunTask(ctx, taskID))
	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)

	require.Error(t, e.ApproveStep(ctx, taskID, steps[0].ID, false, "too risky"))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskFailed, task.Status)
}

func TestRunTaskConvergesAfterCriticFixStep(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e, taskID := newEngine(t, s,
		`{"summary":"s","steps":[{"name":"step1","tool":"tool.noop","args":{}}]}`,
		`{"patch": null}`,
		`{"ok":false,"issues":["missing output"],"fix_steps":[{"name":"fix","tool":"tool.noop","args":{}}]}`,
		`{"ok":true,"issues":[],"fix_steps":[]}`,
	)

	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskSucceeded, task.Status)

	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
}

func TestRunTaskFailsAfterExceedingCriticIterations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e, taskID := newEngine(t, s,
		`{"summary":"s","steps":[{"name":"step1","tool":"tool.noop","args":{}}]}`,
		`{"patch": null}`,
		`{"ok":false,"issues":["still missing"],"fix_steps":[{"name":"fix","tool":"tool.noop","args":{}}]}`,
	)

	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskFailed, task.Status)
	require.Contains(t, task.Error, "did not converge")
}

func TestRunTaskOnCanceledTaskIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	e, taskID := newEngine(t, s,
		`{"summary":"s","steps":[{"name":"step1","tool":"tool.noop","args":{}}]}`,
		`{"patch": null}`,
		`{"ok":true,"issues":[],"fix_steps":[]}`,
	)

	require.NoError(t, e.Cancel(ctx, taskID, "stop"))
	require.NoError(t, e.RunTask(ctx, taskID))

	task, err := s.GetTask(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, models.TaskCanceled, task.Status)
	require.Nil(t, task.Plan)
}
