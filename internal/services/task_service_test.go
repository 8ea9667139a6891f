package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	started []string
}

func (f *fakeDispatcher) StartTask(ctx context.Context, taskID string) error {
	f.started = append(f.started, taskID)
	return nil
}

type fakeRunner struct {
	approved []string
	rejected []string
	canceled []string
}

func (f *fakeRunner) ApproveStep(ctx context.Context, taskID, stepID string, approved bool, reason string) error {
	if approved {
		f.approved = append(f.approved, stepID)
	} else {
		f.rejected = append(f.rejected, stepID)
	}
	return nil
}

func (f *fakeRunner) Cancel(ctx context.Context, taskID, reason string) error {
	f.canceled = append(f.canceled, taskID)
	return nil
}

type fakeContinuableRunner struct {
	fakeRunner
	continued []string
}

func (f *fakeContinuableRunner) Continue(ctx context.Context, taskID, message string) error {
	f.continued = append(f.continued, message)
	return nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(t *testing.T, s *store.Store) (*TaskService, *fakeDispatcher, *fakeRunner, *fakeContinuableRunner, *models.Workspace, *models.Skill) {
	t.Helper()
	ctx := context.Background()
	ws, err := s.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := s.CreateSkill(ctx, &models.Skill{Name: "sk", SystemPrompt: "do stuff"})
	require.NoError(t, err)

	disp := &fakeDispatcher{}
	classic := &fakeRunner{}
	agentLoop := &fakeContinuableRunner{}
	svc := &TaskService{
		Store:      s,
		Dispatcher: disp,
		Router:     &SkillRouter{},
		Classic:    classic,
		AgentLoop:  agentLoop,
	}
	return svc, disp, classic, agentLoop, ws, sk
}

func TestCreateTaskValidatesGoal(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, _, ws, sk := newTestService(t, s)

	_, err := svc.CreateTask(context.Background(), ws.ID, sk.ID, "  ", models.ModeFast, models.BackendClassic)
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestCreateTaskDispatchesQueuedTask(t *testing.T) {
	s := newTestStore(t)
	svc, disp, _, _, ws, sk := newTestService(t, s)

	task, err := svc.CreateTask(context.Background(), ws.ID, sk.ID, "do the thing", "", "")
	require.NoError(t, err)
	require.Equal(t, models.ModeFast, task.Mode)
	require.Equal(t, models.BackendClassic, task.Backend)
	require.Equal(t, []string{task.ID}, disp.started)
}

func TestCreateTaskRejectsUnknownWorkspace(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, _, _, sk := newTestService(t, s)

	_, err := svc.CreateTask(context.Background(), "nope", sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestAutoCreateTaskPicksFirstWorkspaceWhenNoneGiven(t *testing.T) {
	s := newTestStore(t)
	svc, disp, _, _, ws, _ := newTestService(t, s)

	res, err := svc.AutoCreateTask(context.Background(), "clean up the repo files", "", "", models.ModeFast, "")
	require.NoError(t, err)
	require.Equal(t, ws.ID, res.WorkspaceID)
	require.Len(t, disp.started, 1)
}

func TestAutoCreateTaskRejectsEmptyGoal(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, _, _, _ := newTestService(t, s)

	_, err := svc.AutoCreateTask(context.Background(), "   ", "", "", models.ModeFast, "")
	require.Error(t, err)
	require.True(t, IsValidationError(err))
}

func TestGetTaskReturnsStepsAndApprovals(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, _, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)
	_, err = s.CreateStep(ctx, task.ID, 0, "step 1", "tool.noop", nil, false)
	require.NoError(t, err)

	detail, err := svc.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, task.ID, detail.Task.ID)
	require.Len(t, detail.Steps, 1)
}

func TestDeleteTaskIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, _, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteTask(ctx, task.ID))
	require.NoError(t, svc.DeleteTask(ctx, task.ID))
}

func TestApproveStepRoutesByBackend(t *testing.T) {
	s := newTestStore(t)
	svc, _, classic, agentLoop, ws, sk := newTestService(t, s)
	ctx := context.Background()

	classicTask, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)
	loopTask, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendAgentLoop)
	require.NoError(t, err)

	require.NoError(t, svc.ApproveStep(ctx, classicTask.ID, "step-a", true, "ok"))
	require.NoError(t, svc.ApproveStep(ctx, loopTask.ID, "step-b", false, "no"))

	require.Equal(t, []string{"step-a"}, classic.approved)
	require.Equal(t, []string{"step-b"}, agentLoop.rejected)
}

func TestCancelTaskRoutesByBackend(t *testing.T) {
	s := newTestStore(t)
	svc, _, classic, _, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)

	require.NoError(t, svc.CancelTask(ctx, task.ID, "enough"))
	require.Equal(t, []string{task.ID}, classic.canceled)
}

func TestContinueTaskParsesBilingualApproval(t *testing.T) {
	s := newTestStore(t)
	svc, _, classic, _, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)
	step, err := s.CreateStep(ctx, task.ID, 0, "risky step", "shell.run", nil, true)
	require.NoError(t, err)
	_, err = s.CreateApproval(ctx, task.ID, step.ID)
	require.NoError(t, err)
	waiting := models.TaskWaitingApproval
	require.NoError(t, s.UpdateTask(ctx, task.ID, store.TaskFields{Status: &waiting}))

	require.NoError(t, svc.ContinueTask(ctx, task.ID, "同意"))
	require.Equal(t, []string{step.ID}, classic.approved)
}

func TestContinueTaskRejectsOnNegatedAgree(t *testing.T) {
	s := newTestStore(t)
	svc, _, classic, _, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)
	step, err := s.CreateStep(ctx, task.ID, 0, "risky step", "shell.run", nil, true)
	require.NoError(t, err)
	_, err = s.CreateApproval(ctx, task.ID, step.ID)
	require.NoError(t, err)
	waiting := models.TaskWaitingApproval
	require.NoError(t, s.UpdateTask(ctx, task.ID, store.TaskFields{Status: &waiting}))

	require.NoError(t, svc.ContinueTask(ctx, task.ID, "不同意"))
	require.Equal(t, []string{step.ID}, classic.rejected)
}

func TestContinueTaskRejectsWhenBusy(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, _, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)

	err = svc.ContinueTask(ctx, task.ID, "hello again")
	require.Error(t, err)
}

func TestContinueTaskAppendsMessageForFinishedAgentLoopBackend(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, agentLoop, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendAgentLoop)
	require.NoError(t, err)
	succeeded := models.TaskSucceeded
	require.NoError(t, s.UpdateTask(ctx, task.ID, store.TaskFields{Status: &succeeded}))

	require.NoError(t, svc.ContinueTask(ctx, task.ID, "one more thing"))
	require.Equal(t, []string{"one more thing"}, agentLoop.continued)
}

func TestContinueTaskRejectsClassicBackendOutsideApproval(t *testing.T) {
	s := newTestStore(t)
	svc, _, _, _, ws, sk := newTestService(t, s)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)
	failed := models.TaskFailed
	require.NoError(t, s.UpdateTask(ctx, task.ID, store.TaskFields{Status: &failed}))

	err = svc.ContinueTask(ctx, task.ID, "try again")
	require.Error(t, err)
}
