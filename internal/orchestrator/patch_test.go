package orchestrator

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/benchforge/workbench/internal/agentroles"
	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTask(t *testing.T, s *store.Store, numSteps int) string {
	t.Helper()
	ctx := context.Background()
	ws, err := s.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := s.CreateSkill(ctx, &models.Skill{Name: "sk"})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)
	for i := 0; i < numSteps; i++ {
		_, err := s.CreateStep(ctx, task.ID, i, "step", "tool.noop", map[string]any{}, false)
		require.NoError(t, err)
	}
	return task.ID
}

func TestApplyPatchRemovesStepsBeforeReplacing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	taskID := seedTask(t, s, 4) // idx 0,1,2,3

	patch := &agentroles.Patch{
		RemoveSteps:         []int{1},
		ReplaceStepsFromIdx: intPtr(2),
		AddSteps: []models.PlanStep{
			{Name: "new", Tool: "tool.replacement", Args: map[string]any{}},
		},
	}
	require.NoError(t, applyPatch(ctx, s, taskID, patch))

	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	// idx 1 removed, idx 2 and 3 replaced by a single new step at idx 2.
	require.Len(t, steps, 3)
	require.Equal(t, 0, steps[0].Idx)
	require.Equal(t, 2, steps[1].Idx)
	require.Equal(t, "tool.replacement", steps[1].Tool)
}

func TestApplyPatchAppendsWhenNoReplaceIdx(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	taskID := seedTask(t, s, 2) // idx 0,1

	patch := &agentroles.Patch{
		AddSteps: []models.PlanStep{{Name: "extra", Tool: "tool.extra", Args: map[string]any{}}},
	}
	require.NoError(t, applyPatch(ctx, s, taskID, patch))

	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	require.Equal(t, 2, steps[2].Idx)
	require.Equal(t, "tool.extra", steps[2].Tool)
}

func TestApplyPatchRejectsOverCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	taskID := seedTask(t, s, MaxPlanSteps)

	patch := &agentroles.Patch{
		AddSteps: []models.PlanStep{{Name: "one-too-many", Tool: "tool.x", Args: map[string]any{}}},
	}
	err := applyPatch(ctx, s, taskID, patch)
	require.ErrorIs(t, err, ErrPlanTooLarge)

	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, steps, MaxPlanSteps)
}

func TestApplyPatchNilIsNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	taskID := seedTask(t, s, 1)
	require.NoError(t, applyPatch(ctx, s, taskID, nil))
	steps, err := s.ListSteps(ctx, taskID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
}

func intPtr(i int) *int { return &i }
