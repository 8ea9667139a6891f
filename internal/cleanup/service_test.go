package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedTerminalTask(t *testing.T, s *store.Store, status models.TaskStatus, updatedAt time.Time) *models.Task {
	t.Helper()
	ctx := context.Background()
	ws, err := s.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := s.CreateSkill(ctx, &models.Skill{Name: "sk"})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws.ID, sk.ID, "do the thing", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)

	require.NoError(t, s.UpdateTask(ctx, task.ID, store.TaskFields{Status: &status}))

	_, err = s.DB().ExecContext(ctx, `UPDATE tasks SET updated_at=? WHERE id=?`,
		updatedAt.UTC().Format(time.RFC3339Nano), task.ID)
	require.NoError(t, err)

	task, err = s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	return task
}

func TestSweepOncePurgesOldTerminalTasks(t *testing.T) {
	s := newTestStore(t)
	artifactsDir := t.TempDir()

	old := seedTerminalTask(t, s, models.TaskSucceeded, time.Now().Add(-48*time.Hour))
	require.NoError(t, os.MkdirAll(filepath.Join(artifactsDir, old.ID), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(artifactsDir, old.ID, "report.md"), []byte("x"), 0o644))

	recent := seedTerminalTask(t, s, models.TaskFailed, time.Now().Add(-time.Minute))

	svc := NewService(s, artifactsDir, Config{TaskRetention: time.Hour})
	svc.sweepOnce(context.Background())

	_, err := s.GetTask(context.Background(), old.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = os.Stat(filepath.Join(artifactsDir, old.ID))
	require.True(t, os.IsNotExist(err))

	stillThere, err := s.GetTask(context.Background(), recent.ID)
	require.NoError(t, err)
	require.Equal(t, recent.ID, stillThere.ID)
}

func TestSweepOnceIgnoresNonTerminalTasks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ws, err := s.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := s.CreateSkill(ctx, &models.Skill{Name: "sk"})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws.ID, sk.ID, "goal", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `UPDATE tasks SET updated_at=? WHERE id=?`,
		time.Now().Add(-72*time.Hour).UTC().Format(time.RFC3339Nano), task.ID)
	require.NoError(t, err)

	svc := NewService(s, t.TempDir(), Config{TaskRetention: time.Hour})
	svc.sweepOnce(ctx)

	stillThere, err := s.GetTask(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskQueued, stillThere.Status)
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc := NewService(newTestStore(t), "", Config{})
	require.Equal(t, DefaultTaskRetention, svc.config.TaskRetention)
	require.Equal(t, DefaultInterval, svc.config.Interval)
}

func TestStartStopIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	svc := NewService(s, t.TempDir(), Config{Interval: time.Millisecond, TaskRetention: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	svc.Start(ctx) // second call is a no-op, must not block or panic
	svc.Stop()
	svc.Stop() // second call is a no-op
}
