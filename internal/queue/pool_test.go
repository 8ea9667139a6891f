package queue

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu    sync.Mutex
	runs  []string
	err   error
	delay time.Duration
}

func (f *fakeEngine) RunTask(ctx context.Context, taskID string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.runs = append(f.runs, taskID)
	f.mu.Unlock()
	return f.err
}

func (f *fakeEngine) ranTasks() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.runs))
	copy(out, f.runs)
	return out
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedQueuedTask(t *testing.T, s *store.Store, backend models.Backend) *models.Task {
	t.Helper()
	ctx := context.Background()
	ws, err := s.CreateWorkspace(ctx, "ws", t.TempDir())
	require.NoError(t, err)
	sk, err := s.CreateSkill(ctx, &models.Skill{Name: "sk"})
	require.NoError(t, err)
	task, err := s.CreateTask(ctx, ws.ID, sk.ID, "do the thing", models.ModeFast, backend)
	require.NoError(t, err)
	return task
}

func TestRunOneDispatchesToClassicBackend(t *testing.T) {
	s := newTestStore(t)
	task := seedQueuedTask(t, s, models.BackendClassic)
	classic := &fakeEngine{}
	agentLoop := &fakeEngine{}
	p := NewPool(s, classic, agentLoop, Config{WorkerCount: 1}, nil)

	claimed := p.runOne(context.Background())

	require.Equal(t, task.ID, claimed)
	require.Equal(t, []string{task.ID}, classic.ranTasks())
	require.Empty(t, agentLoop.ranTasks())
}

func TestRunOneDispatchesToAgentLoopBackend(t *testing.T) {
	s := newTestStore(t)
	task := seedQueuedTask(t, s, models.BackendAgentLoop)
	classic := &fakeEngine{}
	agentLoop := &fakeEngine{}
	p := NewPool(s, classic, agentLoop, Config{WorkerCount: 1}, nil)

	claimed := p.runOne(context.Background())

	require.Equal(t, task.ID, claimed)
	require.Equal(t, []string{task.ID}, agentLoop.ranTasks())
	require.Empty(t, classic.ranTasks())
}

func TestRunOneReturnsEmptyWhenQueueIsDry(t *testing.T) {
	s := newTestStore(t)
	p := NewPool(s, &fakeEngine{}, &fakeEngine{}, Config{WorkerCount: 1}, nil)

	claimed := p.runOne(context.Background())

	require.Empty(t, claimed)
}

func TestRunOneRespectsMaxConcurrent(t *testing.T) {
	s := newTestStore(t)
	seedQueuedTask(t, s, models.BackendClassic)
	second := seedQueuedTask(t, s, models.BackendClassic)

	ctx := context.Background()
	_, err := s.ClaimQueuedTask(ctx)
	require.NoError(t, err)

	classic := &fakeEngine{}
	p := NewPool(s, classic, &fakeEngine{}, Config{WorkerCount: 1, MaxConcurrent: 1}, nil)

	claimed := p.runOne(ctx)

	require.Empty(t, claimed, "pool should refuse to claim more work past MaxConcurrent")
	require.NotEqual(t, second.ID, claimed)
}

func TestStartTaskIsNoopForNonQueuedTask(t *testing.T) {
	s := newTestStore(t)
	task := seedQueuedTask(t, s, models.BackendClassic)
	ctx := context.Background()
	require.NoError(t, s.UpdateTask(ctx, task.ID, store.TaskFields{Status: statusPtr(models.TaskSucceeded)}))

	classic := &fakeEngine{}
	p := NewPool(s, classic, &fakeEngine{}, Config{WorkerCount: 1}, nil)

	require.NoError(t, p.StartTask(ctx, task.ID))
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, classic.ranTasks())
}

func TestPoolStartAndStopDrainsQueue(t *testing.T) {
	s := newTestStore(t)
	task := seedQueuedTask(t, s, models.BackendClassic)
	classic := &fakeEngine{}
	p := NewPool(s, classic, &fakeEngine{}, Config{WorkerCount: 2, PollInterval: 10 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	require.Eventually(t, func() bool {
		return len(classic.ranTasks()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	p.Stop()

	require.Equal(t, []string{task.ID}, classic.ranTasks())
}

func TestDispatchFailsTaskWhenBackendUnregistered(t *testing.T) {
	s := newTestStore(t)
	task := seedQueuedTask(t, s, models.BackendAgentLoop)
	p := NewPool(s, &fakeEngine{}, nil, Config{WorkerCount: 1}, nil)

	claimed := p.runOne(context.Background())
	require.Equal(t, task.ID, claimed)

	updated, err := s.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	require.Equal(t, models.TaskFailed, updated.Status)
	require.Contains(t, updated.Error, "no run engine registered")
}

func TestCancelTaskCancelsRunningContext(t *testing.T) {
	s := newTestStore(t)
	classic := &fakeEngine{delay: 200 * time.Millisecond}
	p := NewPool(s, classic, &fakeEngine{}, Config{WorkerCount: 1}, nil)
	task := seedQueuedTask(t, s, models.BackendClassic)

	started := time.Now()
	done := make(chan struct{})
	go func() {
		p.runOne(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return p.CancelTask(task.ID)
	}, time.Second, time.Millisecond, "cancel func for claimed task never registered")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch did not return after cancel")
	}
	require.Less(t, time.Since(started), 200*time.Millisecond, "cancel should interrupt the run before its full delay elapses")
}

func TestHealthReportsWorkerCount(t *testing.T) {
	s := newTestStore(t)
	p := NewPool(s, &fakeEngine{}, &fakeEngine{}, Config{WorkerCount: 3}, nil)
	p.workers = []*Worker{newWorker("w0", p), newWorker("w1", p), newWorker("w2", p)}

	h := p.Health(context.Background())

	require.Equal(t, 3, h.TotalWorkers)
	require.True(t, h.IsHealthy)
}
