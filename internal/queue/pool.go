package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
)

// Config tunes the worker pool. Zero values fall back to sane defaults
// in NewPool.
type Config struct {
	WorkerCount        int
	PollInterval       time.Duration
	PollIntervalJitter time.Duration
	MaxConcurrent      int
}

// Pool runs a small set of workers that poll the store for queued tasks
// and dispatch them to a run backend. Unlike the teacher's pod-scoped
// WorkerPool, there is only ever one pool per process: workbenchd is a
// single binary, not a fleet of pods coordinating over shared Postgres.
type Pool struct {
	store     *store.Store
	classic   RunEngine
	agentLoop RunEngine
	config    Config
	logger    *slog.Logger
	workers   []*Worker
	wg        sync.WaitGroup

	mu            sync.RWMutex
	activeCancels map[string]context.CancelFunc
	started       bool
}

// NewPool constructs a pool ready to Start. classic drives
// models.BackendClassic tasks, agentLoop drives models.BackendAgentLoop
// tasks.
func NewPool(s *store.Store, classic, agentLoop RunEngine, cfg Config, logger *slog.Logger) *Pool {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 2
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = cfg.WorkerCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		store:         s,
		classic:       classic,
		agentLoop:     agentLoop,
		config:        cfg,
		logger:        logger,
		activeCancels: make(map[string]context.CancelFunc),
	}
}

// Start spawns the worker goroutines. Safe to call once; a second call
// is a no-op.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.logger.Info("starting worker pool", "worker_count", p.config.WorkerCount)
	for i := 0; i < p.config.WorkerCount; i++ {
		w := newWorker(fmt.Sprintf("worker-%d", i), p)
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.run(ctx)
		}()
	}
}

// Stop signals every worker to finish its current task and returns once
// they have all exited.
func (p *Pool) Stop() {
	p.logger.Info("stopping worker pool")
	for _, w := range p.workers {
		w.stop()
	}
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// StartTask implements scheduler.Dispatcher: it wakes a worker
// immediately instead of waiting for the next poll tick, by claiming
// and dispatching the task synchronously in the caller's goroutine.
// The task is already in status "queued" (internal/services or
// internal/scheduler just created it) so this is best-effort — if every
// worker is already at capacity, the regular poll loop will pick it up
// on its own schedule.
func (p *Pool) StartTask(ctx context.Context, taskID string) error {
	task, err := p.store.GetTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("queue: start task: %w", err)
	}
	if task.Status != models.TaskQueued {
		return nil
	}
	go p.runOne(context.Background())
	return nil
}

// runOne claims whichever task is at the head of the queue and runs it
// to completion, reporting the claimed task's id (if any) so the caller
// can reflect it in worker health. Used both by StartTask's eager
// wake-up and by a worker's regular poll.
func (p *Pool) runOne(ctx context.Context) string {
	running, err := p.store.CountRunningTasks(ctx)
	if err != nil {
		p.logger.Error("queue: count running tasks failed", "error", err)
		return ""
	}
	if running >= p.config.MaxConcurrent {
		return ""
	}

	task, err := p.store.ClaimQueuedTask(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			p.logger.Error("queue: claim task failed", "error", err)
		}
		return ""
	}

	p.dispatch(ctx, task)
	return task.ID
}

func (p *Pool) dispatch(ctx context.Context, task *models.Task) {
	log := p.logger.With("task_id", task.ID, "backend", task.Backend)
	log.Info("task claimed")

	runCtx, cancel := context.WithCancel(ctx)
	p.registerCancel(task.ID, cancel)
	defer func() {
		p.unregisterCancel(task.ID)
		cancel()
	}()

	engine := p.engineFor(task.Backend)
	if engine == nil {
		log.Error("queue: no run engine registered for backend")
		_ = p.store.UpdateTask(ctx, task.ID, store.TaskFields{
			Status: statusPtr(models.TaskFailed),
			Error:  strPtr(fmt.Sprintf("no run engine registered for backend %q", task.Backend)),
		})
		return
	}

	if err := engine.RunTask(runCtx, task.ID); err != nil {
		log.Error("task run failed", "error", err)
	}
}

func (p *Pool) engineFor(backend models.Backend) RunEngine {
	switch backend {
	case models.BackendAgentLoop:
		return p.agentLoop
	default:
		return p.classic
	}
}

// CancelTask cancels a task this pool is actively running, returning
// true if it found one. Tasks not currently in-flight (queued,
// terminal, or running on some other imagined pool) are untouched here;
// callers fall back to the store-level Cancel on the owning engine for
// those.
func (p *Pool) CancelTask(taskID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if cancel, ok := p.activeCancels[taskID]; ok {
		cancel()
		return true
	}
	return false
}

func (p *Pool) registerCancel(taskID string, cancel context.CancelFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activeCancels[taskID] = cancel
}

func (p *Pool) unregisterCancel(taskID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.activeCancels, taskID)
}

// Health reports a point-in-time summary for the /health endpoint.
func (p *Pool) Health(ctx context.Context) *PoolHealth {
	running, _ := p.store.CountRunningTasks(ctx)
	stats := make([]WorkerHealth, len(p.workers))
	active := 0
	for i, w := range p.workers {
		h := w.health()
		stats[i] = h
		if h.Status == WorkerStatusWorking {
			active++
		}
	}
	return &PoolHealth{
		IsHealthy:     len(p.workers) > 0,
		ActiveWorkers: active,
		TotalWorkers:  len(p.workers),
		ActiveTasks:   running,
		MaxConcurrent: p.config.MaxConcurrent,
		WorkerStats:   stats,
	}
}

func statusPtr(s models.TaskStatus) *models.TaskStatus { return &s }
func strPtr(s string) *string                          { return &s }
