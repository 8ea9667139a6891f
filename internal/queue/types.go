// Package queue drives queued tasks to completion: a small pool of
// workers polls the store for the oldest queued task, claims it
// atomically, and hands it to whichever run backend the task selects.
// Grounded on pkg/queue/pool.go and worker.go, adapted from an
// ent/Postgres session queue (FOR UPDATE SKIP LOCKED, pod-scoped
// sessions, Slack notifications, heartbeats) down to the single-writer
// SQLite model internal/store already uses: store.ClaimQueuedTask does
// the atomic claim, and there is no cross-pod coordination to model
// since workbenchd runs as a single process.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrNoTaskAvailable is returned by a poll attempt that found nothing
// queued; the worker treats it as a signal to sleep, not an error.
var ErrNoTaskAvailable = errors.New("queue: no task available")

// ErrAtCapacity is returned when the pool already has MaxConcurrent
// tasks running.
var ErrAtCapacity = errors.New("queue: at capacity")

// RunEngine is the shape both internal/orchestrator.RunEngine and
// internal/agentloop.RunEngine satisfy; the pool dispatches to one or
// the other based on the claimed task's Backend field.
type RunEngine interface {
	RunTask(ctx context.Context, taskID string) error
}

// WorkerStatus represents the current state of a worker.
type WorkerStatus string

// Worker status values.
const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusWorking WorkerStatus = "working"
)

// WorkerHealth is a point-in-time snapshot of one worker's state.
type WorkerHealth struct {
	ID             string       `json:"id"`
	Status         WorkerStatus `json:"status"`
	CurrentTaskID  string       `json:"current_task_id,omitempty"`
	TasksProcessed int          `json:"tasks_processed"`
	LastActivity   time.Time    `json:"last_activity"`
}

// PoolHealth summarizes the whole pool for the /health endpoint.
type PoolHealth struct {
	IsHealthy     bool           `json:"is_healthy"`
	ActiveWorkers int            `json:"active_workers"`
	TotalWorkers  int            `json:"total_workers"`
	ActiveTasks   int            `json:"active_tasks"`
	MaxConcurrent int            `json:"max_concurrent"`
	WorkerStats   []WorkerHealth `json:"worker_stats"`
}
