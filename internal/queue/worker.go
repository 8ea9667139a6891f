package queue

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Worker polls the pool's store on a fixed, jittered interval and runs
// whatever task it claims to completion before polling again.
type Worker struct {
	id   string
	pool *Pool

	stopCh   chan struct{}
	stopOnce sync.Once

	mu             sync.RWMutex
	status         WorkerStatus
	currentTaskID  string
	tasksProcessed int
	lastActivity   time.Time
}

func newWorker(id string, pool *Pool) *Worker {
	return &Worker{
		id:           id,
		pool:         pool,
		stopCh:       make(chan struct{}),
		status:       WorkerStatusIdle,
		lastActivity: time.Now(),
	}
}

// run is the worker's poll loop; it returns when ctx is canceled or
// stop is called.
func (w *Worker) run(ctx context.Context) {
	log := w.pool.logger.With("worker_id", w.id)
	log.Info("worker started")
	defer log.Info("worker stopped")

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
			claimed := w.pool.runOne(ctx)
			if claimed != "" {
				w.mu.Lock()
				w.tasksProcessed++
				w.mu.Unlock()
			}
			w.setStatus(WorkerStatusIdle, "")

			w.sleep(w.pollInterval())
		}
	}
}

func (w *Worker) stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}

// pollInterval applies symmetric jitter around the configured base
// interval so a pool of several workers doesn't thunder the store in
// lockstep.
func (w *Worker) pollInterval() time.Duration {
	base := w.pool.config.PollInterval
	jitter := w.pool.config.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	d := base - jitter + offset
	if d < 0 {
		d = 0
	}
	return d
}

func (w *Worker) setStatus(status WorkerStatus, taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
	w.currentTaskID = taskID
	w.lastActivity = time.Now()
}

func (w *Worker) health() WorkerHealth {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WorkerHealth{
		ID:             w.id,
		Status:         w.status,
		CurrentTaskID:  w.currentTaskID,
		TasksProcessed: w.tasksProcessed,
		LastActivity:   w.lastActivity,
	}
}
