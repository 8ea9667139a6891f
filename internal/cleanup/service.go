// Package cleanup enforces retention policy on terminal tasks and their
// on-disk artifacts, grounded on codeready-toolchain-tarsy/pkg/cleanup's
// periodic soft/hard-delete sweep.
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/benchforge/workbench/internal/store"
)

// DefaultInterval is how often the sweep runs when Config.Interval is
// left at its zero value.
const DefaultInterval = 1 * time.Hour

// DefaultTaskRetention is how long a terminal task (succeeded, failed,
// or canceled) is kept before it and its artifacts are purged, when
// Config.TaskRetention is left at its zero value.
const DefaultTaskRetention = 30 * 24 * time.Hour

// Config controls the retention sweep's cadence and thresholds.
type Config struct {
	// TaskRetention is how long after a task's last update it remains
	// eligible for deletion once it reaches a terminal status.
	TaskRetention time.Duration
	// Interval is the sweep's tick period.
	Interval time.Duration
}

// Service periodically deletes terminal tasks past their retention
// window, along with the artifact directory each one wrote to.
// Deletion cascades to a task's steps, approvals, and event log rows at
// the database layer (foreign keys are declared ON DELETE CASCADE), so
// this package only needs to reach for the filesystem itself.
type Service struct {
	store        *store.Store
	artifactsDir string
	config       Config
	logger       *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService builds a Service. cfg's zero fields fall back to
// DefaultTaskRetention/DefaultInterval.
func NewService(st *store.Store, artifactsDir string, cfg Config) *Service {
	if cfg.TaskRetention <= 0 {
		cfg.TaskRetention = DefaultTaskRetention
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Service{
		store:        st,
		artifactsDir: artifactsDir,
		config:       cfg,
		logger:       slog.Default().With("component", "cleanup"),
	}
}

// Start launches the background sweep loop, running one sweep
// immediately and then on every tick of cfg.Interval.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx)
	s.logger.Info("cleanup service started",
		"task_retention", s.config.TaskRetention, "interval", s.config.Interval)
}

// Stop signals the sweep loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweepOnce(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce deletes every terminal task older than the retention window
// and its artifact directory. A single task's failure to delete is
// logged and skipped rather than aborting the whole sweep.
func (s *Service) sweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.config.TaskRetention)
	tasks, err := s.store.ListTerminalTasksOlderThan(ctx, cutoff)
	if err != nil {
		s.logger.Error("cleanup: list terminal tasks failed", "error", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	deleted := 0
	for _, task := range tasks {
		if err := s.purgeTask(ctx, task.ID); err != nil {
			s.logger.Error("cleanup: purge task failed", "task_id", task.ID, "error", err)
			continue
		}
		deleted++
	}
	s.logger.Info("cleanup: purged terminal tasks", "count", deleted, "considered", len(tasks))
}

func (s *Service) purgeTask(ctx context.Context, taskID string) error {
	if s.artifactsDir != "" {
		dir := filepath.Join(s.artifactsDir, taskID)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("cleanup: remove artifacts dir: %w", err)
		}
	}
	if err := s.store.DeleteTask(ctx, taskID); err != nil {
		return fmt.Errorf("cleanup: delete task row: %w", err)
	}
	return nil
}
