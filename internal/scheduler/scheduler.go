// Package scheduler materializes new tasks from cron-driven schedules,
// grounded on original_source/services/orchestrator/app/scheduler's
// tick_once/SchedulerThread pair.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
)

// DefaultTickInterval is how often the scheduler checks for due
// schedules when the caller doesn't override it.
const DefaultTickInterval = 30 * time.Second

// Dispatcher starts a freshly created task running; internal/queue
// implements this in front of whichever run backend the task selects.
type Dispatcher interface {
	StartTask(ctx context.Context, taskID string) error
}

// Scheduler polls the schedules table on a fixed tick and creates a new
// task for every schedule whose next_run_at has arrived.
type Scheduler struct {
	Store        *store.Store
	Dispatcher   Dispatcher
	TickInterval time.Duration
	Logger       *slog.Logger

	stopCh chan struct{}
}

func (s *Scheduler) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Run blocks, ticking until ctx is canceled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	s.stopCh = make(chan struct{})
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.tickOnce(ctx); err != nil {
				s.log().Error("scheduler tick failed", "error", err)
			}
		}
	}
}

// Stop ends a running Scheduler's tick loop.
func (s *Scheduler) Stop() {
	if s.stopCh != nil {
		close(s.stopCh)
	}
}

// tickOnce evaluates every enabled schedule once, mirroring tick_once:
// a schedule with no next_run_at yet gets one computed and stored
// without firing; a schedule whose next_run_at has arrived fires a new
// task and advances to the following occurrence. A schedule whose cron
// expression can no longer be parsed is disabled rather than retried
// forever.
func (s *Scheduler) tickOnce(ctx context.Context) error {
	now := time.Now().UTC()
	schedules, err := s.Store.ListEnabledSchedules(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: list enabled schedules: %w", err)
	}

	for _, sch := range schedules {
		if err := s.tickSchedule(ctx, &sch, now); err != nil {
			s.log().Error("scheduler: schedule tick failed", "schedule_id", sch.ID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) tickSchedule(ctx context.Context, sch *models.Schedule, now time.Time) error {
	cron, err := ParseCron(sch.CronExpr)
	if err != nil {
		s.log().Warn("scheduler: disabling schedule with unparseable cron", "schedule_id", sch.ID, "cron_expr", sch.CronExpr, "error", err)
		return s.Store.SetScheduleEnabled(ctx, sch.ID, false)
	}

	if sch.NextRunAt == nil {
		next, err := cron.NextAfter(now.Add(-time.Minute))
		if err != nil {
			s.log().Warn("scheduler: disabling schedule with no future occurrence", "schedule_id", sch.ID, "error", err)
			return s.Store.SetScheduleEnabled(ctx, sch.ID, false)
		}
		return s.Store.SetScheduleNextRun(ctx, sch.ID, next)
	}

	if sch.NextRunAt.After(now) {
		return nil
	}

	goal := ""
	if g, ok := sch.Payload["goal"].(string); ok {
		goal = g
	}
	if goal == "" {
		goal = "Scheduled run: " + sch.Name
	}
	mode := sch.Mode
	if mode == "" {
		mode = models.ModeFast
	}

	task, err := s.Store.CreateTask(ctx, sch.WorkspaceID, sch.SkillID, goal, mode, models.BackendClassic)
	if err != nil {
		return fmt.Errorf("create scheduled task: %w", err)
	}
	if err := s.Dispatcher.StartTask(ctx, task.ID); err != nil {
		s.log().Error("scheduler: failed to start scheduled task", "schedule_id", sch.ID, "task_id", task.ID, "error", err)
	}

	next, err := cron.NextAfter(now)
	if err != nil {
		s.log().Warn("scheduler: disabling schedule with no future occurrence", "schedule_id", sch.ID, "error", err)
		if disableErr := s.Store.SetScheduleEnabled(ctx, sch.ID, false); disableErr != nil {
			return disableErr
		}
		return nil
	}
	return s.Store.MarkScheduleRun(ctx, sch.ID, now, next)
}
