package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
)

// Config holds the parameters needed to construct a Service.
type Config struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service watches task_update events and posts a Slack notification
// when a task enters waiting_approval or reaches a terminal status.
// Nil-safe: every method is a no-op when the service itself is nil, so
// callers can wire it unconditionally and let NewService's validation
// decide whether notifications are actually enabled.
type Service struct {
	client       *Client
	store        *store.Store
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a Service, or returns nil if Token or Channel is
// unset (Slack notifications disabled).
func NewService(cfg Config, st *store.Store) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		store:        st,
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// NewServiceWithClient builds a Service around a pre-built Client, for
// testing against a mock Slack API server.
func NewServiceWithClient(client *Client, st *store.Store, dashboardURL string) *Service {
	return &Service{
		client:       client,
		store:        st,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "notify-service"),
	}
}

// Publish implements store.Publisher. It is the hook the store calls
// after every committed state change; this filters down to the single
// event type and status transitions notify cares about, fetching the
// full task row itself since the store only hands over the changed
// fields.
func (s *Service) Publish(eventType string, data map[string]any) {
	if s == nil || eventType != "task_update" {
		return
	}
	taskID, _ := data["task_id"].(string)
	if taskID == "" {
		return
	}
	fields, _ := data["fields"].(map[string]any)
	statusVal, ok := fields["status"]
	if !ok {
		return
	}
	status := models.TaskStatus(stringify(statusVal))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		s.logger.Warn("failed to load task for notification", "task_id", taskID, "error", err)
		return
	}

	switch status {
	case models.TaskWaitingApproval:
		s.notifyWaitingApproval(ctx, task)
	case models.TaskSucceeded, models.TaskFailed, models.TaskCanceled:
		s.notifyTerminal(ctx, task)
	}
}

func (s *Service) notifyWaitingApproval(ctx context.Context, task *models.Task) {
	approvals, err := s.store.ListApprovals(ctx, task.ID)
	if err != nil {
		s.logger.Warn("failed to list approvals for notification", "task_id", task.ID, "error", err)
		return
	}
	stepID := ""
	for i := len(approvals) - 1; i >= 0; i-- {
		if approvals[i].Status == models.ApprovalPending {
			stepID = approvals[i].StepID
			break
		}
	}

	blocks := BuildApprovalMessage(task, stepID, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 5*time.Second); err != nil {
		s.logger.Error("failed to send Slack approval notification", "task_id", task.ID, "error", err)
	}
}

func (s *Service) notifyTerminal(ctx context.Context, task *models.Task) {
	blocks := BuildTerminalMessage(task, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, 10*time.Second); err != nil {
		s.logger.Error("failed to send Slack terminal notification", "task_id", task.ID, "status", task.Status, "error", err)
	}
}

func stringify(v any) string {
	s, _ := v.(string)
	return s
}
