package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benchforge/workbench/internal/models"
	"github.com/google/uuid"
)

const timeLayout = time.RFC3339Nano

func timeToNullable(t *time.Time) any {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return t.UTC().Format(timeLayout)
}

// CreateSchedule persists a new cron-driven schedule. nextRunAt is
// computed by the caller (internal/scheduler) since it requires parsing
// the cron expression.
func (s *Store) CreateSchedule(ctx context.Context, sch *models.Schedule) (*models.Schedule, error) {
	if sch.ID == "" {
		sch.ID = uuid.NewString()
	}
	payload, err := json.Marshal(sch.Payload)
	if err != nil {
		return nil, fmt.Errorf("store: marshal schedule payload: %w", err)
	}
	now := nowISO()
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO schedules (id, name, cron_expr, workspace_id, skill_id, mode, enabled, payload_json, next_run_at, last_run_at, created_at, updated_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
			sch.ID, sch.Name, sch.CronExpr, sch.WorkspaceID, sch.SkillID, string(sch.Mode), boolToInt(sch.Enabled), string(payload),
			timeToNullable(sch.NextRunAt), timeToNullable(sch.LastRunAt), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: create schedule: %w", err)
	}
	sch.CreatedAt = parseISO(now)
	sch.UpdatedAt = sch.CreatedAt
	return sch, nil
}

// GetSchedule loads a schedule by id.
func (s *Store) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx, scheduleSelectColumns+` FROM schedules WHERE id=?`, id)
	return scanSchedule(row)
}

// ListSchedules returns all schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, scheduleSelectColumns+` FROM schedules ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	defer rows.Close()
	var out []models.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sch)
	}
	return out, rows.Err()
}

// ListEnabledSchedules returns schedules eligible for the scheduler's
// tick loop to consider.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]models.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, scheduleSelectColumns+` FROM schedules WHERE enabled=1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled schedules: %w", err)
	}
	defer rows.Close()
	var out []models.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sch)
	}
	return out, rows.Err()
}

// MarkScheduleRun updates last_run_at and the freshly computed
// next_run_at after the scheduler fires a schedule.
func (s *Store) MarkScheduleRun(ctx context.Context, id string, ranAt, nextRunAt time.Time) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE schedules SET last_run_at=?, next_run_at=?, updated_at=? WHERE id=?`,
			ranAt.UTC().Format(timeLayout), nextRunAt.UTC().Format(timeLayout), nowISO(), id)
		return err
	})
}

// SetScheduleNextRun records only next_run_at, leaving last_run_at
// untouched — used the first time a schedule is ticked, when a
// next_run_at is computed but nothing has fired yet.
func (s *Store) SetScheduleNextRun(ctx context.Context, id string, nextRunAt time.Time) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE schedules SET next_run_at=?, updated_at=? WHERE id=?`,
			nextRunAt.UTC().Format(timeLayout), nowISO(), id)
		return err
	})
}

// SetScheduleEnabled toggles a schedule on or off.
func (s *Store) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE schedules SET enabled=?, updated_at=? WHERE id=?`, boolToInt(enabled), nowISO(), id)
		return err
	})
}

// DeleteSchedule removes a schedule.
func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id=?`, id)
		return err
	})
}

const scheduleSelectColumns = `SELECT id, name, cron_expr, workspace_id, skill_id, mode, enabled, payload_json, next_run_at, last_run_at, created_at, updated_at`

func scanSchedule(row rowScanner) (*models.Schedule, error) {
	var sch models.Schedule
	var payloadJSON string
	var enabled int
	var nextRunAt, lastRunAt any
	var created, updated string
	if err := row.Scan(&sch.ID, &sch.Name, &sch.CronExpr, &sch.WorkspaceID, &sch.SkillID, &sch.Mode, &enabled, &payloadJSON, &nextRunAt, &lastRunAt, &created, &updated); err != nil {
		return nil, scanNotFound(err)
	}
	sch.Enabled = enabled != 0
	if payloadJSON != "" {
		sch.Payload = map[string]any{}
		_ = json.Unmarshal([]byte(payloadJSON), &sch.Payload)
	}
	if v := asString(nextRunAt); v != "" {
		t := parseISO(v)
		sch.NextRunAt = &t
	}
	if v := asString(lastRunAt); v != "" {
		t := parseISO(v)
		sch.LastRunAt = &t
	}
	sch.CreatedAt = parseISO(created)
	sch.UpdatedAt = parseISO(updated)
	return &sch, nil
}
