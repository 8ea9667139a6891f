package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benchforge/workbench/internal/models"
	"github.com/google/uuid"
)

// CreateTask persists a new task in status "queued" and seeds the event
// log with a chat_message event carrying the goal, matching the
// original orchestrator's behavior of representing a run as a chat
// transcript from the very first message.
func (s *Store) CreateTask(ctx context.Context, workspaceID, skillID, goal string, mode models.Mode, backend models.Backend) (*models.Task, error) {
	t := &models.Task{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		SkillID:     skillID,
		Status:      models.TaskQueued,
		Mode:        mode,
		Goal:        goal,
		Backend:     backend,
	}
	now := nowISO()
	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO tasks (id, workspace_id, skill_id, status, mode, goal, current_step, backend, created_at, updated_at)
			 VALUES (?,?,?,?,?,?,0,?,?,?)`,
			t.ID, t.WorkspaceID, t.SkillID, string(t.Status), string(t.Mode), t.Goal, string(t.Backend), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: create task: %w", err)
	}
	t.CreatedAt = parseISO(now)
	t.UpdatedAt = t.CreatedAt

	payload := map[string]any{"role": "user", "content": goal}
	seq, _ := s.AppendEvent(ctx, t.ID, "", "chat_message", payload)
	s.publish("event_log", map[string]any{"task_id": t.ID, "type": "chat_message", "payload": payload, "seq": seq})
	return t, nil
}

// GetTask loads a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id=?`, id)
	return scanTask(row)
}

// ListTasks returns all tasks ordered by creation time descending.
func (s *Store) ListTasks(ctx context.Context) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()
	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// ClaimQueuedTask atomically claims the oldest task still in status
// "queued", flipping it to "running" in the same statement so two
// workers racing this call never both claim the same task. The
// connection pool is capped at one connection (see Store.Open), so this
// single UPDATE...WHERE IN (subquery) is effectively serialized against
// every other write the same way a SELECT ... FOR UPDATE SKIP LOCKED
// transaction would be. Returns ErrNotFound when no task is queued.
func (s *Store) ClaimQueuedTask(ctx context.Context) (*models.Task, error) {
	var claimedID string
	err := withRetry(ctx, func() error {
		now := nowISO()
		res, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET status=?, updated_at=? WHERE id = (
				SELECT id FROM tasks WHERE status=? ORDER BY created_at ASC LIMIT 1
			) AND status=?`,
			string(models.TaskRunning), now, string(models.TaskQueued), string(models.TaskQueued))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		row := s.db.QueryRowContext(ctx,
			`SELECT id FROM tasks WHERE status=? AND updated_at=? ORDER BY created_at ASC LIMIT 1`,
			string(models.TaskRunning), now)
		return row.Scan(&claimedID)
	})
	if err != nil {
		return nil, err
	}
	task, err := s.GetTask(ctx, claimedID)
	if err != nil {
		return nil, err
	}
	seq, _ := s.AppendEvent(ctx, task.ID, "", "task_update", map[string]any{"fields": map[string]any{"status": string(models.TaskRunning)}})
	s.publish("task_update", map[string]any{"task_id": task.ID, "fields": map[string]any{"status": string(models.TaskRunning)}, "seq": seq})
	return task, nil
}

// CountRunningTasks reports how many tasks are currently in status
// "running", used by internal/queue as a best-effort capacity check
// before claiming more work.
func (s *Store) CountRunningTasks(ctx context.Context) (int, error) {
	var n int
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status=?`, string(models.TaskRunning))
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count running tasks: %w", err)
	}
	return n, nil
}

// ListTerminalTasksOlderThan returns every task in a terminal status
// (succeeded/failed/canceled) last updated before cutoff, for
// internal/cleanup's retention sweep.
func (s *Store) ListTerminalTasksOlderThan(ctx context.Context, cutoff time.Time) ([]models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		taskSelectColumns+` FROM tasks WHERE status IN (?,?,?) AND updated_at < ? ORDER BY updated_at ASC`,
		string(models.TaskSucceeded), string(models.TaskFailed), string(models.TaskCanceled), cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("store: list terminal tasks: %w", err)
	}
	defer rows.Close()
	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// DeleteTask removes a task and its cascading steps/approvals. A second
// call on an already-deleted task is a no-op, per spec.md §8.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
		return err
	})
}

const taskSelectColumns = `SELECT id, workspace_id, skill_id, status, mode, goal, plan_json, current_step, output_path, error,
	backend, backend_run_id, backend_thread_id, backend_interrupt_id, backend_resume_token, backend_last_offset, created_at, updated_at`

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var planJSON, outputPath, errMsg, backendRunID, backendThreadID, interruptID, resumeToken, created, updated any
	if err := row.Scan(&t.ID, &t.WorkspaceID, &t.SkillID, &t.Status, &t.Mode, &t.Goal, &planJSON, &t.CurrentStep,
		&outputPath, &errMsg, &t.Backend, &backendRunID, &backendThreadID, &interruptID, &resumeToken, &t.BackendLastOffset, &created, &updated); err != nil {
		return nil, scanNotFound(err)
	}
	t.OutputPath = asString(outputPath)
	t.Error = asString(errMsg)
	t.BackendRunID = asString(backendRunID)
	t.BackendThreadID = asString(backendThreadID)
	t.BackendInterruptID = asString(interruptID)
	t.BackendResumeToken = asString(resumeToken)
	t.CreatedAt = parseISO(asString(created))
	t.UpdatedAt = parseISO(asString(updated))
	if pj := asString(planJSON); pj != "" {
		var p models.Plan
		if err := json.Unmarshal([]byte(pj), &p); err == nil {
			t.Plan = &p
		}
	}
	return &t, nil
}

func asString(v any) string {
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

// TaskFields is a sparse set of column updates for UpdateTask. Only
// non-nil pointer fields are applied.
type TaskFields struct {
	Status             *models.TaskStatus
	Plan               *models.Plan
	CurrentStep        *int
	OutputPath         *string
	Error              *string
	Backend            *models.Backend
	BackendRunID       *string
	BackendThreadID    *string
	BackendInterruptID *string
	BackendResumeToken *string
	BackendLastOffset  *int64
}

// UpdateTask applies a sparse set of field updates atomically and, after
// commit, appends a task_update event and publishes it to live
// subscribers. Per spec.md §8 invariant 3, terminal states are absorbing:
// once a task is in a terminal status this call is a no-op (aside from
// clearing interrupt fields), so callers never need to special-case it.
func (s *Store) UpdateTask(ctx context.Context, taskID string, fields TaskFields) error {
	existing, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if existing.Status.IsTerminal() {
		// Terminal states are absorbing; only interrupt-field cleanup may
		// still apply, and it carries no externally visible event.
		if fields.BackendInterruptID != nil || fields.BackendResumeToken != nil {
			return s.clearInterruptFields(ctx, taskID)
		}
		return nil
	}

	sets := []string{}
	args := []any{}
	changed := map[string]any{}

	addStr := func(col string, v *string) {
		if v != nil {
			sets = append(sets, col+"=?")
			args = append(args, *v)
			changed[col] = *v
		}
	}
	if fields.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, string(*fields.Status))
		changed["status"] = string(*fields.Status)
	}
	if fields.Plan != nil {
		buf, merr := json.Marshal(fields.Plan)
		if merr != nil {
			return fmt.Errorf("store: marshal plan: %w", merr)
		}
		sets = append(sets, "plan_json=?")
		args = append(args, string(buf))
		changed["plan"] = fields.Plan
	}
	if fields.CurrentStep != nil {
		sets = append(sets, "current_step=?")
		args = append(args, *fields.CurrentStep)
		changed["current_step"] = *fields.CurrentStep
	}
	addStr("output_path", fields.OutputPath)
	addStr("error", fields.Error)
	if fields.Backend != nil {
		sets = append(sets, "backend=?")
		args = append(args, string(*fields.Backend))
		changed["backend"] = string(*fields.Backend)
	}
	addStr("backend_run_id", fields.BackendRunID)
	addStr("backend_thread_id", fields.BackendThreadID)
	addStr("backend_interrupt_id", fields.BackendInterruptID)
	addStr("backend_resume_token", fields.BackendResumeToken)
	if fields.BackendLastOffset != nil {
		sets = append(sets, "backend_last_offset=?")
		args = append(args, *fields.BackendLastOffset)
		changed["backend_last_offset"] = *fields.BackendLastOffset
	}

	if len(sets) == 0 {
		return nil
	}
	now := nowISO()
	sets = append(sets, "updated_at=?")
	args = append(args, now)
	args = append(args, taskID)

	query := fmt.Sprintf(`UPDATE tasks SET %s WHERE id=?`, join(sets, ", "))
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: update task: %w", err)
	}

	changed["updated_at"] = now
	seq, _ := s.AppendEvent(ctx, taskID, "", "task_update", map[string]any{"fields": changed})
	s.publish("task_update", map[string]any{"task_id": taskID, "fields": changed, "seq": seq})
	return nil
}

func (s *Store) clearInterruptFields(ctx context.Context, taskID string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE tasks SET backend_interrupt_id=NULL, backend_resume_token=NULL, updated_at=? WHERE id=?`,
			nowISO(), taskID)
		return err
	})
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}
