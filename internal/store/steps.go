package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/benchforge/workbench/internal/models"
	"github.com/google/uuid"
)

// CreateStep persists a single plan step at the given index, pending.
func (s *Store) CreateStep(ctx context.Context, taskID string, idx int, name, tool string, args map[string]any, requiresApproval bool) (*models.Step, error) {
	st := &models.Step{
		ID:               uuid.NewString(),
		TaskID:           taskID,
		Idx:              idx,
		Name:             name,
		Tool:             tool,
		Args:             args,
		Status:           models.StepPending,
		RequiresApproval: requiresApproval,
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("store: marshal step args: %w", err)
	}
	now := nowISO()
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO steps (id, task_id, idx, name, tool, args_json, status, requires_approval, created_at, updated_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			st.ID, st.TaskID, st.Idx, st.Name, st.Tool, string(argsJSON), string(st.Status), boolToInt(requiresApproval), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: create step: %w", err)
	}
	st.CreatedAt = parseISO(now)
	st.UpdatedAt = st.CreatedAt
	return st, nil
}

// GetStep loads a step by id.
func (s *Store) GetStep(ctx context.Context, id string) (*models.Step, error) {
	row := s.db.QueryRowContext(ctx, stepSelectColumns+` FROM steps WHERE id=?`, id)
	return scanStep(row)
}

// ListSteps returns a task's steps ordered by index.
func (s *Store) ListSteps(ctx context.Context, taskID string) ([]models.Step, error) {
	rows, err := s.db.QueryContext(ctx, stepSelectColumns+` FROM steps WHERE task_id=? ORDER BY idx ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list steps: %w", err)
	}
	defer rows.Close()
	var out []models.Step
	for rows.Next() {
		st, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

// DeleteStepsFrom removes all steps at or after idx for a task, used when
// a critic fix replaces the remainder of a plan. Returns the number of
// rows removed.
func (s *Store) DeleteStepsFrom(ctx context.Context, taskID string, fromIdx int) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM steps WHERE task_id=? AND idx>=?`, taskID, fromIdx)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// DeleteStepAtIdx removes a single step at an exact index, used for a
// patch's remove_steps list (distinct from DeleteStepsFrom's
// from-idx-onward semantics).
func (s *Store) DeleteStepAtIdx(ctx context.Context, taskID string, idx int) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM steps WHERE task_id=? AND idx=?`, taskID, idx)
		return err
	})
}

// MaxStepIdx returns the highest step index for a task, or -1 if the
// task has no steps.
func (s *Store) MaxStepIdx(ctx context.Context, taskID string) (int, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(idx) FROM steps WHERE task_id=?`, taskID).Scan(&max)
	if err != nil {
		return -1, fmt.Errorf("store: max step idx: %w", err)
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

const stepSelectColumns = `SELECT id, task_id, idx, name, tool, args_json, status, requires_approval, result_json, error, created_at, updated_at`

func scanStep(row rowScanner) (*models.Step, error) {
	var st models.Step
	var argsJSON string
	var resultJSON, errMsg any
	var requiresApproval int
	var created, updated string
	if err := row.Scan(&st.ID, &st.TaskID, &st.Idx, &st.Name, &st.Tool, &argsJSON, &st.Status, &requiresApproval, &resultJSON, &errMsg, &created, &updated); err != nil {
		return nil, scanNotFound(err)
	}
	_ = json.Unmarshal([]byte(argsJSON), &st.Args)
	st.RequiresApproval = requiresApproval != 0
	st.Error = asString(errMsg)
	if rj := asString(resultJSON); rj != "" {
		st.Result = map[string]any{}
		_ = json.Unmarshal([]byte(rj), &st.Result)
	}
	st.CreatedAt = parseISO(created)
	st.UpdatedAt = parseISO(updated)
	return &st, nil
}

// StepFields is a sparse set of column updates for UpdateStep.
type StepFields struct {
	Status *models.StepStatus
	Result map[string]any
	Error  *string
}

// UpdateStep applies a sparse field update, then appends and publishes a
// step_update event, mirroring UpdateTask's contract.
func (s *Store) UpdateStep(ctx context.Context, stepID string, fields StepFields) error {
	sets := []string{}
	args := []any{}
	changed := map[string]any{}

	if fields.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, string(*fields.Status))
		changed["status"] = string(*fields.Status)
	}
	if fields.Result != nil {
		buf, err := json.Marshal(fields.Result)
		if err != nil {
			return fmt.Errorf("store: marshal step result: %w", err)
		}
		sets = append(sets, "result_json=?")
		args = append(args, string(buf))
		changed["result"] = fields.Result
	}
	if fields.Error != nil {
		sets = append(sets, "error=?")
		args = append(args, *fields.Error)
		changed["error"] = *fields.Error
	}
	if len(sets) == 0 {
		return nil
	}

	step, err := s.GetStep(ctx, stepID)
	if err != nil {
		return err
	}

	now := nowISO()
	sets = append(sets, "updated_at=?")
	args = append(args, now, stepID)

	query := fmt.Sprintf(`UPDATE steps SET %s WHERE id=?`, join(sets, ", "))
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("store: update step: %w", err)
	}

	changed["updated_at"] = now
	changed["idx"] = step.Idx
	seq, _ := s.AppendEvent(ctx, step.TaskID, stepID, "step_update", changed)
	s.publish("step_update", map[string]any{"task_id": step.TaskID, "step_id": stepID, "fields": changed, "seq": seq})
	return nil
}
