package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/benchforge/workbench/internal/models"
)

// AppendEvent inserts a durable event log row and returns its
// monotonic, per-process sequence number (the DB-assigned rowid).
// stepID may be empty for task-scoped events.
func (s *Store) AppendEvent(ctx context.Context, taskID, stepID, eventType string, payload map[string]any) (int64, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("store: marshal event payload: %w", err)
	}

	var seq int64
	err = withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO event_log (task_id, step_id, type, payload_json, ts) VALUES (?,?,?,?,?)`,
			taskID, nullableString(stepID), eventType, string(buf), nowISO())
		if err != nil {
			return err
		}
		seq, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return seq, nil
}

// ListEvents returns events for a task ordered by seq ascending, strictly
// after afterSeq (0 means "from the start"), capped at limit (0 means
// unbounded). If tail is true and limit > 0, the most recent limit
// events are returned instead (still ascending).
func (s *Store) ListEvents(ctx context.Context, taskID string, afterSeq int64, limit int, tail bool) ([]models.EventLogRow, error) {
	query := `SELECT seq, task_id, COALESCE(step_id,''), type, payload_json, ts FROM event_log WHERE task_id=? AND seq>?`
	args := []any{taskID, afterSeq}

	if tail && limit > 0 {
		query = `SELECT seq, task_id, step_id, type, payload_json, ts FROM (
			SELECT seq, task_id, COALESCE(step_id,'') AS step_id, type, payload_json, ts
			FROM event_log WHERE task_id=? AND seq>? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC`
		args = []any{taskID, afterSeq, limit}
	} else {
		query += ` ORDER BY seq ASC`
		if limit > 0 {
			query += ` LIMIT ?`
			args = append(args, limit)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list events: %w", err)
	}
	defer rows.Close()

	var out []models.EventLogRow
	for rows.Next() {
		var row models.EventLogRow
		var payloadJSON, ts string
		if err := rows.Scan(&row.Seq, &row.TaskID, &row.StepID, &row.Type, &payloadJSON, &ts); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		row.Payload = map[string]any{}
		_ = json.Unmarshal([]byte(payloadJSON), &row.Payload)
		row.TS = parseISO(ts)
		out = append(out, row)
	}
	return out, rows.Err()
}

func nullableString(s string) any {
	if s == "" {
		return sql.NullString{}
	}
	return s
}
