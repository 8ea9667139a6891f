package store

import (
	"context"
	"fmt"

	"github.com/benchforge/workbench/internal/models"
	"github.com/google/uuid"
)

// CreateApproval opens a pending approval request for a step.
func (s *Store) CreateApproval(ctx context.Context, taskID, stepID string) (*models.Approval, error) {
	ap := &models.Approval{
		ID:     uuid.NewString(),
		TaskID: taskID,
		StepID: stepID,
		Status: models.ApprovalPending,
	}
	now := nowISO()
	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO approvals (id, task_id, step_id, status, requested_at) VALUES (?,?,?,?,?)`,
			ap.ID, ap.TaskID, ap.StepID, string(ap.Status), now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: create approval: %w", err)
	}
	ap.RequestedAt = parseISO(now)

	seq, _ := s.AppendEvent(ctx, taskID, stepID, "approval_requested", map[string]any{"approval_id": ap.ID})
	s.publish("approval_requested", map[string]any{"task_id": taskID, "step_id": stepID, "approval_id": ap.ID, "seq": seq})
	return ap, nil
}

// GetApproval loads an approval by id.
func (s *Store) GetApproval(ctx context.Context, id string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx, approvalSelectColumns+` FROM approvals WHERE id=?`, id)
	return scanApproval(row)
}

// GetPendingApprovalForStep returns the open approval for a step, if any.
func (s *Store) GetPendingApprovalForStep(ctx context.Context, stepID string) (*models.Approval, error) {
	row := s.db.QueryRowContext(ctx,
		approvalSelectColumns+` FROM approvals WHERE step_id=? AND status=? ORDER BY requested_at DESC LIMIT 1`,
		stepID, string(models.ApprovalPending))
	return scanApproval(row)
}

// ListApprovals returns all approvals for a task ordered by request time.
func (s *Store) ListApprovals(ctx context.Context, taskID string) ([]models.Approval, error) {
	rows, err := s.db.QueryContext(ctx, approvalSelectColumns+` FROM approvals WHERE task_id=? ORDER BY requested_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("store: list approvals: %w", err)
	}
	defer rows.Close()
	var out []models.Approval
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ap)
	}
	return out, rows.Err()
}

// DecideApproval records an approve/reject decision with an optional
// free-text reason (e.g. the bilingual text a user typed in continueTask),
// then appends and publishes an approval_decided event. Deciding an
// already-decided approval is a no-op, matching the idempotent-resume
// invariant used elsewhere in the store.
func (s *Store) DecideApproval(ctx context.Context, id string, approved bool, reason string) (*models.Approval, error) {
	existing, err := s.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != models.ApprovalPending {
		return existing, nil
	}

	status := models.ApprovalRejected
	decision := "reject"
	if approved {
		status = models.ApprovalApproved
		decision = "approve"
	}
	now := nowISO()
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`UPDATE approvals SET status=?, decided_at=?, decision=?, reason=? WHERE id=?`,
			string(status), now, decision, reason, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: decide approval: %w", err)
	}

	existing.Status = status
	decidedAt := parseISO(now)
	existing.DecidedAt = &decidedAt
	existing.Decision = decision
	existing.Reason = reason

	seq, _ := s.AppendEvent(ctx, existing.TaskID, existing.StepID, "approval_decided",
		map[string]any{"approval_id": id, "decision": decision, "reason": reason})
	s.publish("approval_decided", map[string]any{"task_id": existing.TaskID, "step_id": existing.StepID, "approval_id": id, "decision": decision, "seq": seq})
	return existing, nil
}

const approvalSelectColumns = `SELECT id, task_id, step_id, status, requested_at, decided_at, COALESCE(decision,''), COALESCE(reason,'')`

func scanApproval(row rowScanner) (*models.Approval, error) {
	var ap models.Approval
	var requestedAt string
	var decidedAt any
	if err := row.Scan(&ap.ID, &ap.TaskID, &ap.StepID, &ap.Status, &requestedAt, &decidedAt, &ap.Decision, &ap.Reason); err != nil {
		return nil, scanNotFound(err)
	}
	ap.RequestedAt = parseISO(requestedAt)
	if ds := asString(decidedAt); ds != "" {
		t := parseISO(ds)
		ap.DecidedAt = &t
	}
	return &ap, nil
}
