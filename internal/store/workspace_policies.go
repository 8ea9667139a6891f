package store

import (
	"context"
	"fmt"

	"github.com/benchforge/workbench/internal/models"
)

// GetWorkspacePolicy returns the stored policy for a workspace/scope
// pair, or ErrNotFound if none has been explicitly set — callers fall
// back to the default (ask_once) themselves, per spec.md §4.4.
func (s *Store) GetWorkspacePolicy(ctx context.Context, workspaceID, scope string) (*models.WorkspacePolicy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT workspace_id, scope, policy, updated_at FROM workspace_policies WHERE workspace_id=? AND scope=?`,
		workspaceID, scope)
	var p models.WorkspacePolicy
	var updated string
	if err := row.Scan(&p.WorkspaceID, &p.Scope, &p.Policy, &updated); err != nil {
		return nil, scanNotFound(err)
	}
	p.UpdatedAt = parseISO(updated)
	return &p, nil
}

// ListWorkspacePolicies returns every explicit policy override for a
// workspace.
func (s *Store) ListWorkspacePolicies(ctx context.Context, workspaceID string) ([]models.WorkspacePolicy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT workspace_id, scope, policy, updated_at FROM workspace_policies WHERE workspace_id=? ORDER BY scope ASC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("store: list workspace policies: %w", err)
	}
	defer rows.Close()
	var out []models.WorkspacePolicy
	for rows.Next() {
		var p models.WorkspacePolicy
		var updated string
		if err := rows.Scan(&p.WorkspaceID, &p.Scope, &p.Policy, &updated); err != nil {
			return nil, fmt.Errorf("store: scan workspace policy: %w", err)
		}
		p.UpdatedAt = parseISO(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetWorkspacePolicy upserts the policy for a workspace/scope pair.
func (s *Store) SetWorkspacePolicy(ctx context.Context, workspaceID, scope string, policy models.PolicyDecision) error {
	now := nowISO()
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO workspace_policies (workspace_id, scope, policy, updated_at) VALUES (?,?,?,?)
			 ON CONFLICT(workspace_id, scope) DO UPDATE SET policy=excluded.policy, updated_at=excluded.updated_at`,
			workspaceID, scope, string(policy), now)
		return err
	})
}
