package store

import (
	"context"
	"fmt"

	"github.com/benchforge/workbench/internal/models"
	"github.com/google/uuid"
)

// CreateWorkspace persists a new workspace bound to an existing directory.
func (s *Store) CreateWorkspace(ctx context.Context, name, fsPath string) (*models.Workspace, error) {
	ws := &models.Workspace{ID: uuid.NewString(), Name: name, FSPath: fsPath}
	now := nowISO()
	err := withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO workspaces (id, name, fs_path, created_at) VALUES (?,?,?,?)`,
			ws.ID, ws.Name, ws.FSPath, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: create workspace: %w", err)
	}
	ws.CreatedAt = parseISO(now)
	return ws, nil
}

// GetWorkspace loads a workspace by id.
func (s *Store) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, fs_path, created_at FROM workspaces WHERE id=?`, id)
	var ws models.Workspace
	var created string
	if err := row.Scan(&ws.ID, &ws.Name, &ws.FSPath, &created); err != nil {
		return nil, scanNotFound(err)
	}
	ws.CreatedAt = parseISO(created)
	return &ws, nil
}

// ListWorkspaces returns all workspaces ordered by creation time.
func (s *Store) ListWorkspaces(ctx context.Context) ([]models.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, fs_path, created_at FROM workspaces ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list workspaces: %w", err)
	}
	defer rows.Close()

	var out []models.Workspace
	for rows.Next() {
		var ws models.Workspace
		var created string
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.FSPath, &created); err != nil {
			return nil, fmt.Errorf("store: scan workspace: %w", err)
		}
		ws.CreatedAt = parseISO(created)
		out = append(out, ws)
	}
	return out, rows.Err()
}
