package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benchforge/workbench/internal/models"
	"github.com/google/uuid"
)

// CreateMcpServer registers a subprocess-hosted MCP tool server.
func (s *Store) CreateMcpServer(ctx context.Context, m *models.McpServer) (*models.McpServer, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	argsJSON, err := json.Marshal(m.Args)
	if err != nil {
		return nil, fmt.Errorf("store: marshal mcp args: %w", err)
	}
	envJSON, err := json.Marshal(m.Env)
	if err != nil {
		return nil, fmt.Errorf("store: marshal mcp env: %w", err)
	}
	hcJSON, err := json.Marshal(m.HealthcheckArgs)
	if err != nil {
		return nil, fmt.Errorf("store: marshal mcp healthcheck args: %w", err)
	}
	now := nowISO()
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO mcp_servers (id, name, command, args_json, env_json, healthcheck_args_json, enabled, created_at, updated_at)
			 VALUES (?,?,?,?,?,?,?,?,?)`,
			m.ID, m.Name, m.Command, string(argsJSON), string(envJSON), string(hcJSON), boolToInt(m.Enabled), now, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: create mcp server: %w", err)
	}
	m.CreatedAt = parseISO(now)
	m.UpdatedAt = m.CreatedAt
	return m, nil
}

// GetMcpServer loads an MCP server definition by id.
func (s *Store) GetMcpServer(ctx context.Context, id string) (*models.McpServer, error) {
	row := s.db.QueryRowContext(ctx, mcpSelectColumns+` FROM mcp_servers WHERE id=?`, id)
	return scanMcpServer(row)
}

// ListMcpServers returns all registered MCP servers.
func (s *Store) ListMcpServers(ctx context.Context) ([]models.McpServer, error) {
	rows, err := s.db.QueryContext(ctx, mcpSelectColumns+` FROM mcp_servers ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list mcp servers: %w", err)
	}
	defer rows.Close()
	var out []models.McpServer
	for rows.Next() {
		m, err := scanMcpServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// ListEnabledMcpServers returns only servers the launcher should start.
func (s *Store) ListEnabledMcpServers(ctx context.Context) ([]models.McpServer, error) {
	rows, err := s.db.QueryContext(ctx, mcpSelectColumns+` FROM mcp_servers WHERE enabled=1 ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list enabled mcp servers: %w", err)
	}
	defer rows.Close()
	var out []models.McpServer
	for rows.Next() {
		m, err := scanMcpServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// SetMcpServerEnabled toggles whether the launcher should spawn a server.
func (s *Store) SetMcpServerEnabled(ctx context.Context, id string, enabled bool) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE mcp_servers SET enabled=?, updated_at=? WHERE id=?`, boolToInt(enabled), nowISO(), id)
		return err
	})
}

// DeleteMcpServer removes a server registration.
func (s *Store) DeleteMcpServer(ctx context.Context, id string) error {
	return withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM mcp_servers WHERE id=?`, id)
		return err
	})
}

const mcpSelectColumns = `SELECT id, name, command, args_json, env_json, healthcheck_args_json, enabled, created_at, updated_at`

func scanMcpServer(row rowScanner) (*models.McpServer, error) {
	var m models.McpServer
	var argsJSON, envJSON, hcJSON string
	var enabled int
	var created, updated string
	if err := row.Scan(&m.ID, &m.Name, &m.Command, &argsJSON, &envJSON, &hcJSON, &enabled, &created, &updated); err != nil {
		return nil, scanNotFound(err)
	}
	_ = json.Unmarshal([]byte(argsJSON), &m.Args)
	_ = json.Unmarshal([]byte(envJSON), &m.Env)
	_ = json.Unmarshal([]byte(hcJSON), &m.HealthcheckArgs)
	m.Enabled = enabled != 0
	m.CreatedAt = parseISO(created)
	m.UpdatedAt = parseISO(updated)
	return &m, nil
}
