package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/benchforge/workbench/internal/models"
	"github.com/google/uuid"
)

// CreateSkill persists a new skill definition.
func (s *Store) CreateSkill(ctx context.Context, sk *models.Skill) (*models.Skill, error) {
	if sk.ID == "" {
		sk.ID = uuid.NewString()
	}
	if sk.DefaultMode == "" {
		sk.DefaultMode = models.ModeFast
	}
	allowed, err := json.Marshal(sk.AllowedTools)
	if err != nil {
		return nil, fmt.Errorf("store: marshal allowed_tools: %w", err)
	}
	now := nowISO()
	err = withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO skills (id, name, description, source_file, system_prompt, allowed_tools_json, default_mode, enabled, source, created_at)
			 VALUES (?,?,?,?,?,?,?,?,?,?)`,
			sk.ID, sk.Name, sk.Description, sk.SourceFile, sk.SystemPrompt, string(allowed), string(sk.DefaultMode), boolToInt(true), sk.Source, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: create skill: %w", err)
	}
	sk.Enabled = true
	sk.CreatedAt = parseISO(now)
	return sk, nil
}

// GetSkill loads a skill by id.
func (s *Store) GetSkill(ctx context.Context, id string) (*models.Skill, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, source_file, system_prompt, allowed_tools_json, default_mode, enabled, source, created_at
		 FROM skills WHERE id=?`, id)
	return scanSkill(row)
}

// ListSkills returns enabled and disabled skills ordered by creation time.
func (s *Store) ListSkills(ctx context.Context) ([]models.Skill, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, source_file, system_prompt, allowed_tools_json, default_mode, enabled, source, created_at
		 FROM skills ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list skills: %w", err)
	}
	defer rows.Close()

	var out []models.Skill
	for rows.Next() {
		sk, err := scanSkill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sk)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSkill(row rowScanner) (*models.Skill, error) {
	var sk models.Skill
	var allowedJSON, created string
	var enabled int
	if err := row.Scan(&sk.ID, &sk.Name, &sk.Description, &sk.SourceFile, &sk.SystemPrompt, &allowedJSON, &sk.DefaultMode, &enabled, &sk.Source, &created); err != nil {
		return nil, scanNotFound(err)
	}
	_ = json.Unmarshal([]byte(allowedJSON), &sk.AllowedTools)
	sk.Enabled = enabled != 0
	sk.CreatedAt = parseISO(created)
	return &sk, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
