package services

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/skillsrc"
	"github.com/benchforge/workbench/internal/store"
)

// WorkspaceService exposes the thin CRUD surface over store.Workspace
// that internal/api needs; workspace creation also ensures the
// filesystem root exists, since every tool handler assumes it does.
type WorkspaceService struct {
	Store *store.Store
}

// Create validates and persists a new workspace, creating fsPath if it
// doesn't already exist.
func (s *WorkspaceService) Create(ctx context.Context, name, fsPath string) (*models.Workspace, error) {
	name = strings.TrimSpace(name)
	fsPath = strings.TrimSpace(fsPath)
	if name == "" {
		return nil, NewValidationError("name", "required")
	}
	if fsPath == "" {
		return nil, NewValidationError("fs_path", "required")
	}
	if err := os.MkdirAll(fsPath, 0o755); err != nil {
		return nil, fmt.Errorf("services: create workspace root: %w", err)
	}
	ws, err := s.Store.CreateWorkspace(ctx, name, fsPath)
	if err != nil {
		return nil, fmt.Errorf("services: create workspace: %w", err)
	}
	return ws, nil
}

// Get loads a workspace by id.
func (s *WorkspaceService) Get(ctx context.Context, id string) (*models.Workspace, error) {
	return s.Store.GetWorkspace(ctx, id)
}

// List returns every workspace.
func (s *WorkspaceService) List(ctx context.Context) ([]models.Workspace, error) {
	return s.Store.ListWorkspaces(ctx)
}

// SkillService exposes the thin CRUD surface over store.Skill that
// internal/api needs, plus import from a local file or GitHub URL via
// internal/skillsrc. Importer is nil-checked so a SkillService built
// without one still serves the plain CRUD routes.
type SkillService struct {
	Store    *store.Store
	Importer *skillsrc.Importer
}

// Get loads a skill by id.
func (s *SkillService) Get(ctx context.Context, id string) (*models.Skill, error) {
	return s.Store.GetSkill(ctx, id)
}

// List returns every skill.
func (s *SkillService) List(ctx context.Context) ([]models.Skill, error) {
	return s.Store.ListSkills(ctx)
}

// Create validates and persists a new skill definition.
func (s *SkillService) Create(ctx context.Context, sk *models.Skill) (*models.Skill, error) {
	if strings.TrimSpace(sk.Name) == "" {
		return nil, NewValidationError("name", "required")
	}
	if strings.TrimSpace(sk.SystemPrompt) == "" {
		return nil, NewValidationError("system_prompt", "required")
	}
	return s.Store.CreateSkill(ctx, sk)
}

// ImportFromURL fetches and parses a skill definition from a GitHub
// raw-content URL and persists it, returning NewValidationError if no
// Importer was configured (GITHUB_TOKEN-gated feature).
func (s *SkillService) ImportFromURL(ctx context.Context, rawURL string) (*models.Skill, error) {
	if s.Importer == nil {
		return nil, NewValidationError("source_url", "skill import is not configured")
	}
	sk, err := s.Importer.ImportFromURL(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("services: import skill from url: %w", err)
	}
	return s.Store.CreateSkill(ctx, sk)
}

// ImportFromFile parses a local skill markdown file and persists it.
func (s *SkillService) ImportFromFile(ctx context.Context, path string) (*models.Skill, error) {
	if s.Importer == nil {
		return nil, NewValidationError("source_file", "skill import is not configured")
	}
	sk, err := s.Importer.ImportFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("services: import skill from file: %w", err)
	}
	return s.Store.CreateSkill(ctx, sk)
}
