package skillsrc

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/benchforge/workbench/internal/models"
)

// frontmatter is the YAML header of a skill markdown document. The
// document body, everything after the closing "---", becomes the
// skill's system prompt.
type frontmatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	AllowedTools []string `yaml:"allowed_tools"`
	DefaultMode  string   `yaml:"default_mode"`
}

// ParseDocument splits a skill markdown document into a *models.Skill
// (Name/Description/AllowedTools/DefaultMode/SystemPrompt populated;
// ID/Source/SourceFile/CreatedAt left for the caller to fill in) and
// returns an error if the document has no frontmatter block or the
// body is empty after stripping it.
func ParseDocument(content string) (*models.Skill, error) {
	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("skillsrc: document has no system prompt body")
	}
	if strings.TrimSpace(fm.Name) == "" {
		return nil, fmt.Errorf("skillsrc: frontmatter missing required 'name' field")
	}

	mode := models.Mode(strings.TrimSpace(fm.DefaultMode))
	if mode == "" {
		mode = models.ModeFast
	}

	return &models.Skill{
		Name:         fm.Name,
		Description:  fm.Description,
		SystemPrompt: body,
		AllowedTools: fm.AllowedTools,
		DefaultMode:  mode,
		Enabled:      true,
	}, nil
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block
// from the remainder of the document.
func splitFrontmatter(content string) (frontmatter, string, error) {
	var fm frontmatter

	trimmed := strings.TrimLeft(content, "﻿ \t\r\n")
	if !strings.HasPrefix(trimmed, "---") {
		return fm, "", fmt.Errorf("skillsrc: document must start with a '---' frontmatter block")
	}

	rest := trimmed[len("---"):]
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return fm, "", fmt.Errorf("skillsrc: frontmatter block is not closed with '---'")
	}
	yamlBlock := rest[:idx]
	remainder := rest[idx+len("\n---"):]
	remainder = strings.TrimPrefix(remainder, "\r\n")
	remainder = strings.TrimPrefix(remainder, "\n")

	if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
		return fm, "", fmt.Errorf("skillsrc: parse frontmatter: %w", err)
	}
	return fm, remainder, nil
}
