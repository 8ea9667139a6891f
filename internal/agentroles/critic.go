package agentroles

import (
	"context"
	"encoding/json"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/models"
)

// ArtifactSummary describes one produced file for the Critic's review.
type ArtifactSummary struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Verdict is the Critic's judgment, per spec.md §4.5.
type Verdict struct {
	OK        bool              `json:"ok"`
	Issues    []string          `json:"issues"`
	FixSteps  []models.PlanStep `json:"fix_steps"`
}

type rawVerdict struct {
	OK       bool      `json:"ok"`
	Issues   []string  `json:"issues"`
	FixSteps []rawStep `json:"fix_steps"`
}

// Critic reviews a completed run's artifacts against the goal and,
// when incomplete, proposes fix steps the engine applies as an
// append-patch.
type Critic struct {
	Provider  llm.ChatProvider
	ModelFast string
	ModelPro  string
}

// Review invokes the Critic once all of a plan's steps have run.
func (c *Critic) Review(ctx context.Context, goal string, plan *models.Plan, artifacts []ArtifactSummary, mode, skillSystemPrompt string) (*Verdict, error) {
	model := modelForMode(mode, c.ModelFast, c.ModelPro)
	sys := criticSystem
	if skillSystemPrompt != "" {
		sys += "\n\nSKILL_CONTEXT:\n" + skillSystemPrompt
	}

	payload := map[string]any{"goal": goal, "plan": plan, "artifacts": artifacts}
	userJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := c.Provider.Chat(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: sys},
			{Role: llm.RoleUser, Content: string(userJSON)},
		},
		Temperature:    0.1,
		JSONObjectMode: true,
	})
	if err != nil {
		return nil, err
	}

	var raw rawVerdict
	if err := extractJSON(resp.Content, &raw); err != nil {
		// Per spec.md §4.6, a Critic JSON violation fails the task
		// rather than being silently skipped like the Executor's.
		return nil, err
	}

	fixSteps := make([]models.PlanStep, 0, len(raw.FixSteps))
	for _, s := range raw.FixSteps {
		requiresApproval := false
		if s.RequiresApproval != nil {
			requiresApproval = *s.RequiresApproval
		}
		fixSteps = append(fixSteps, models.PlanStep{
			Name: s.Name, Tool: s.Tool, Args: s.Args, RequiresApproval: requiresApproval,
		})
	}

	return &Verdict{OK: raw.OK, Issues: raw.Issues, FixSteps: fixSteps}, nil
}
