package agentroles

import (
	"context"
	"fmt"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/models"
)

// PlanError is a planning failure the engine surfaces as the task's
// terminal error (spec.md §4.6's "planning error" path).
type PlanError struct {
	msg string
}

func (e *PlanError) Error() string { return e.msg }

func planError(format string, args ...any) *PlanError {
	return &PlanError{msg: fmt.Sprintf(format, args...)}
}

// Planner turns a goal into a Plan via a single strict-JSON LLM call,
// with one repair retry on a JSON parse failure.
type Planner struct {
	Provider  llm.ChatProvider
	ModelFast string
	ModelPro  string
}

// rawPlan mirrors the JSON document the model is asked to produce,
// decoded loosely before validation fills in defaults.
type rawPlan struct {
	Summary   string              `json:"summary"`
	Artifacts []models.PlanArtifact `json:"artifacts"`
	Steps     []rawStep           `json:"steps"`
}

type rawStep struct {
	Name             string         `json:"name"`
	Tool             string         `json:"tool"`
	Args             map[string]any `json:"args"`
	RequiresApproval *bool          `json:"requires_approval"`
}

// Plan generates and validates a plan for goal, constrained to
// allowedTools (empty means unrestricted).
func (p *Planner) Plan(ctx context.Context, goal string, allowedTools []string, mode, skillSystemPrompt string, tools []ToolSummary) (*models.Plan, error) {
	model := modelForMode(mode, p.ModelFast, p.ModelPro)
	sys := plannerSystem
	if skillSystemPrompt != "" {
		sys += "\n\nSKILL_CONTEXT:\n" + skillSystemPrompt
	}
	sys += "\n\nALLOWED_TOOLS:\n" + toolsSummary(tools)

	user := "GOAL:\n" + goal + "\n\nReturn only strict JSON as specified."

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: sys},
		{Role: llm.RoleUser, Content: user},
	}
	resp, err := p.Provider.Chat(ctx, llm.Request{Model: model, Messages: messages, Temperature: 0.2, JSONObjectMode: true})
	if err != nil {
		return nil, planError("planner call failed: %v", err)
	}

	var plan rawPlan
	if err := extractJSON(resp.Content, &plan); err != nil {
		repairMessages := append(append([]llm.Message{}, messages...),
			llm.Message{Role: llm.RoleAssistant, Content: resp.Content},
			llm.Message{Role: llm.RoleSystem, Content: "You output invalid JSON. Output ONLY valid JSON for the plan schema. No markdown."},
		)
		resp2, err2 := p.Provider.Chat(ctx, llm.Request{Model: model, Messages: repairMessages, Temperature: 0, JSONObjectMode: true})
		if err2 != nil {
			return nil, planError("planner repair call failed: %v", err2)
		}
		if err := extractJSON(resp2.Content, &plan); err != nil {
			return nil, planError("planner produced unparseable JSON twice")
		}
	}

	return validatePlan(plan, allowedTools)
}

func validatePlan(plan rawPlan, allowedTools []string) (*models.Plan, error) {
	if len(plan.Steps) == 0 {
		return nil, planError("plan must include non-empty steps")
	}
	allowed := toSet(allowedTools)
	steps := make([]models.PlanStep, 0, len(plan.Steps))
	for _, s := range plan.Steps {
		if s.Tool == "" {
			return nil, planError("each step must include a tool")
		}
		if s.Args == nil {
			return nil, planError("each step must include args")
		}
		if len(allowed) > 0 && !allowed[s.Tool] {
			return nil, planError("step tool not allowed: %s", s.Tool)
		}
		requiresApproval := false
		if s.RequiresApproval != nil {
			requiresApproval = *s.RequiresApproval
		}
		steps = append(steps, models.PlanStep{
			Name:             s.Name,
			Tool:             s.Tool,
			Args:             s.Args,
			RequiresApproval: requiresApproval,
		})
	}

	summary := plan.Summary
	if summary == "" {
		summary = "Run"
	}
	artifacts := plan.Artifacts
	if artifacts == nil {
		artifacts = []models.PlanArtifact{}
	}
	return &models.Plan{Summary: summary, Artifacts: artifacts, Steps: steps}, nil
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}
