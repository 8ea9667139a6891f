package agentroles

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/models"
)

// Patch is a structured modification to a plan's step list, proposed
// by the Executor role between step executions (spec.md §4.5).
type Patch struct {
	Reason               string           `json:"reason"`
	AddSteps             []models.PlanStep `json:"add_steps"`
	ReplaceStepsFromIdx  *int             `json:"replace_steps_from_idx"`
	RemoveSteps          []int            `json:"remove_steps"`
}

type patchEnvelope struct {
	Patch *rawPatch `json:"patch"`
}

type rawPatch struct {
	Reason              string    `json:"reason"`
	AddSteps            []rawStep `json:"add_steps"`
	ReplaceStepsFromIdx *int      `json:"replace_steps_from_idx"`
	RemoveSteps         []int     `json:"remove_steps"`
}

// RecentResult is one step's outcome, as fed to the Executor so it can
// judge whether the remaining plan still makes sense.
type RecentResult struct {
	StepIdx int            `json:"step_idx"`
	Tool    string         `json:"tool"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Executor proposes plan patches after each successful step. A nil
// patch and a nil error both mean "no change needed" — per spec.md
// §4.6's instruction to abort the patch step silently on a JSON
// violation rather than failing the task, a parse failure also
// returns (nil, nil) after logging.
type Executor struct {
	Provider  llm.ChatProvider
	ModelFast string
	ModelPro  string
	Logger    *slog.Logger
}

// Propose asks the model whether plan needs patching given progress so
// far. recentResults should be the caller's last few step outcomes (the
// ported implementation passes the most recent 3).
func (e *Executor) Propose(ctx context.Context, goal string, plan *models.Plan, currentStepIdx int, recentResults []RecentResult, allowedTools []string, mode, skillSystemPrompt string, tools []ToolSummary) (*Patch, error) {
	model := modelForMode(mode, e.ModelFast, e.ModelPro)
	sys := executorSystem
	if skillSystemPrompt != "" {
		sys += "\n\nSKILL_CONTEXT:\n" + skillSystemPrompt
	}
	sys += "\n\nALLOWED_TOOLS:\n" + toolsSummary(tools)

	userPayload := map[string]any{
		"goal":             goal,
		"current_step_idx": currentStepIdx,
		"plan":             plan,
		"recent_results":   lastN(recentResults, 3),
	}
	userJSON, err := json.Marshal(userPayload)
	if err != nil {
		return nil, err
	}

	resp, err := e.Provider.Chat(ctx, llm.Request{
		Model: model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: sys},
			{Role: llm.RoleUser, Content: string(userJSON)},
		},
		Temperature:    0.2,
		JSONObjectMode: true,
	})
	if err != nil {
		e.log().Warn("executor call failed, skipping patch this turn", "error", err)
		return nil, nil
	}

	var env patchEnvelope
	if err := extractJSON(resp.Content, &env); err != nil {
		e.log().Warn("executor produced unparseable JSON, skipping patch this turn")
		return nil, nil
	}
	if env.Patch == nil {
		return nil, nil
	}

	addSteps := make([]models.PlanStep, 0, len(env.Patch.AddSteps))
	for _, s := range env.Patch.AddSteps {
		requiresApproval := false
		if s.RequiresApproval != nil {
			requiresApproval = *s.RequiresApproval
		}
		addSteps = append(addSteps, models.PlanStep{
			Name: s.Name, Tool: s.Tool, Args: s.Args, RequiresApproval: requiresApproval,
		})
	}

	return &Patch{
		Reason:              env.Patch.Reason,
		AddSteps:            addSteps,
		ReplaceStepsFromIdx: env.Patch.ReplaceStepsFromIdx,
		RemoveSteps:         env.Patch.RemoveSteps,
	}, nil
}

func (e *Executor) log() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func lastN(items []RecentResult, n int) []RecentResult {
	if len(items) <= n {
		return items
	}
	return items[len(items)-n:]
}
