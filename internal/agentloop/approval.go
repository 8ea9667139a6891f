package agentloop

import (
	"context"
	"fmt"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
)

// insertPendingApprovalStep synthesizes a step row for a tool call the
// policy engine is holding for approval, so the rest of the system
// (listSteps, the events feed, the approve-step API) has a uniform
// "step" to point at regardless of which run backend produced it.
// Grounded on the ported implementation's _insert_pending_approval_step,
// which stores the same tool_call_id/tool/arguments triple in args_json
// so approval can later reconstruct and execute the exact call.
func insertPendingApprovalStep(ctx context.Context, s *store.Store, taskID string, tc llm.ToolCall) (*models.Step, error) {
	maxIdx, err := s.MaxStepIdx(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("agentloop: max step idx: %w", err)
	}
	args := map[string]any{
		"tool_call_id": tc.ID,
		"tool":         tc.Name,
		"arguments":    tc.Arguments,
	}
	step, err := s.CreateStep(ctx, taskID, maxIdx+1, "Approval: "+tc.Name, tc.Name, args, true)
	if err != nil {
		return nil, fmt.Errorf("agentloop: insert pending approval step: %w", err)
	}
	waiting := models.StepWaitingApproval
	if err := s.UpdateStep(ctx, step.ID, store.StepFields{Status: &waiting}); err != nil {
		return nil, fmt.Errorf("agentloop: mark step waiting_approval: %w", err)
	}
	step.Status = waiting
	return step, nil
}
