package orchestrator

import (
	"context"
	"fmt"

	"github.com/benchforge/workbench/internal/agentroles"
	"github.com/benchforge/workbench/internal/store"
)

// MaxPlanSteps bounds how large a plan may grow via patches, mirroring
// the ported implementation's hard plan-size guard.
const MaxPlanSteps = 25

// ErrPlanTooLarge is returned when applying a patch would push a plan
// past MaxPlanSteps; callers treat this like a bad initial plan and
// fail the step/task rather than applying a partial patch.
var ErrPlanTooLarge = fmt.Errorf("orchestrator: patch would exceed %d-step plan cap", MaxPlanSteps)

// applyPatch mutates a task's persisted step list per patch: remove_steps
// is applied first (point deletes by idx), then if replace_steps_from_idx
// is set every step at or after that idx is dropped and patch.AddSteps is
// inserted there; otherwise AddSteps is appended after the current max
// idx. This ordering matches the ported engine's _apply_patch, which
// deletes remove_steps before handling the replace-from-idx block.
func applyPatch(ctx context.Context, s *store.Store, taskID string, patch *agentroles.Patch) error {
	if patch == nil {
		return nil
	}

	for _, idx := range patch.RemoveSteps {
		if err := s.DeleteStepAtIdx(ctx, taskID, idx); err != nil {
			return fmt.Errorf("orchestrator: remove step %d: %w", idx, err)
		}
	}

	maxIdx, err := s.MaxStepIdx(ctx, taskID)
	if err != nil {
		return fmt.Errorf("orchestrator: max step idx: %w", err)
	}

	var startIdx int
	if patch.ReplaceStepsFromIdx != nil {
		startIdx = *patch.ReplaceStepsFromIdx
		if _, err := s.DeleteStepsFrom(ctx, taskID, startIdx); err != nil {
			return fmt.Errorf("orchestrator: replace steps from %d: %w", startIdx, err)
		}
		if startIdx-1 > maxIdx {
			maxIdx = startIdx - 1
		}
	} else {
		startIdx = maxIdx + 1
	}

	if startIdx+len(patch.AddSteps) > MaxPlanSteps {
		return ErrPlanTooLarge
	}

	for i, ps := range patch.AddSteps {
		if _, err := s.CreateStep(ctx, taskID, startIdx+i, ps.Name, ps.Tool, ps.Args, ps.RequiresApproval); err != nil {
			return fmt.Errorf("orchestrator: insert patch step: %w", err)
		}
	}
	return nil
}
