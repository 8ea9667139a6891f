// Package policy implements the permission engine gating tool
// execution: a coarse per-workspace policy per scope, combined with an
// in-memory "ask once per task" grant set so a user approving one step
// doesn't need to re-approve every later step of the same scope.
package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
)

// Mode is the engine's dispatch instruction for a tool call.
type Mode string

// Mode values, per spec.md §4.4.
const (
	ModeAuto            Mode = "auto"
	ModeRequireApproval Mode = "require_approval"
	ModeDeny            Mode = "deny"
)

// Decision is the engine's verdict for one tool invocation.
type Decision struct {
	Allow  bool
	Mode   Mode
	Reason string
}

// PolicyStore is the subset of internal/store.Store the engine needs.
type PolicyStore interface {
	GetWorkspacePolicy(ctx context.Context, workspaceID, scope string) (*models.WorkspacePolicy, error)
}

// Engine evaluates tool-call permission decisions and owns the
// process-lifetime ask-once grant set. Per spec.md §3, ask-once grants
// belong to the run process and are never persisted — a restart clears
// them and every scope is asked again (Open Question decision, see
// DESIGN.md).
type Engine struct {
	store PolicyStore

	mu     sync.Mutex
	grants map[string]map[tools.Scope]bool // task_id -> scope -> granted

	// Denylist holds tool names the hard safety floor always denies,
	// regardless of workspace policy (spec.md §4.4 rule 1).
	Denylist map[string]bool
}

// NewEngine constructs a policy engine backed by the durable workspace
// policy store.
func NewEngine(store PolicyStore) *Engine {
	return &Engine{
		store:  store,
		grants: make(map[string]map[tools.Scope]bool),
	}
}

// Evaluate implements the rules of spec.md §4.4 in order.
func (e *Engine) Evaluate(ctx context.Context, workspaceID, toolName, taskID string, stepRequiresApproval bool) (Decision, error) {
	// Rule 1: hard safety floor.
	if e.Denylist[toolName] {
		return Decision{Allow: false, Mode: ModeDeny, Reason: fmt.Sprintf("tool %q is denylisted", toolName)}, nil
	}

	scope := tools.ScopeForTool(toolName)

	policy, err := e.resolvePolicy(ctx, workspaceID, scope)
	if err != nil {
		return Decision{}, err
	}

	// Rule 3: always_deny, but only binding when the step would have
	// required approval anyway or the scope itself is inherently
	// approval-worthy (network, mcp) — matches engine.py's behavior of
	// only enforcing always_deny on the approval-gated path.
	requiresApproval := stepRequiresApproval || scope == tools.ScopeNetwork || scope == tools.ScopeMCP
	if policy == models.PolicyAlwaysDeny && requiresApproval {
		return Decision{Allow: false, Mode: ModeDeny, Reason: fmt.Sprintf("denied by policy (%s)", scope)}, nil
	}

	// Rule 4: always_allow.
	if policy == models.PolicyAlwaysAllow {
		return Decision{Allow: true, Mode: ModeAuto}, nil
	}

	if !requiresApproval {
		return Decision{Allow: true, Mode: ModeAuto}, nil
	}

	// Rule 5: ask_once already granted this task.
	if policy == models.PolicyAskOnce && e.isGranted(taskID, scope) {
		return Decision{Allow: true, Mode: ModeAuto}, nil
	}

	// Rule 6: require approval.
	return Decision{Allow: false, Mode: ModeRequireApproval, Reason: fmt.Sprintf("approval required for scope %s", scope)}, nil
}

// resolvePolicy loads the workspace's explicit policy for scope,
// falling back to spec.md §4.4 rule 2's scope-keyed default:
// network/fs_read/fs_write default to always_allow, everything else to
// ask_once.
func (e *Engine) resolvePolicy(ctx context.Context, workspaceID string, scope tools.Scope) (models.PolicyDecision, error) {
	p, err := e.store.GetWorkspacePolicy(ctx, workspaceID, string(scope))
	if err == nil {
		return p.Policy, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	switch scope {
	case tools.ScopeNetwork, tools.ScopeFSRead, tools.ScopeFSWrite:
		return models.PolicyAlwaysAllow, nil
	default:
		return models.PolicyAskOnce, nil
	}
}

// Grant records that a task's scope has been approved at least once,
// so later steps of the same scope in the same task proceed unattended.
// Called by internal/orchestrator after an approval is decided.
func (e *Engine) Grant(taskID string, scope tools.Scope) {
	if scope == "" {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.grants[taskID]
	if !ok {
		m = make(map[tools.Scope]bool)
		e.grants[taskID] = m
	}
	m[scope] = true
}

func (e *Engine) isGranted(taskID string, scope tools.Scope) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.grants[taskID] != nil && e.grants[taskID][scope]
}

// ClearTaskGrants drops a task's ask-once grants, called once the task
// reaches a terminal state so the process-lifetime map doesn't grow
// without bound across many short-lived tasks.
func (e *Engine) ClearTaskGrants(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.grants, taskID)
}
