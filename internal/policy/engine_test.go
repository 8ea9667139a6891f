package policy

import (
	"context"
	"testing"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	policies map[string]models.PolicyDecision // workspaceID+"/"+scope -> policy
}

func (f *fakeStore) GetWorkspacePolicy(ctx context.Context, workspaceID, scope string) (*models.WorkspacePolicy, error) {
	p, ok := f.policies[workspaceID+"/"+scope]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &models.WorkspacePolicy{WorkspaceID: workspaceID, Scope: scope, Policy: p}, nil
}

func TestEvaluateDefaultsAllowReadWrite(t *testing.T) {
	e := NewEngine(&fakeStore{policies: map[string]models.PolicyDecision{}})
	d, err := e.Evaluate(context.Background(), "ws1", "filesystem.read_text", "t1", false)
	require.NoError(t, err)
	require.True(t, d.Allow)
	require.Equal(t, ModeAuto, d.Mode)
}

func TestEvaluateShellDefaultsAskOnceRequiresApproval(t *testing.T) {
	e := NewEngine(&fakeStore{policies: map[string]models.PolicyDecision{}})
	d, err := e.Evaluate(context.Background(), "ws1", "shell.exec", "t1", true)
	require.NoError(t, err)
	require.False(t, d.Allow)
	require.Equal(t, ModeRequireApproval, d.Mode)
}

func TestEvaluateAskOnceGrantedProceedsAuto(t *testing.T) {
	e := NewEngine(&fakeStore{policies: map[string]models.PolicyDecision{}})
	e.Grant("t1", tools.ScopeForTool("shell.exec"))
	d, err := e.Evaluate(context.Background(), "ws1", "shell.exec", "t1", true)
	require.NoError(t, err)
	require.True(t, d.Allow)
	require.Equal(t, ModeAuto, d.Mode)
}

func TestEvaluateAlwaysDenyBlocksApprovalRequiringStep(t *testing.T) {
	e := NewEngine(&fakeStore{policies: map[string]models.PolicyDecision{"ws1/shell": models.PolicyAlwaysDeny}})
	d, err := e.Evaluate(context.Background(), "ws1", "shell.exec", "t1", true)
	require.NoError(t, err)
	require.False(t, d.Allow)
	require.Equal(t, ModeDeny, d.Mode)
}

func TestEvaluateAlwaysAllowOverridesDefault(t *testing.T) {
	e := NewEngine(&fakeStore{policies: map[string]models.PolicyDecision{"ws1/shell": models.PolicyAlwaysAllow}})
	d, err := e.Evaluate(context.Background(), "ws1", "shell.exec", "t1", true)
	require.NoError(t, err)
	require.True(t, d.Allow)
	require.Equal(t, ModeAuto, d.Mode)
}

func TestEvaluateDenylistWins(t *testing.T) {
	e := NewEngine(&fakeStore{policies: map[string]models.PolicyDecision{"ws1/shell": models.PolicyAlwaysAllow}})
	e.Denylist = map[string]bool{"shell.exec": true}
	d, err := e.Evaluate(context.Background(), "ws1", "shell.exec", "t1", true)
	require.NoError(t, err)
	require.False(t, d.Allow)
	require.Equal(t, ModeDeny, d.Mode)
}

func TestClearTaskGrantsRemovesGrant(t *testing.T) {
	e := NewEngine(&fakeStore{policies: map[string]models.PolicyDecision{}})
	e.Grant("t1", tools.ScopeForTool("shell.exec"))
	e.ClearTaskGrants("t1")
	d, err := e.Evaluate(context.Background(), "ws1", "shell.exec", "t1", true)
	require.NoError(t, err)
	require.Equal(t, ModeRequireApproval, d.Mode)
}
