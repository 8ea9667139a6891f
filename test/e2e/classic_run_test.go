package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchforge/workbench/internal/models"
)

// TestClassicRunSucceeds drives a full task lifecycle through the real
// HTTP API: create a workspace and skill, submit a task, let the
// scripted planner/executor/critic roles run a single filesystem.write
// step, and confirm the task reaches "succeeded".
func TestClassicRunSucceeds(t *testing.T) {
	llmClient := NewScriptedLLMClient().
		QueueJSON(`{"summary":"write a greeting file","steps":[
			{"name":"write greeting","tool":"filesystem.write","args":{"path":"hello.txt","content":"hello from workbench"},"requires_approval":false}
		]}`).
		QueueJSON(`{"patch":null}`).
		QueueJSON(`{"ok":true,"issues":[],"fix_steps":[]}`)

	app := NewTestApp(t, WithLLMClient(llmClient))

	ws := app.SeedWorkspace("demo")
	sk := app.SeedSkill("writer", "You write files for the user.", []string{"filesystem.write", "filesystem.read"})

	body, err := json.Marshal(map[string]any{
		"workspace_id": ws.ID,
		"skill_id":     sk.ID,
		"goal":         "write a greeting file",
		"mode":         "fast",
		"backend":      "classic",
	})
	require.NoError(t, err)

	resp, err := http.Post(app.BaseURL+"/api/tasks", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var created struct {
		OK     bool   `json:"ok"`
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.TaskID)

	task := app.WaitForTerminal(created.TaskID, 5*time.Second)
	assert.Equal(t, models.TaskSucceeded, task.Status)
	assert.Empty(t, task.Error)
	assert.NotEmpty(t, task.OutputPath)
}

// TestClassicRunRequiresApproval confirms a workspace policy of
// always_ask suspends the run at the risky step instead of executing
// it, and that approving resumes the run to completion.
func TestClassicRunRequiresApproval(t *testing.T) {
	llmClient := NewScriptedLLMClient().
		QueueJSON(`{"summary":"run a shell command","steps":[
			{"name":"list files","tool":"shell.exec","args":{"command":"ls"},"requires_approval":true}
		]}`).
		QueueJSON(`{"patch":null}`).
		QueueJSON(`{"ok":true,"issues":[],"fix_steps":[]}`)

	app := NewTestApp(t, WithLLMClient(llmClient))
	ws := app.SeedWorkspace("demo2")
	sk := app.SeedSkill("shell-runner", "You run shell commands.", []string{"shell.exec"})

	ctx := context.Background()
	task, err := app.Tasks.CreateTask(ctx, ws.ID, sk.ID, "run a shell command", models.ModeFast, models.BackendClassic)
	require.NoError(t, err)

	waiting := app.WaitForTerminal(task.ID, 5*time.Second)
	assert.Equal(t, models.TaskWaitingApproval, waiting.Status)

	steps, err := app.Store.ListSteps(ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)

	require.NoError(t, app.Classic.ApproveStep(ctx, task.ID, steps[0].ID, true, ""))

	done := app.WaitForTerminal(task.ID, 5*time.Second)
	assert.Equal(t, models.TaskSucceeded, done.Status)
}
