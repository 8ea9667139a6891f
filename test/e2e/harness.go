// Package e2e provides end-to-end test infrastructure for workbenchd:
// a full daemon instance running against a temp-file SQLite database
// and a scripted LLM client, exercised through its real HTTP API.
package e2e

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/benchforge/workbench/internal/agentloop"
	"github.com/benchforge/workbench/internal/agentroles"
	"github.com/benchforge/workbench/internal/api"
	"github.com/benchforge/workbench/internal/events"
	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/masking"
	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/orchestrator"
	"github.com/benchforge/workbench/internal/policy"
	"github.com/benchforge/workbench/internal/queue"
	"github.com/benchforge/workbench/internal/services"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
)

// TestApp boots a complete workbenchd instance for e2e testing.
type TestApp struct {
	Store *store.Store
	LLM   *ScriptedLLMClient

	Classic   *orchestrator.RunEngine
	AgentLoop *agentloop.RunEngine
	Pool      *queue.Pool
	Events    *events.Manager
	Server    *api.Server

	Tasks      *services.TaskService
	Workspaces *services.WorkspaceService
	Skills     *services.SkillService

	BaseURL string
	WSURL   string

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient    *ScriptedLLMClient
	shellAllow   bool
	maskEnabled  bool
	adminToken   string
	artifactsDir string
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted LLM client.
func WithLLMClient(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithShellAllow toggles the shell.exec tool's availability.
func WithShellAllow(allow bool) TestAppOption {
	return func(c *testAppConfig) { c.shellAllow = allow }
}

// WithMasking toggles secret masking of tool output.
func WithMasking(enabled bool) TestAppOption {
	return func(c *testAppConfig) { c.maskEnabled = enabled }
}

// WithAdminToken sets the admin bearer token the API requires.
func WithAdminToken(token string) TestAppOption {
	return func(c *testAppConfig) { c.adminToken = token }
}

// NewTestApp creates and starts a full workbenchd test instance backed
// by a temp-file SQLite database. Shutdown is registered via
// t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{shellAllow: true, maskEnabled: true}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = NewScriptedLLMClient()
	}

	dir := t.TempDir()
	tc.artifactsDir = filepath.Join(dir, "artifacts")

	st, err := store.Open(filepath.Join(dir, "workbench.db"))
	require.NoError(t, err)

	reg := tools.NewRegistry()
	require.NoError(t, tools.RegisterFilesystem(reg))
	require.NoError(t, tools.RegisterShell(reg, tools.ShellConfig{Allow: tc.shellAllow}))
	require.NoError(t, tools.RegisterStubLeaves(reg))

	policyEngine := policy.NewEngine(st)
	maskingSvc := masking.NewService(tc.maskEnabled)

	classic := &orchestrator.RunEngine{
		Store:        st,
		Tools:        reg,
		Policy:       policyEngine,
		Planner:      &agentroles.Planner{Provider: tc.llmClient, ModelFast: "test-fast", ModelPro: "test-pro"},
		Executor:     &agentroles.Executor{Provider: tc.llmClient, ModelFast: "test-fast", ModelPro: "test-pro"},
		Critic:       &agentroles.Critic{Provider: tc.llmClient, ModelFast: "test-fast", ModelPro: "test-pro"},
		ArtifactsDir: tc.artifactsDir,
		Masking:      maskingSvc,
	}
	agentLoop := &agentloop.RunEngine{
		Store:        st,
		Tools:        reg,
		Policy:       policyEngine,
		Provider:     tc.llmClient,
		ModelFast:    "test-fast",
		ModelPro:     "test-pro",
		ArtifactsDir: tc.artifactsDir,
		Masking:      maskingSvc,
	}

	pool := queue.NewPool(st, classic, agentLoop, queue.Config{
		WorkerCount:  1,
		PollInterval: 20 * time.Millisecond,
	}, nil)

	eventsManager := events.NewManager(events.NewStoreAdapter(st), 5*time.Second)
	st.SetPublisher(events.NewStorePublisher(eventsManager))

	taskService := &services.TaskService{
		Store:        st,
		Dispatcher:   pool,
		Router:       &services.SkillRouter{Provider: tc.llmClient, Model: "test-fast"},
		Classic:      classic,
		AgentLoop:    agentLoop,
		ArtifactsDir: tc.artifactsDir,
		OutputsDir:   tc.artifactsDir,
	}
	workspaceService := &services.WorkspaceService{Store: st}
	skillService := &services.SkillService{Store: st}
	warningsService := services.NewWarningsService()

	server := api.NewServer(api.Config{
		Store:      st,
		Tasks:      taskService,
		Workspaces: workspaceService,
		Skills:     skillService,
		Warnings:   warningsService,
		Pool:       pool,
		Events:     eventsManager,
		AdminToken: tc.adminToken,
	})

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.StartWithListener(ln) }()

	addr := ln.Addr().String()
	app := &TestApp{
		Store:      st,
		LLM:        tc.llmClient,
		Classic:    classic,
		AgentLoop:  agentLoop,
		Pool:       pool,
		Events:     eventsManager,
		Server:     server,
		Tasks:      taskService,
		Workspaces: workspaceService,
		Skills:     skillService,
		BaseURL:    fmt.Sprintf("http://%s", addr),
		WSURL:      fmt.Sprintf("ws://%s/api/ws", addr),
		t:          t,
	}

	t.Cleanup(func() {
		pool.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
		cancel()
		_ = st.Close()
	})

	return app
}

// SeedWorkspace creates a workspace rooted at a fresh temp directory.
func (a *TestApp) SeedWorkspace(name string) *models.Workspace {
	a.t.Helper()
	ws, err := a.Workspaces.Create(context.Background(), name, a.t.TempDir())
	require.NoError(a.t, err)
	return ws
}

// SeedSkill creates a skill with the given system prompt and allowlist.
func (a *TestApp) SeedSkill(name, systemPrompt string, allowedTools []string) *models.Skill {
	a.t.Helper()
	sk, err := a.Skills.Create(context.Background(), &models.Skill{
		Name:         name,
		SystemPrompt: systemPrompt,
		AllowedTools: allowedTools,
		DefaultMode:  models.ModeFast,
	})
	require.NoError(a.t, err)
	return sk
}

// WaitForTerminal polls the task until it reaches a terminal status or
// the deadline elapses.
func (a *TestApp) WaitForTerminal(taskID string, timeout time.Duration) *models.Task {
	a.t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := a.Store.GetTask(context.Background(), taskID)
		require.NoError(a.t, err)
		if task.Status.IsTerminal() || task.Status == models.TaskWaitingApproval {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	a.t.Fatalf("task %s did not reach a terminal status within %s", taskID, timeout)
	return nil
}
