// Command workbenchd runs the workbench orchestrator: HTTP/WebSocket
// API, task queue, scheduler, and retention cleanup in a single
// process, backed by a local SQLite database.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benchforge/workbench/internal/agentloop"
	"github.com/benchforge/workbench/internal/agentroles"
	"github.com/benchforge/workbench/internal/api"
	"github.com/benchforge/workbench/internal/cleanup"
	"github.com/benchforge/workbench/internal/config"
	"github.com/benchforge/workbench/internal/events"
	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/logging"
	"github.com/benchforge/workbench/internal/masking"
	"github.com/benchforge/workbench/internal/mcp"
	"github.com/benchforge/workbench/internal/notify"
	"github.com/benchforge/workbench/internal/orchestrator"
	"github.com/benchforge/workbench/internal/policy"
	"github.com/benchforge/workbench/internal/queue"
	"github.com/benchforge/workbench/internal/scheduler"
	"github.com/benchforge/workbench/internal/services"
	"github.com/benchforge/workbench/internal/skillsrc"
	"github.com/benchforge/workbench/internal/store"
	"github.com/benchforge/workbench/internal/tools"
	"github.com/benchforge/workbench/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "workbenchd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	settings, err := config.Load()
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	logger, logCloser := logging.Init(logging.Config{
		Dir:   settings.LogsDir,
		Level: os.Getenv("LOG_LEVEL"),
	})
	defer logCloser.Close()

	runtimeEnv := config.NewRuntimeEnv(settings.DataDir)
	runtimeEnv.Apply()
	settings, err = config.Load()
	if err != nil {
		return fmt.Errorf("reload settings after runtime overlay: %w", err)
	}

	logger.Info("starting workbenchd", "version", version.Full(), "addr", fmt.Sprintf("%s:%d", settings.Host, settings.Port))

	st, err := store.Open(settings.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	maskingSvc := masking.NewService(settings.MaskingEnabled)

	reg := tools.NewRegistry()
	if err := tools.RegisterFilesystem(reg); err != nil {
		return fmt.Errorf("register filesystem tools: %w", err)
	}
	if err := tools.RegisterShell(reg, tools.ShellConfig{
		Allow:         settings.ShellAllow,
		DockerBackend: settings.ShellDockerBackend,
		DockerImage:   settings.ShellDockerImage,
	}); err != nil {
		return fmt.Errorf("register shell tool: %w", err)
	}
	if err := tools.RegisterStubLeaves(reg); err != nil {
		return fmt.Errorf("register stub tools: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	launcher := mcp.NewLauncher()
	mcpServers, err := st.ListEnabledMcpServers(ctx)
	if err != nil {
		return fmt.Errorf("list mcp servers: %w", err)
	}
	for _, srv := range mcpServers {
		if err := launcher.StartServer(ctx, srv, reg); err != nil {
			logger.Warn("mcp server failed to start", "server", srv.Name, "error", err)
		}
	}

	policyEngine := policy.NewEngine(st)
	policyEngine.Denylist = map[string]bool{}

	provider := llm.NewHTTPChatProvider(settings.LLMBaseURL, settings.LLMAPIKey)

	planner := &agentroles.Planner{Provider: provider, ModelFast: settings.ModelFast, ModelPro: settings.ModelPro}
	executor := &agentroles.Executor{Provider: provider, ModelFast: settings.ModelFast, ModelPro: settings.ModelPro, Logger: logger}
	critic := &agentroles.Critic{Provider: provider, ModelFast: settings.ModelFast, ModelPro: settings.ModelPro}

	classicEngine := &orchestrator.RunEngine{
		Store:        st,
		Tools:        reg,
		Policy:       policyEngine,
		Planner:      planner,
		Executor:     executor,
		Critic:       critic,
		ArtifactsDir: settings.ArtifactsDir,
		Logger:       logger,
		Masking:      maskingSvc,
	}
	agentLoopEngine := &agentloop.RunEngine{
		Store:        st,
		Tools:        reg,
		Policy:       policyEngine,
		Provider:     provider,
		ModelFast:    settings.ModelFast,
		ModelPro:     settings.ModelPro,
		ArtifactsDir: settings.ArtifactsDir,
		Logger:       logger,
		Masking:      maskingSvc,
	}

	pool := queue.NewPool(st, classicEngine, agentLoopEngine, queue.Config{}, logger)

	eventsManager := events.NewManager(events.NewStoreAdapter(st), 5*time.Second)
	slackNotify := notify.NewService(notify.Config{
		Token:        settings.SlackToken,
		Channel:      settings.SlackChannel,
		DashboardURL: settings.SlackDashboardURL,
	}, st)
	st.SetPublisher(notify.NewFanout(events.NewStorePublisher(eventsManager), slackNotify))

	importer := skillsrc.NewImporter(skillsrc.Config{GitHubToken: settings.GitHubToken})

	taskService := &services.TaskService{
		Store:        st,
		Dispatcher:   pool,
		Router:       &services.SkillRouter{Provider: provider, Model: settings.ModelFast},
		Classic:      classicEngine,
		AgentLoop:    agentLoopEngine,
		ArtifactsDir: settings.ArtifactsDir,
		OutputsDir:   settings.ArtifactsDir,
	}
	workspaceService := &services.WorkspaceService{Store: st}
	skillService := &services.SkillService{Store: st, Importer: importer}
	warningsService := services.NewWarningsService()

	sched := &scheduler.Scheduler{
		Store:        st,
		Dispatcher:   pool,
		TickInterval: time.Duration(settings.SchedulerTickSeconds) * time.Second,
		Logger:       logger,
	}

	cleanupSvc := cleanup.NewService(st, settings.ArtifactsDir, cleanup.Config{})

	server := api.NewServer(api.Config{
		Store:      st,
		Tasks:      taskService,
		Workspaces: workspaceService,
		Skills:     skillService,
		Warnings:   warningsService,
		Pool:       pool,
		Events:     eventsManager,
		AdminToken: settings.UIAdminToken,
	})

	pool.Start(ctx)
	cleanupSvc.Start(ctx)
	if settings.SchedulerEnabled {
		go sched.Run(ctx)
	}

	addr := fmt.Sprintf("%s:%d", settings.Host, settings.Port)
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(addr); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sched.Stop()
	cleanupSvc.Stop()
	pool.Stop()

	logger.Info("workbenchd stopped")
	return nil
}
