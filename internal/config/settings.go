// Package config loads process-wide settings from the environment (with
// an optional .env file) and a small allow-listed runtime_env.json
// overlay, grounded on original_source/services/orchestrator/app's
// config.py/runtime_env.py pair and the teacher's pkg/config idiom for
// everything that ports beyond env-vars-to-struct (error wrapping,
// logging, the allow-listed JSON overlay shape).
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Settings is the umbrella process configuration, populated from the
// environment once at startup. Every field has a workable default so a
// bare `workbenchd` with no .env and no environment still starts.
type Settings struct {
	AppName string
	Host    string
	Port    int

	DataDir       string
	DBPath        string
	WorkspacesDir string
	ArtifactsDir  string
	LogsDir       string

	LLMBaseURL      string
	LLMAPIKey       string
	ModelFast       string
	ModelPro        string
	ModelVision     string
	ModelEmbeddings string

	FSAllowOutsideWorkspace bool
	ShellAllow              bool
	ShellDockerBackend      bool
	ShellDockerImage        string

	BrowserEnabled   bool
	BrowserHeadless  bool
	BrowserTimeoutMS int

	RequireApprovalShell        bool
	RequireApprovalFSWrite      bool
	RequireApprovalFSDelete     bool
	RequireApprovalBrowserClick bool

	SchedulerEnabled     bool
	SchedulerTickSeconds int

	MaskingEnabled bool

	SlackToken        string
	SlackChannel      string
	SlackDashboardURL string

	GitHubToken string

	UIAdminToken string
}

// Load reads a .env file from the working directory if one exists
// (silently skipped when absent — this is a convenience for local
// development, not a requirement), then builds Settings from the
// process environment. Directories named by DataDir/WorkspacesDir/
// ArtifactsDir/LogsDir are created if missing.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	dataDir := envOr("DATA_DIR", filepath.Join(mustCwd(), "data"))

	s := &Settings{
		AppName: envOr("APP_NAME", "OpenAgent Workbench"),
		Host:    envOr("APP_HOST", "0.0.0.0"),
		Port:    envInt("APP_PORT", 8787),

		DataDir:       dataDir,
		DBPath:        envOr("DB_PATH", filepath.Join(dataDir, "workbench.db")),
		WorkspacesDir: envOr("WORKSPACES_DIR", filepath.Join(dataDir, "workspaces")),
		ArtifactsDir:  envOr("ARTIFACTS_DIR", filepath.Join(dataDir, "artifacts")),
		LogsDir:       envOr("LOGS_DIR", filepath.Join(dataDir, "logs")),

		LLMBaseURL:      envOr("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:       envOr("OPENAI_API_KEY", ""),
		ModelFast:       envOr("OPENAI_MODEL_FAST", "gpt-4o-mini"),
		ModelPro:        envOr("OPENAI_MODEL_PRO", "gpt-4o"),
		ModelVision:     envOr("OPENAI_MODEL_VISION", envOr("OPENAI_MODEL_PRO", "gpt-4o")),
		ModelEmbeddings: envOr("OPENAI_MODEL_EMBEDDINGS", "text-embedding-3-small"),

		FSAllowOutsideWorkspace: envBool("FS_ALLOW_OUTSIDE_WORKSPACE", false),
		ShellAllow:              envBool("SHELL_ALLOW", true),
		ShellDockerBackend:      envBool("SHELL_DOCKER_BACKEND", false),
		ShellDockerImage:        envOr("SHELL_DOCKER_IMAGE", "python:3.11-slim"),

		BrowserEnabled:   envBool("BROWSER_ENABLED", true),
		BrowserHeadless:  envBool("BROWSER_HEADLESS", true),
		BrowserTimeoutMS: envInt("BROWSER_TIMEOUT_MS", 45000),

		RequireApprovalShell:        envBool("REQUIRE_APPROVAL_SHELL", true),
		RequireApprovalFSWrite:      envBool("REQUIRE_APPROVAL_FS_WRITE", true),
		RequireApprovalFSDelete:     envBool("REQUIRE_APPROVAL_FS_DELETE", true),
		RequireApprovalBrowserClick: envBool("REQUIRE_APPROVAL_BROWSER_CLICK", true),

		SchedulerEnabled:     envBool("SCHEDULER_ENABLED", true),
		SchedulerTickSeconds: envInt("SCHEDULER_TICK_SECONDS", 5),

		MaskingEnabled: envBool("MASKING_ENABLED", true),

		SlackToken:        envOr("SLACK_BOT_TOKEN", ""),
		SlackChannel:      envOr("SLACK_CHANNEL", ""),
		SlackDashboardURL: envOr("DASHBOARD_URL", ""),

		GitHubToken: envOr("GITHUB_TOKEN", ""),

		UIAdminToken: envOr("UI_ADMIN_TOKEN", "admin"),
	}

	for _, dir := range []string{s.DataDir, s.WorkspacesDir, s.ArtifactsDir, s.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func mustCwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return def
	}
}
