package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/google/shlex"
)

// ShellConfig gates shell.exec, mirroring the original orchestrator's
// settings.shell_allow / settings.shell_docker_backend / shell_docker_image.
type ShellConfig struct {
	Allow          bool
	DockerBackend  bool
	DockerImage    string
}

const shellOutputCap = 20_000 // bytes of stdout/stderr retained, tail-truncated

// RegisterShell adds the shell.exec tool, grounded on the original
// orchestrator's shell tool module.
func RegisterShell(r *Registry, cfg ShellConfig) error {
	return r.Register(Spec{
		Name:        "shell.exec",
		Description: "Execute a shell command inside the workspace. Returns stdout/stderr/returncode. Use for coding, builds, and automation.",
		InputSchema: schemaObj(map[string]any{
			"command": map[string]any{
				"description": "command string or argv list",
				"anyOf": []any{
					map[string]any{"type": "string"},
					map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			"timeout": intProp(120),
		}, []string{"command"}),
		Risky: true,
		Handler: func(ctx *Context, args map[string]any) (map[string]any, error) {
			return shellExec(ctx, args, cfg)
		},
	})
}

func shellExec(ctx *Context, args map[string]any, cfg ShellConfig) (map[string]any, error) {
	if !cfg.Allow {
		return nil, errors.New("shell execution disabled by server config")
	}

	cmd, err := parseCommand(args["command"])
	if err != nil {
		return nil, err
	}
	if len(cmd) == 0 {
		return nil, errors.New("command is required")
	}

	timeout := 120
	if v, ok := args["timeout"].(float64); ok {
		timeout = int(v)
	}

	if cfg.DockerBackend {
		cmd = append([]string{"docker", "run", "--rm",
			"-v", ctx.WorkspaceRoot + ":/workspace",
			"-w", "/workspace",
			cfg.DockerImage}, cmd...)
	}

	return runLocal(ctx, cmd, ctx.WorkspaceRoot, time.Duration(timeout)*time.Second)
}

func parseCommand(v any) ([]string, error) {
	switch c := v.(type) {
	case string:
		return shlex.Split(c)
	case []any:
		out := make([]string, 0, len(c))
		for _, item := range c {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("command array elements must be strings")
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, errors.New("command must be string or list")
	}
}

func runLocal(parent *Context, cmd []string, cwd string, timeout time.Duration) (map[string]any, error) {
	execCtx, cancel := context.WithTimeout(parent.Context, timeout)
	defer cancel()

	c := exec.CommandContext(execCtx, cmd[0], cmd[1:]...)
	c.Dir = cwd
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	runErr := c.Run()
	returncode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			returncode = exitErr.ExitCode()
		} else {
			return nil, runErr
		}
	}

	return map[string]any{
		"ok":         returncode == 0,
		"returncode": returncode,
		"stdout":     tailString(stdout.String(), shellOutputCap),
		"stderr":     tailString(stderr.String(), shellOutputCap),
	}, nil
}

func tailString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
