package mcp

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/benchforge/workbench/internal/models"
)

// HealthcheckTimeout bounds how long a server's healthcheck command may
// run before it is killed and reported as timed out.
const HealthcheckTimeout = 5 * time.Second

// HealthcheckResult is the outcome of probing one MCP server's
// healthcheck command directly (not through the MCP protocol itself —
// this is a plain subprocess probe, run whether or not a session to
// the server is currently open).
type HealthcheckResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Err      error
}

// defaultHealthcheckArgs is used when a server configures none.
var defaultHealthcheckArgs = []string{"--version"}

// Healthcheck runs srv.Command with srv.HealthcheckArgs (or
// defaultHealthcheckArgs if unset), bounded by HealthcheckTimeout, and
// reports its exit code and captured output. This does not go through
// an MCP session — it is a cheap liveness probe usable even for a
// server the Launcher has not (yet) started.
func Healthcheck(ctx context.Context, srv models.McpServer) HealthcheckResult {
	args := srv.HealthcheckArgs
	if len(args) == 0 {
		args = defaultHealthcheckArgs
	}

	hcCtx, cancel := context.WithTimeout(ctx, HealthcheckTimeout)
	defer cancel()

	cmd := exec.CommandContext(hcCtx, srv.Command, args...)
	cmd.Env = mergeEnv(srv.Env)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := HealthcheckResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if hcCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.Err = hcCtx.Err()
		res.ExitCode = -1
		return res
	}
	if err != nil {
		res.Err = err
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
		}
		return res
	}
	res.ExitCode = cmd.ProcessState.ExitCode()
	return res
}
