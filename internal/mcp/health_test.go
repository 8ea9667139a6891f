package mcp

import (
	"context"
	"testing"

	"github.com/benchforge/workbench/internal/models"
	"github.com/stretchr/testify/require"
)

func TestHealthcheckCapturesExitCodeAndOutput(t *testing.T) {
	srv := models.McpServer{
		Name:            "echoer",
		Command:         "/bin/sh",
		HealthcheckArgs: []string{"-c", "echo out; echo err 1>&2; exit 3"},
	}
	res := Healthcheck(context.Background(), srv)
	require.Equal(t, 3, res.ExitCode)
	require.Contains(t, res.Stdout, "out")
	require.Contains(t, res.Stderr, "err")
	require.False(t, res.TimedOut)
}

func TestHealthcheckDefaultsToVersionFlag(t *testing.T) {
	srv := models.McpServer{Name: "noargs", Command: "/bin/sh", HealthcheckArgs: nil}
	// /bin/sh --version behavior varies by shell; just assert it doesn't
	// panic and reports some exit code without timing out.
	res := Healthcheck(context.Background(), srv)
	require.False(t, res.TimedOut)
}

func TestHealthcheckTimesOutOnHangingCommand(t *testing.T) {
	srv := models.McpServer{
		Name:            "hangs",
		Command:         "/bin/sh",
		HealthcheckArgs: []string{"-c", "sleep 30"},
	}
	res := Healthcheck(context.Background(), srv)
	require.True(t, res.TimedOut)
}
