// Package mcp launches subprocess-hosted MCP servers over stdio and
// adopts their advertised tools into the shared internal/tools registry
// under the "mcp/<server>/<tool>" namespace.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/benchforge/workbench/internal/models"
	"github.com/benchforge/workbench/internal/tools"
	"github.com/benchforge/workbench/internal/version"
)

// Timeouts for MCP session lifecycle operations.
const (
	InitTimeout      = 30 * time.Second
	OperationTimeout = 90 * time.Second
)

// Launcher owns one live MCP client session per configured server and
// registers the tools each advertises into a tools.Registry.
type Launcher struct {
	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession
	failed   map[string]string

	logger *slog.Logger
}

// NewLauncher constructs an empty Launcher.
func NewLauncher() *Launcher {
	return &Launcher{
		sessions: make(map[string]*mcpsdk.ClientSession),
		failed:   make(map[string]string),
		logger:   slog.Default().With("component", "mcp"),
	}
}

// StartServer spawns srv's command over stdio, performs the MCP
// handshake, lists its tools, and registers each as
// "mcp/<srv.Name>/<tool>" into reg. A server that fails to start is
// recorded in FailedServers rather than aborting the whole startup
// sequence, so one misconfigured server doesn't take down the daemon.
func (l *Launcher) StartServer(ctx context.Context, srv models.McpServer, reg *tools.Registry) error {
	if !srv.Enabled {
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, InitTimeout)
	defer cancel()

	transport, err := commandTransport(srv)
	if err != nil {
		l.recordFailure(srv.Name, err)
		return fmt.Errorf("mcp: build transport for %q: %w", srv.Name, err)
	}

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    version.AppName,
		Version: version.GitCommit,
	}, nil)

	session, err := client.Connect(initCtx, transport, nil)
	if err != nil {
		l.recordFailure(srv.Name, err)
		return fmt.Errorf("mcp: connect to %q: %w", srv.Name, err)
	}

	listCtx, listCancel := context.WithTimeout(ctx, OperationTimeout)
	defer listCancel()
	result, err := session.ListTools(listCtx, nil)
	if err != nil {
		_ = session.Close()
		l.recordFailure(srv.Name, err)
		return fmt.Errorf("mcp: list tools from %q: %w", srv.Name, err)
	}

	l.mu.Lock()
	l.sessions[srv.Name] = session
	delete(l.failed, srv.Name)
	l.mu.Unlock()

	for _, tool := range result.Tools {
		if err := l.registerTool(reg, srv.Name, tool); err != nil {
			l.logger.Warn("skipping mcp tool with unregisterable schema",
				"server", srv.Name, "tool", tool.Name, "error", err)
		}
	}

	l.logger.Info("mcp server started", "server", srv.Name, "tool_count", len(result.Tools))
	return nil
}

func (l *Launcher) registerTool(reg *tools.Registry, serverName string, tool *mcpsdk.Tool) error {
	qualified := fmt.Sprintf("mcp/%s/%s", serverName, tool.Name)
	schema := inputSchemaAsMap(tool)

	serverName, toolName := serverName, tool.Name
	return reg.Register(tools.Spec{
		Name:        qualified,
		Description: tool.Description,
		InputSchema: schema,
		Risky:       true,
		Handler: func(tc *tools.Context, args map[string]any) (map[string]any, error) {
			return l.callTool(tc, serverName, toolName, args)
		},
	})
}

func (l *Launcher) callTool(ctx context.Context, serverName, toolName string, args map[string]any) (map[string]any, error) {
	l.mu.RLock()
	session, ok := l.sessions[serverName]
	l.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("mcp: no active session for server %q", serverName)
	}

	opCtx, cancel := context.WithTimeout(ctx, OperationTimeout)
	defer cancel()

	result, err := session.CallTool(opCtx, &mcpsdk.CallToolParams{Name: toolName, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("mcp: call %s/%s: %w", serverName, toolName, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("mcp: %s/%s reported an error: %s", serverName, toolName, textContent(result))
	}
	return map[string]any{"content": textContent(result), "is_error": result.IsError}, nil
}

func textContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// inputSchemaAsMap round-trips the SDK's typed schema through JSON so
// it can be fed to internal/tools' jsonschema-based Registry.Register,
// which compiles schemas from a decoded document rather than the SDK's
// own schema type. Falls back to an open object schema when the server
// advertised none, or it failed to marshal.
func inputSchemaAsMap(tool *mcpsdk.Tool) map[string]any {
	fallback := map[string]any{"type": "object"}
	if tool.InputSchema == nil {
		return fallback
	}
	data, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return fallback
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return fallback
	}
	return m
}

func (l *Launcher) recordFailure(serverName string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed[serverName] = err.Error()
}

// FailedServers returns server name -> last error for servers that
// failed to start, for surfacing on a readiness/status endpoint.
func (l *Launcher) FailedServers() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]string, len(l.failed))
	for k, v := range l.failed {
		out[k] = v
	}
	return out
}

// Close shuts down every live session.
func (l *Launcher) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for name, session := range l.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp: close session %q: %w", name, err)
		}
	}
	l.sessions = make(map[string]*mcpsdk.ClientSession)
	return firstErr
}

func commandTransport(srv models.McpServer) (*mcpsdk.CommandTransport, error) {
	if srv.Command == "" {
		return nil, fmt.Errorf("server %q has no command", srv.Name)
	}
	cmd := exec.Command(srv.Command, srv.Args...)
	cmd.Env = mergeEnv(srv.Env)
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}
