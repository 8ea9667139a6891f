package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/benchforge/workbench/internal/llm"
)

// ScriptedLLMClient is a fake llm.ChatProvider returning a pre-queued
// sequence of responses, one per Chat call, consumed strictly in
// order. Every role internal/orchestrator and internal/agentloop
// drives (planner, executor, critic, or the agent-loop's own
// tool-calling turns) calls Chat sequentially for a single task, so a
// FIFO queue is enough to script an entire run deterministically.
type ScriptedLLMClient struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     []llm.Request
}

type scriptedResponse struct {
	resp *llm.Response
	err  error
}

// NewScriptedLLMClient returns an empty client; use QueueJSON/QueueToolCall/
// QueueError to script responses before it's exercised.
func NewScriptedLLMClient() *ScriptedLLMClient {
	return &ScriptedLLMClient{}
}

// QueueJSON appends a successful response whose Content is the given
// JSON document (the planner/executor/critic roles all request
// JSONObjectMode and parse Content as JSON).
func (c *ScriptedLLMClient) QueueJSON(json string) *ScriptedLLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{resp: &llm.Response{Content: json}})
	return c
}

// QueueToolCall appends a response carrying a single assistant tool
// call, for scripting internal/agentloop's ReAct-style turns.
func (c *ScriptedLLMClient) QueueToolCall(callID, name, argsJSON string) *ScriptedLLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{resp: &llm.Response{
		ToolCalls: []llm.ToolCall{{ID: callID, Name: name, Arguments: argsJSON}},
	}})
	return c
}

// QueueText appends a plain-content final-answer response, for
// internal/agentloop's terminal turn.
func (c *ScriptedLLMClient) QueueText(content string) *ScriptedLLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{resp: &llm.Response{Content: content}})
	return c
}

// QueueError appends a failing response.
func (c *ScriptedLLMClient) QueueError(err error) *ScriptedLLMClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, scriptedResponse{err: err})
	return c
}

// Chat implements llm.ChatProvider, popping the next scripted response.
func (c *ScriptedLLMClient) Chat(ctx context.Context, req llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, req)
	if len(c.responses) == 0 {
		return nil, fmt.Errorf("e2e: scripted LLM client exhausted (call %d had no queued response)", len(c.calls))
	}
	next := c.responses[0]
	c.responses = c.responses[1:]
	return next.resp, next.err
}

// CallCount returns how many Chat calls have been made so far.
func (c *ScriptedLLMClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
