// Package llm provides the ChatProvider abstraction over an
// OpenAI-chat-compatible HTTP endpoint, tolerant of the streaming
// quirks real gateways exhibit: reasoning_content fallback, multi-line
// SSE data frames, gateways that ignore stream=true, and transient
// empty streams.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Role is a chat message role.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of a chat conversation.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall // set on assistant messages that called a tool
	ToolCallID string     // set on tool-result messages
	Name       string     // tool name, set on tool-result messages
}

// ToolCall is a single function-call the model requested.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON
}

// ToolDef describes a tool available to the model, in OpenAI's
// {type: "function", function: {...}} shape.
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON-Schema
}

// Request is a chat completion request.
type Request struct {
	Model          string
	Messages       []Message
	Tools          []ToolDef
	Temperature    float64
	MaxTokens      int // 0 means unset
	JSONObjectMode bool
	TimeoutSeconds int // 0 means DefaultTimeout
}

// Response is the aggregated result of a chat completion, whether it
// arrived as a single JSON body or was assembled from a stream.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Raw       map[string]any
}

// ErrEmptyStream is returned internally when a streamed response
// yielded no content and no tool calls; Chat retries up to
// maxEmptyStreamRetries before surfacing it to the caller.
type ErrEmptyStream struct{}

func (ErrEmptyStream) Error() string { return "llm: empty stream" }

// ChatProvider is the abstraction every LLM-calling component in this
// repository (internal/agentroles, internal/agentloop) programs
// against, so tests can substitute a fake implementation.
type ChatProvider interface {
	Chat(ctx context.Context, req Request) (*Response, error)
}

const (
	// DefaultTimeout bounds a single chat completion call.
	DefaultTimeout        = 120 * time.Second
	maxEmptyStreamRetries = 3
)

// HTTPChatProvider talks to an OpenAI-chat-compatible /chat/completions
// endpoint over plain HTTP, always requesting stream=true and parsing
// Server-Sent Events, per spec's transport requirement.
type HTTPChatProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
	logger  *slog.Logger
}

// NewHTTPChatProvider constructs a provider against baseURL (no trailing
// slash required) authenticating with apiKey as a Bearer token.
func NewHTTPChatProvider(baseURL, apiKey string) *HTTPChatProvider {
	return &HTTPChatProvider{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{},
		logger:  slog.Default().With("component", "llm"),
	}
}

// Chat sends req and returns the aggregated response, retrying up to
// maxEmptyStreamRetries times if the gateway streams back nothing.
func (p *HTTPChatProvider) Chat(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxEmptyStreamRetries; attempt++ {
		resp, err := p.chatOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, empty := err.(ErrEmptyStream); !empty {
			return nil, err
		}
		lastErr = err
		p.logger.Warn("empty llm stream, retrying", "attempt", attempt+1, "model", req.Model)
	}
	return nil, fmt.Errorf("llm: chat failed after %d attempts: %w", maxEmptyStreamRetries, lastErr)
}

func (p *HTTPChatProvider) chatOnce(ctx context.Context, req Request) (*Response, error) {
	payload := p.buildPayload(req)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	timeout := DefaultTimeout
	if req.TimeoutSeconds > 0 {
		timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	httpCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(httpCtx, http.MethodPost, p.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(httpResp.Body, 800))
		return nil, fmt.Errorf("llm: chat/completions failed: %d %s", httpResp.StatusCode, string(b))
	}

	contentType := httpResp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/event-stream") {
		// The gateway ignored stream=true; parse as a plain JSON body.
		return parseNonStreamingBody(httpResp.Body, req.Model)
	}
	return parseSSE(httpResp.Body, req.Model)
}

func (p *HTTPChatProvider) buildPayload(req Request) map[string]any {
	messages := make([]map[string]any, 0, len(req.Messages))
	for _, m := range req.Messages {
		msg := map[string]any{"role": string(m.Role)}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			msg["content"] = m.Content
		}
		if m.ToolCallID != "" {
			msg["tool_call_id"] = m.ToolCallID
		}
		if m.Name != "" {
			msg["name"] = m.Name
		}
		if len(m.ToolCalls) > 0 {
			tcs := make([]map[string]any, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				tcs = append(tcs, map[string]any{
					"id":   tc.ID,
					"type": "function",
					"function": map[string]any{
						"name":      tc.Name,
						"arguments": tc.Arguments,
					},
				})
			}
			msg["tool_calls"] = tcs
		}
		messages = append(messages, msg)
	}

	payload := map[string]any{
		"model":       req.Model,
		"messages":    messages,
		"temperature": req.Temperature,
		"stream":      true,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.JSONObjectMode {
		payload["response_format"] = map[string]any{"type": "json_object"}
	}
	if len(req.Tools) > 0 {
		tools := make([]map[string]any, 0, len(req.Tools))
		for _, t := range req.Tools {
			tools = append(tools, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		payload["tools"] = tools
	}
	return payload
}

// parseNonStreamingBody handles gateways that respond with a full JSON
// body despite stream=true being requested.
func parseNonStreamingBody(r io.Reader, model string) (*Response, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}
	root := gjson.ParseBytes(data)
	msg := root.Get("choices.0.message")
	content := msg.Get("content").String()
	if content == "" {
		content = msg.Get("reasoning_content").String()
	}
	toolCalls := parseToolCallsJSON(msg.Get("tool_calls"))

	var raw map[string]any
	_ = json.Unmarshal(data, &raw)
	if content == "" && len(toolCalls) == 0 {
		return nil, ErrEmptyStream{}
	}
	return &Response{Content: content, ToolCalls: toolCalls, Raw: raw}, nil
}

// parseSSE reads an OpenAI-compatible Server-Sent Events body,
// concatenating multi-line data: frames per event, falling back to
// reasoning_content when content and tool_calls are both empty, and
// assembling streamed tool-call argument fragments by index.
func parseSSE(r io.Reader, model string) (*Response, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var contentBuilder strings.Builder
	toolCallsByIndex := map[int]*ToolCall{}
	toolCallOrder := []int{}
	var lastChunk map[string]any
	var dataBuf strings.Builder

	flushEvent := func() {
		data := strings.TrimSpace(dataBuf.String())
		dataBuf.Reset()
		if data == "" || data == "[DONE]" {
			return
		}
		chunk := gjson.Parse(data)
		if !chunk.IsObject() {
			return
		}
		var cm map[string]any
		_ = json.Unmarshal([]byte(data), &cm)
		lastChunk = cm

		delta := chunk.Get("choices.0.delta")
		if !delta.Exists() {
			// Some gateways send a full "message" instead of a delta.
			delta = chunk.Get("choices.0.message")
		}
		if !delta.Exists() {
			return
		}

		content := delta.Get("content").String()
		if content == "" {
			content = delta.Get("reasoning_content").String()
		}
		contentBuilder.WriteString(content)

		delta.Get("tool_calls").ForEach(func(_, tc gjson.Result) bool {
			idx := int(tc.Get("index").Int())
			cur, ok := toolCallsByIndex[idx]
			if !ok {
				cur = &ToolCall{}
				toolCallsByIndex[idx] = cur
				toolCallOrder = append(toolCallOrder, idx)
			}
			if id := tc.Get("id").String(); id != "" {
				cur.ID = id
			}
			if name := tc.Get("function.name").String(); name != "" {
				cur.Name = name
			}
			cur.Arguments += tc.Get("function.arguments").String()
			return true
		})
		return
	}

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			flushEvent()
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimPrefix(line, "data:")
		payload = strings.TrimPrefix(payload, " ")
		if dataBuf.Len() > 0 {
			dataBuf.WriteByte('\n')
		}
		dataBuf.WriteString(payload)
	}
	flushEvent()
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("llm: read stream: %w", err)
	}

	toolCalls := make([]ToolCall, 0, len(toolCallOrder))
	for _, idx := range sortInts(toolCallOrder) {
		toolCalls = append(toolCalls, *toolCallsByIndex[idx])
	}
	content := contentBuilder.String()

	if content == "" && len(toolCalls) == 0 {
		return nil, ErrEmptyStream{}
	}

	if lastChunk == nil {
		lastChunk = map[string]any{"model": model, "choices": []any{}}
	}
	return &Response{Content: content, ToolCalls: toolCalls, Raw: lastChunk}, nil
}

func parseToolCallsJSON(r gjson.Result) []ToolCall {
	var out []ToolCall
	r.ForEach(func(_, tc gjson.Result) bool {
		out = append(out, ToolCall{
			ID:        tc.Get("id").String(),
			Name:      tc.Get("function.name").String(),
			Arguments: tc.Get("function.arguments").String(),
		})
		return true
	})
	return out
}

func sortInts(in []int) []int {
	out := append([]int(nil), in...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
