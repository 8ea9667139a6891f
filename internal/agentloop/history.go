package agentloop

import (
	"context"
	"fmt"

	"github.com/benchforge/workbench/internal/llm"
	"github.com/benchforge/workbench/internal/store"
)

// appendChatMessage persists a turn of the conversation as a
// chat_message event, the same event type internal/store.CreateTask
// seeds the goal under, so a single ListEvents query reconstructs the
// whole transcript regardless of how many times the process has
// restarted in between.
func appendChatMessage(ctx context.Context, s *store.Store, taskID string, msg llm.Message) error {
	_, err := s.AppendEvent(ctx, taskID, "", "chat_message", chatMessagePayload(msg))
	if err != nil {
		return fmt.Errorf("agentloop: append chat message: %w", err)
	}
	return nil
}

func chatMessagePayload(msg llm.Message) map[string]any {
	payload := map[string]any{
		"role":    string(msg.Role),
		"content": msg.Content,
	}
	if msg.ToolCallID != "" {
		payload["tool_call_id"] = msg.ToolCallID
	}
	if msg.Name != "" {
		payload["name"] = msg.Name
	}
	if len(msg.ToolCalls) > 0 {
		calls := make([]map[string]any, 0, len(msg.ToolCalls))
		for _, tc := range msg.ToolCalls {
			calls = append(calls, map[string]any{
				"id":        tc.ID,
				"name":      tc.Name,
				"arguments": tc.Arguments,
			})
		}
		payload["tool_calls"] = calls
	}
	return payload
}

// loadChatHistory replays a task's chat_message events into the message
// list a ChatProvider expects, grounded on the ported implementation's
// _load_chat_history: every resume, including one after a process
// restart, reconstructs state purely from the durable event log rather
// than any in-memory run state.
func loadChatHistory(ctx context.Context, s *store.Store, taskID string) ([]llm.Message, error) {
	rows, err := s.ListEvents(ctx, taskID, 0, 0, false)
	if err != nil {
		return nil, fmt.Errorf("agentloop: load chat history: %w", err)
	}
	var out []llm.Message
	for _, row := range rows {
		if row.Type != "chat_message" {
			continue
		}
		msg, ok := messageFromPayload(row.Payload)
		if !ok {
			continue
		}
		out = append(out, msg)
	}
	return out, nil
}

func messageFromPayload(payload map[string]any) (llm.Message, bool) {
	role, _ := payload["role"].(string)
	if role == "" {
		return llm.Message{}, false
	}
	msg := llm.Message{Role: llm.Role(role)}
	msg.Content, _ = payload["content"].(string)
	msg.ToolCallID, _ = payload["tool_call_id"].(string)
	msg.Name, _ = payload["name"].(string)
	if rawCalls, ok := payload["tool_calls"].([]any); ok {
		for _, rc := range rawCalls {
			m, ok := rc.(map[string]any)
			if !ok {
				continue
			}
			id, _ := m["id"].(string)
			name, _ := m["name"].(string)
			args, _ := m["arguments"].(string)
			msg.ToolCalls = append(msg.ToolCalls, llm.ToolCall{ID: id, Name: name, Arguments: args})
		}
	}
	return msg, true
}
