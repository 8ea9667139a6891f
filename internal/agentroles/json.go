package agentroles

import (
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls a JSON object out of raw LLM output, tolerating
// leading/trailing prose or markdown fences around the object the
// model was asked to emit strictly — real models don't always comply.
func extractJSON(text string, out any) error {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "{") && strings.HasSuffix(text, "}") {
		if err := json.Unmarshal([]byte(text), out); err == nil {
			return nil
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), out); err == nil {
			return nil
		}
	}
	return fmt.Errorf("agentroles: unable to parse JSON from model output")
}

// modelForMode picks between the fast and pro model names per spec's
// two-tier mode, the way every role does.
func modelForMode(mode, modelFast, modelPro string) string {
	if mode == "fast" {
		return modelFast
	}
	return modelPro
}

// toolsSummary renders a "- name: description" line per tool, the
// exact shape every role's prompt appends under ALLOWED_TOOLS.
func toolsSummary(tools []ToolSummary) string {
	lines := make([]string, 0, len(tools))
	for _, t := range tools {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Name, t.Description))
	}
	return strings.Join(lines, "\n")
}

// ToolSummary is the name+description pair a role's prompt needs; the
// caller (internal/orchestrator) builds this from internal/tools.Registry
// filtered to a skill's allowlist.
type ToolSummary struct {
	Name        string
	Description string
}
