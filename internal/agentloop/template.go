package agentloop

import (
	"fmt"
	"regexp"
	"strings"
)

// renderPromptTemplate substitutes "<var>" and "{{ var }}" placeholders
// in a skill's system prompt. Best effort: an unknown placeholder is
// left as-is rather than erroring, the same tolerance
// internal/orchestrator applies to its own skill prompts.
func renderPromptTemplate(text string, vars map[string]string) string {
	if text == "" || len(vars) == 0 {
		return text
	}
	out := text
	for k, v := range vars {
		if k == "" {
			continue
		}
		out = strings.ReplaceAll(out, "<"+k+">", v)
		pattern := regexp.MustCompile(fmt.Sprintf(`\{\{\s*%s\s*\}\}`, regexp.QuoteMeta(k)))
		out = pattern.ReplaceAllString(out, v)
	}
	return out
}
