package orchestrator

import (
	"fmt"
	"regexp"
	"strings"
)

// renderPromptTemplate substitutes a small set of placeholders in a
// skill's system prompt: "<var>" and "{{ var }}" / "{{var}}". Best
// effort only — an unknown or malformed placeholder is left as-is
// rather than erroring, since a skill prompt should never fail a run
// over templating.
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
