package masking

import "encoding/json"

// Service applies data masking to MCP tool call arguments and results
// before they reach the event log or logs/. Created once at startup;
// thread-safe and stateless aside from its compiled patterns.
type Service struct {
	enabled  bool
	patterns map[string]*CompiledPattern
	maskers  []Masker
}

// NewService builds a Service with every builtin pattern and masker
// compiled and registered eagerly. enabled=false turns Mask into a
// passthrough, for deployments that would rather see raw tool output
// (e.g. a local single-user workspace with no event log retention).
func NewService(enabled bool) *Service {
	return &Service{
		enabled:  enabled,
		patterns: compileBuiltinPatterns(),
		maskers:  []Masker{&SecretFieldMasker{}},
	}
}

// Mask applies every registered masker, then every regex pattern, to
// content. Fail-closed: if content can't be safely processed it hasn't
// happened in this package's maskers (they're defensive by
// construction), so there's no redaction-notice path — masking here
// simply can't fail the way a per-server, config-driven pipeline can.
func (s *Service) Mask(content string) string {
	if s == nil || !s.enabled || content == "" {
		return content
	}

	masked := content
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// MaskMap masks every value of a tool result map, round-tripping through
// JSON so the structural masker's recursive key-shape logic applies the
// same way it would to a tool's raw JSON output. m is returned unchanged
// if masking is disabled, empty, or the round-trip fails for any reason
// (a result that doesn't serialize cleanly is left as-is rather than
// dropped).
func (s *Service) MaskMap(m map[string]any) map[string]any {
	if s == nil || !s.enabled || len(m) == 0 {
		return m
	}
	buf, err := json.Marshal(m)
	if err != nil {
		return m
	}
	masked := s.Mask(string(buf))
	out := map[string]any{}
	if err := json.Unmarshal([]byte(masked), &out); err != nil {
		return m
	}
	return out
}
