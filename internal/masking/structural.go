package masking

import (
	"encoding/json"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaskedSecretValue replaces a structured field's value once its key
// name is judged secret-shaped.
const MaskedSecretValue = "[MASKED_SECRET_DATA]"

var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|passwd|api[_-]?key|credential|private[_-]?key)`)

// SecretFieldMasker masks string values of object fields whose key
// name looks like a secret, recursively, across a JSON or YAML
// document — generalizing the structural "parse, find the
// sensitive shape, mask just that, reserialize" approach to whatever
// object shape a tool call argument or result actually is, since this
// system's tools pass structured JSON/YAML rather than a single fixed
// resource kind.
type SecretFieldMasker struct{}

// Name returns this masker's identifier.
func (m *SecretFieldMasker) Name() string { return "secret_field" }

// AppliesTo is a cheap check for "this looks like it might be
// structured data worth parsing."
func (m *SecretFieldMasker) AppliesTo(data string) bool {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '[' || strings.Contains(trimmed, ":")
}

// Mask parses data as JSON, falling back to YAML, masks any field
// whose key matches secretKeyPattern, and reserializes in the format
// it was parsed as. Returns the original data unchanged if neither
// parse succeeds or nothing needed masking.
func (m *SecretFieldMasker) Mask(data string) string {
	trimmed := strings.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		var obj any
		if err := json.Unmarshal([]byte(data), &obj); err == nil {
			masked, changed := maskValue(obj)
			if changed {
				if out, err := json.Marshal(masked); err == nil {
					return string(out)
				}
			}
			return data
		}
	}

	var obj any
	if err := yaml.Unmarshal([]byte(data), &obj); err != nil {
		return data
	}
	masked, changed := maskValue(obj)
	if !changed {
		return data
	}
	out, err := yaml.Marshal(masked)
	if err != nil {
		return data
	}
	return string(out)
}

// maskValue walks v recursively, masking string values under a
// secret-shaped map key, and reports whether anything was changed.
func maskValue(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		changed := false
		for k, val := range t {
			if secretKeyPattern.MatchString(k) {
				if s, ok := val.(string); ok && s != "" {
					t[k] = MaskedSecretValue
					changed = true
					continue
				}
			}
			newVal, sub := maskValue(val)
			if sub {
				t[k] = newVal
				changed = true
			}
		}
		return t, changed
	case []any:
		changed := false
		for i, item := range t {
			newItem, sub := maskValue(item)
			if sub {
				t[i] = newItem
				changed = true
			}
		}
		return t, changed
	default:
		return v, false
	}
}
