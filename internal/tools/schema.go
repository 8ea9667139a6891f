package tools

// Small helpers for writing JSON-Schema documents inline next to each
// tool spec, matching the literal object-building shape the original
// Python registration functions used with plain dicts.

func schemaObj(properties map[string]any, required []string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

func strProp(description string) map[string]any {
	p := map[string]any{"type": "string"}
	if description != "" {
		p["description"] = description
	}
	return p
}

func boolProp(def bool) map[string]any {
	return map[string]any{"type": "boolean", "default": def}
}

func intProp(def int) map[string]any {
	return map[string]any{"type": "integer", "default": def}
}
