package config

import (
	"os"
	"path/filepath"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RuntimeEnvAllowedKeys is the fixed set of environment variables a
// runtime_env.json overlay may set, mirroring runtime_env.py's
// ALLOWED_KEYS allow-list — an admin can rotate an API key or swap a
// model from the UI without restarting with a new .env, but can't use
// the overlay to smuggle in an arbitrary environment variable.
var RuntimeEnvAllowedKeys = map[string]bool{
	"OPENAI_BASE_URL":         true,
	"OPENAI_API_KEY":          true,
	"OPENAI_MODEL_FAST":       true,
	"OPENAI_MODEL_PRO":        true,
	"OPENAI_MODEL_VISION":     true,
	"OPENAI_MODEL_EMBEDDINGS": true,
	"SLACK_BOT_TOKEN":         true,
	"SLACK_CHANNEL":           true,
	"GITHUB_TOKEN":            true,
}

// RuntimeEnv manages the allow-listed key/value overlay persisted to
// <dataDir>/runtime_env.json, read with gjson and written with sjson so
// an update only ever rewrites the keys it touches.
type RuntimeEnv struct {
	path string
}

// NewRuntimeEnv returns a RuntimeEnv rooted at dataDir.
func NewRuntimeEnv(dataDir string) *RuntimeEnv {
	return &RuntimeEnv{path: filepath.Join(dataDir, "runtime_env.json")}
}

// Load reads the overlay file, returning an empty map if it doesn't
// exist yet or fails to parse — a missing or corrupt overlay is never
// fatal, it just means no overrides apply.
func (r *RuntimeEnv) Load() map[string]string {
	out := map[string]string{}
	buf, err := os.ReadFile(r.path)
	if err != nil {
		return out
	}
	parsed := gjson.ParseBytes(buf)
	if !parsed.IsObject() {
		return out
	}
	parsed.ForEach(func(key, value gjson.Result) bool {
		k := key.String()
		if RuntimeEnvAllowedKeys[k] && value.Type == gjson.String {
			out[k] = value.String()
		}
		return true
	})
	return out
}

// Apply loads the overlay and exports every key present onto the
// process environment, so the rest of the process (internal/llm,
// internal/notify, internal/skillsrc) sees the overridden value the
// next time it reads os.Getenv — call once at startup, after Load.
func (r *RuntimeEnv) Apply() map[string]string {
	applied := r.Load()
	for k, v := range applied {
		if v != "" {
			_ = os.Setenv(k, v)
		}
	}
	return applied
}

// Update merges updates into the overlay file, ignoring any key not in
// RuntimeEnvAllowedKeys, persists the result, and exports each applied
// key onto the process environment immediately so the change takes
// effect without a restart.
func (r *RuntimeEnv) Update(updates map[string]string) (map[string]string, error) {
	cur := r.Load()
	for k, v := range updates {
		if !RuntimeEnvAllowedKeys[k] {
			continue
		}
		cur[k] = v
		if v != "" {
			_ = os.Setenv(k, v)
		}
	}

	doc := "{}"
	var err error
	for k, v := range cur {
		doc, err = sjson.Set(doc, k, v)
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(r.path, []byte(doc), 0o644); err != nil {
		return nil, err
	}
	return cur, nil
}
