package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeEnvLoadMissingFile(t *testing.T) {
	r := NewRuntimeEnv(t.TempDir())
	assert.Empty(t, r.Load())
}

func TestRuntimeEnvUpdateAndLoad(t *testing.T) {
	dir := t.TempDir()
	r := NewRuntimeEnv(dir)

	applied, err := r.Update(map[string]string{
		"OPENAI_API_KEY":    "sk-live-123",
		"OPENAI_MODEL_FAST": "gpt-4o-mini",
		"NOT_ALLOWED":       "should be dropped",
	})
	require.NoError(t, err)
	assert.Equal(t, "sk-live-123", applied["OPENAI_API_KEY"])
	assert.NotContains(t, applied, "NOT_ALLOWED")

	loaded := r.Load()
	assert.Equal(t, "sk-live-123", loaded["OPENAI_API_KEY"])
	assert.Equal(t, "gpt-4o-mini", loaded["OPENAI_MODEL_FAST"])
	assert.NotContains(t, loaded, "NOT_ALLOWED")

	assert.Equal(t, "sk-live-123", os.Getenv("OPENAI_API_KEY"))
}

func TestRuntimeEnvUpdatePreservesExistingKeys(t *testing.T) {
	dir := t.TempDir()
	r := NewRuntimeEnv(dir)

	_, err := r.Update(map[string]string{"OPENAI_API_KEY": "first"})
	require.NoError(t, err)
	_, err = r.Update(map[string]string{"OPENAI_MODEL_PRO": "gpt-4o"})
	require.NoError(t, err)

	loaded := r.Load()
	assert.Equal(t, "first", loaded["OPENAI_API_KEY"])
	assert.Equal(t, "gpt-4o", loaded["OPENAI_MODEL_PRO"])
}

func TestRuntimeEnvApplyExportsToEnvironment(t *testing.T) {
	dir := t.TempDir()
	r := NewRuntimeEnv(dir)
	_, err := r.Update(map[string]string{"SLACK_CHANNEL": "#ops"})
	require.NoError(t, err)

	os.Unsetenv("SLACK_CHANNEL")
	applied := r.Apply()
	assert.Equal(t, "#ops", applied["SLACK_CHANNEL"])
	assert.Equal(t, "#ops", os.Getenv("SLACK_CHANNEL"))
}

func TestRuntimeEnvLoadIgnoresCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runtime_env.json"), []byte("not json"), 0o644))

	r := NewRuntimeEnv(dir)
	assert.Empty(t, r.Load())
}
