package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestInitWithoutDirWritesToStderrOnly(t *testing.T) {
	logger, closer := Init(Config{Level: "info"})
	require.NotNil(t, logger)
	require.NoError(t, closer.Close())
}

func TestInitWithDirCreatesLogFile(t *testing.T) {
	dir := t.TempDir()
	logger, closer := Init(Config{Dir: dir, Level: "debug"})
	require.NotNil(t, logger)
	defer closer.Close()

	logger.Info("hello", "key", "value")

	path := filepath.Join(dir, "workbenchd.log")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
	assert.Contains(t, string(data), `"key":"value"`)
}

func TestInitSetsSlogDefault(t *testing.T) {
	logger, closer := Init(Config{Level: "info"})
	defer closer.Close()
	assert.Same(t, logger, slog.Default())
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, 5, orDefault(0, 5))
	assert.Equal(t, 5, orDefault(-1, 5))
	assert.Equal(t, 10, orDefault(10, 5))
}
