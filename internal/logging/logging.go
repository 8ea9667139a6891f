// Package logging sets up the process-wide structured logger: JSON
// records to a size-rotated file under the data directory's logs/
// folder, mirrored to stderr for local/foreground use, grounded on
// kadirpekel-hector's pkg/logger (level parsing, Init/GetLogger shape)
// and the teacher's own log/slog idiom used throughout internal/.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how logs are written.
type Config struct {
	// Dir is the directory log files are written under (normally
	// Settings.LogsDir). A zero value disables file rotation — only
	// stderr receives log output.
	Dir string
	// Level is one of "debug", "info", "warn", "error" (case
	// insensitive); anything else falls back to "info".
	Level string
	// MaxSizeMB is the size in megabytes a log file grows to before
	// lumberjack rotates it. Zero falls back to DefaultMaxSizeMB.
	MaxSizeMB int
	// MaxBackups is how many rotated files lumberjack keeps. Zero falls
	// back to DefaultMaxBackups.
	MaxBackups int
	// MaxAgeDays is how long a rotated file is kept before deletion.
	// Zero falls back to DefaultMaxAgeDays.
	MaxAgeDays int
}

const (
	// DefaultMaxSizeMB is lumberjack's rotation threshold when
	// Config.MaxSizeMB is left at zero.
	DefaultMaxSizeMB = 100
	// DefaultMaxBackups is lumberjack's retained-file count when
	// Config.MaxBackups is left at zero.
	DefaultMaxBackups = 5
	// DefaultMaxAgeDays is lumberjack's retention window when
	// Config.MaxAgeDays is left at zero.
	DefaultMaxAgeDays = 14
)

// ParseLevel converts a string log level to slog.Level, defaulting to
// Info for anything unrecognized rather than failing startup over a
// typo'd LOG_LEVEL.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init builds the process-wide *slog.Logger described by cfg, sets it
// as slog's default (so every package logging via slog.Default()
// picks it up without an explicit logger threaded through), and
// returns it. The returned io.Closer should be closed during shutdown
// to flush the rotated log file; it is a no-op when cfg.Dir is empty.
func Init(cfg Config) (*slog.Logger, io.Closer) {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var writer io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if cfg.Dir != "" {
		lj := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, "workbenchd.log"),
			MaxSize:    orDefault(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: orDefault(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     orDefault(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   true,
		}
		writer = io.MultiWriter(os.Stderr, lj)
		closer = lj
	}

	logger := slog.New(slog.NewJSONHandler(writer, opts))
	slog.SetDefault(logger)
	return logger, closer
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
