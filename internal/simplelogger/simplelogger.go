// Package simplelogger provides slog loggers that append to the file named by CODEREWRITE_LOG_FILE. Everything is a no-op when the variable is unset, so library code
// can log unconditionally.
package simplelogger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// EnvVar names the log file.
const EnvVar = "CODEREWRITE_LOG_FILE"

// EnvLevel optionally sets the slog level for New ("debug", "info", "warn", "error"). Defaults to info.
const EnvLevel = "CODEREWRITE_LOG_LEVEL"

var mu sync.Mutex

// New returns a slog text logger that appends to CODEREWRITE_LOG_FILE, with a "component" attribute set to component (if non-empty). If the variable is unset,
// the logger discards everything.
func New(component string) *slog.Logger {
	var w io.Writer = io.Discard
	if os.Getenv(EnvVar) != "" {
		w = fileWriter{}
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: levelFromEnv()}))
	if component != "" {
		logger = logger.With("component", component)
	}
	return logger
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(os.Getenv(EnvLevel)) {
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

// fileWriter appends each Write to the log file, opening and closing it every time. slog handlers make one Write call per record.
type fileWriter struct{}

func (fileWriter) Write(p []byte) (int, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		return len(p), nil
	}

	// Serialize open/write/close to reduce interleaving within a single process.
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return len(p), nil
	}
	defer f.Close()
	_, _ = f.Write(p)
	return len(p), nil
}
