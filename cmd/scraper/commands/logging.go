package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// newLogger logs to console at the configured level. A non-empty logFile
// additionally receives every record from debug up as JSON. The returned
// func closes the file.
func newLogger(console io.Writer, verbose bool, levelName, logFile string) (*slog.Logger, *slog.LevelVar, func() error, error) {
	level := &slog.LevelVar{}
	level.Set(parseLevel(levelName))
	if verbose {
		level.Set(slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if f, ok := console.(*os.File); ok && isTerminal(f) {
		handler = slog.NewTextHandler(console, opts)
	} else {
		handler = slog.NewJSONHandler(console, opts)
	}

	if logFile == "" {
		return slog.New(handler), level, func() error { return nil }, nil
	}

	if dir := filepath.Dir(logFile); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(slogmulti.Fanout(handler, fileHandler)), level, file.Close, nil
}

func parseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
