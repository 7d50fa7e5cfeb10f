// Package logging writes hark's JSONL runtime log under the XDG state dir.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const logFileName = "log.jsonl"

// Runtime owns the log file for one process. The level starts at info and
// may be lowered or raised once config is loaded.
type Runtime struct {
	Logger *slog.Logger
	Path   string

	level *slog.LevelVar
	file  *os.File
}

func New() (Runtime, error) {
	path, err := Path()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return Runtime{}, fmt.Errorf("create log dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return Runtime{}, fmt.Errorf("open log: %w", err)
	}

	level := &slog.LevelVar{}
	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return Runtime{
		Logger: slog.New(handler).With("pid", os.Getpid()),
		Path:   path,
		level:  level,
		file:   file,
	}, nil
}

func (r Runtime) Close() error {
	if r.file == nil {
		return nil
	}
	return r.file.Close()
}

// SetLevel applies a config level name. Unknown names leave the level as is.
func (r Runtime) SetLevel(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	if r.level != nil {
		r.level.Set(level)
	}
	return nil
}

// ParseLevel accepts slog's level names plus "warning"; empty means info.
func ParseLevel(name string) (slog.Level, error) {
	name = strings.TrimSpace(name)
	switch strings.ToLower(name) {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// Path is $XDG_STATE_HOME/hark/log.jsonl, or ~/.local/state/hark/log.jsonl.
func Path() (string, error) {
	stateDir := strings.TrimSpace(os.Getenv("XDG_STATE_HOME"))
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve log path: %w", err)
		}
		stateDir = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateDir, "hark", logFileName), nil
}
