package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360/zoneagent/config"
)

// setupLogger builds the process logger from the agent configuration. The
// level follows the agent debug level; format overrides the configured one
// when set. Logs also go to <log.dir>/<log.name>.log when a directory is
// configured. The returned func closes that file.
func setupLogger(agentCfg *config.AgentConfig, format string) (*slog.Logger, func(), error) {
	if format == "" {
		format = agentCfg.Log.Format
	}

	var (
		out     io.Writer = os.Stdout
		closeFn           = func() {}
	)
	if agentCfg.Log.Dir != "" {
		if err := os.MkdirAll(agentCfg.Log.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		path := filepath.Join(agentCfg.Log.Dir, agentCfg.Log.Name+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}

	level := agentCfg.DebugLevel.SlogLevel()
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler).With(
		"service", appName,
		"version", Version,
		"agent", agentCfg.ID,
		"pid", os.Getpid(),
	), closeFn, nil
}
