// Package logging wraps log/slog with the field names used across graph
// servers, the coordinator and clients.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger with graph-specific helpers.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to w (stderr when nil). format is "text" or
// "json".
func New(w io.Writer, level slog.Level, format string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(1000)}))}
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// OrNoop returns l, or a discarding logger when l is nil.
func OrNoop(l *Logger) *Logger {
	if l == nil {
		return NoopLogger()
	}
	return l
}

// WithRank tags records with the server rank.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{Logger: l.Logger.With("rank", rank)}
}

// WithTable tags records with a table id.
func (l *Logger) WithTable(id uint32) *Logger {
	return &Logger{Logger: l.Logger.With("table", id)}
}

// WithComponent tags records with the emitting component.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{Logger: l.Logger.With("component", name)}
}

// LogLoad logs the outcome of a bulk load.
func (l *Logger) LogLoad(ctx context.Context, path string, lines, nodes int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"path", path,
			"lines", lines,
			"nodes", nodes,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "load completed",
		"path", path,
		"lines", lines,
		"nodes", nodes,
	)
}

// LogRequest logs one dispatched RPC.
func (l *Logger) LogRequest(ctx context.Context, reqID, command string, code int32, err error) {
	if err != nil {
		l.WarnContext(ctx, "request failed",
			"request_id", reqID,
			"command", command,
			"code", code,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "request completed",
		"request_id", reqID,
		"command", command,
	)
}
