// Package logging provides a small component-tagged logging facade backed
// by log/slog.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Logger is the printf-style logging contract used across the orchestrator.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type slogLogger struct {
	base      *slog.Logger
	component string
}

// NewComponentLogger returns a Logger tagging every line with component.
func NewComponentLogger(component string) Logger {
	return &slogLogger{base: slog.Default(), component: component}
}

// FromSlog wraps an existing *slog.Logger, tagging it with component.
func FromSlog(base *slog.Logger, component string) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &slogLogger{base: base, component: component}
}

func (l *slogLogger) Debug(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l *slogLogger) Info(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l *slogLogger) Warn(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }
func (l *slogLogger) Error(format string, args ...any) { l.log(slog.LevelError, format, args...) }

func (l *slogLogger) log(level slog.Level, format string, args ...any) {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	if l.component != "" {
		l.base.Log(context.Background(), level, msg, "component", l.component)
		return
	}
	l.base.Log(context.Background(), level, msg)
}

// nopLogger discards everything; used as a safe fallback.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop is a Logger that discards all output.
var Nop Logger = nopLogger{}

// IsNil reports whether logger is a nil interface or a typed nil pointer,
// which would otherwise panic on first use.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	switch v := logger.(type) {
	case *slogLogger:
		return v == nil
	default:
		return false
	}
}

// OrNop returns logger unless it is nil (including a typed-nil pointer), in
// which case it returns Nop.
func OrNop(logger Logger) Logger {
	if logger == nil || IsNil(logger) {
		return Nop
	}
	return logger
}

// NewTextLogger builds a component logger writing text-formatted lines to
// the given stream, mainly useful for CLI front ends.
func NewTextLogger(component string, w *os.File, level slog.Level) Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return FromSlog(slog.New(handler), component)
}
