// Package idutil generates opaque sortable ids and threads correlation
// identifiers (session, run, parent run, log) through a context.Context.
package idutil

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// New returns an opaque, lexicographically-sortable id: a nanosecond-precision
// UTC timestamp prefix followed by a random suffix, so ids created later sort
// after ids created earlier without requiring a central counter.
func New(prefix string) string {
	ts := time.Now().UTC().Format("20060102T150405.000000000Z")
	suffix := uuid.NewString()
	if prefix == "" {
		return fmt.Sprintf("%s-%s", ts, suffix)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, ts, suffix)
}

type contextKey string

const (
	sessionIDKey     contextKey = "session_id"
	runIDKey         contextKey = "run_id"
	parentRunIDKey   contextKey = "parent_run_id"
	correlationIDKey contextKey = "correlation_id"
	logIDKey         contextKey = "log_id"
)

// WithSessionID attaches a session id to ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

// SessionIDFromContext retrieves the session id, or "" if absent.
func SessionIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, sessionIDKey)
}

// WithRunID attaches a run id to ctx.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunIDFromContext retrieves the run id, or "" if absent.
func RunIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, runIDKey)
}

// EnsureRunID returns ctx unchanged (with its existing run id) if one is
// already set; otherwise it stamps a fresh id produced by gen and returns
// the updated context along with the id in effect.
func EnsureRunID(ctx context.Context, gen func() string) (context.Context, string) {
	if existing := RunIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	id := gen()
	return WithRunID(ctx, id), id
}

// WithParentRunID attaches a parent run id to ctx.
func WithParentRunID(ctx context.Context, parentRunID string) context.Context {
	return context.WithValue(ctx, parentRunIDKey, parentRunID)
}

// ParentRunIDFromContext retrieves the parent run id, or "" if absent.
func ParentRunIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, parentRunIDKey)
}

// WithCorrelationID attaches a correlation id (root of a causal chain) to ctx.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

// CorrelationIDFromContext retrieves the correlation id, or "" if absent.
func CorrelationIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, correlationIDKey)
}

// WithLogID attaches a log id to ctx.
func WithLogID(ctx context.Context, logID string) context.Context {
	return context.WithValue(ctx, logIDKey, logID)
}

// LogIDFromContext retrieves the log id, or "" if absent.
func LogIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, logIDKey)
}

// EnsureLogID behaves like EnsureRunID for the log id slot.
func EnsureLogID(ctx context.Context, gen func() string) (context.Context, string) {
	if existing := LogIDFromContext(ctx); existing != "" {
		return ctx, existing
	}
	id := gen()
	return WithLogID(ctx, id), id
}

// NewLogID mints a fresh log id; suitable as the gen argument to EnsureLogID.
func NewLogID() string { return New("log") }

// NewRunID mints a fresh run id; suitable as the gen argument to EnsureRunID.
func NewRunID() string { return New("run") }

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}
