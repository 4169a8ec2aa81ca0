// Copyright 2026 © The Railguard Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type runIDKey struct{}

// ContextWithRunID tags ctx with the guarded run identifier so every log
// record emitted during the turn carries it.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey{}, runID)
}

// RunIDFromContext returns the run identifier set by ContextWithRunID, or
// the empty string.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// ConfigureSlog builds and installs the process logger. Records written
// through the *Context log methods carry the active trace and span IDs
// plus the guarded run ID when one is in the context.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	var base slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		base = slog.NewJSONHandler(output, opts)
	default:
		base = slog.NewTextHandler(output, opts)
	}
	logger := slog.New(&guardContextHandler{next: base})
	slog.SetDefault(logger)
	return logger
}

// guardContextHandler decorates records with the identifiers a guarded
// turn carries in its context.
type guardContextHandler struct {
	next slog.Handler
}

func (h *guardContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *guardContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		addAttrOnce(&record, "trace_id", sc.TraceID().String())
		addAttrOnce(&record, "span_id", sc.SpanID().String())
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		addAttrOnce(&record, "run_id", runID)
	}
	return h.next.Handle(ctx, record)
}

func (h *guardContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &guardContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *guardContextHandler) WithGroup(name string) slog.Handler {
	return &guardContextHandler{next: h.next.WithGroup(name)}
}

func addAttrOnce(record *slog.Record, key, value string) {
	found := false
	record.Attrs(func(attr slog.Attr) bool {
		if attr.Key == key {
			found = true
			return false
		}
		return true
	})
	if !found {
		record.AddAttrs(slog.String(key, value))
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
