// Package telemetry is a thin structured-logging and tracing wrapper used
// by cmd/sigilgraphd; the library packages log through log/slog directly.
// It follows
// core/pkg/observability's slog-plus-otel shape. Unlike the teacher's
// Provider, this wrapper never stands up an OTLP exporter pipeline — no
// component in this codebase runs a collector, so only the in-process
// tracer API is exercised (spans are created and ended, and become
// visible the moment a caller registers a real TracerProvider; with none
// registered, otel's global no-op tracer is used and span creation is
// simply inert).
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/sigilrun/sigilgraph"

// Logger wraps a *slog.Logger scoped to one component, matching
// core/pkg/observability's `slog.Default().With("component", ...)`
// convention.
type Logger struct {
	*slog.Logger
}

// NewLogger returns a Logger for component, falling back to
// slog.Default() when base is nil.
func NewLogger(base *slog.Logger, component string) *Logger {
	if base == nil {
		base = slog.Default()
	}
	return &Logger{Logger: base.With("component", component)}
}

// Tracer returns the process-wide tracer used for planner/runner spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named name under ctx, returning the updated
// context and an end function callers should defer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func()) {
	var opts []trace.SpanStartOption
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	ctx, span := Tracer().Start(ctx, name, opts...)
	return ctx, func() { span.End() }
}
