// Package logger provides structured logging using zerolog. It sets up a
// JSON (or console) logger with service-level context and provides trace ID
// propagation through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Init creates a logger for the given service, writing to stdout, and
// installs it as the zerolog global logger. format is "json" or "console";
// an unknown level falls back to info.
func Init(service, level, format string) zerolog.Logger {
	return New(os.Stdout, service, level, format)
}

// New is Init with an explicit writer.
func New(w io.Writer, service, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	l := zerolog.New(w).Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()

	log.Logger = l
	return l
}

// Component returns a child logger tagged with a component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// WithTraceID stores a trace ID in the context for downstream propagation.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// TraceID extracts the trace ID from context. Returns "" if not set.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a trace ID from a symbol and bar time.
// Format: "{symbol}-{unixNano}".
func GenerateTraceID(symbol string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", symbol, ts.UnixNano())
}

// Ctx returns l with the context's trace ID attached, if any.
func Ctx(ctx context.Context, l zerolog.Logger) zerolog.Logger {
	tid := TraceID(ctx)
	if tid == "" {
		return l
	}
	return l.With().Str("trace_id", tid).Logger()
}
