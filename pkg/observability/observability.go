// Package observability provides unified logging and tracing for the
// webhook relay. All components receive a Logger and Tracer at
// construction time; nothing in this module reaches for a global sink.
package observability

import (
	"context"
)

// LogLevel defines log message severity
type LogLevel string

// Log levels
const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// Logger defines the interface for structured logging
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	// WithPrefix returns a logger scoped to the given component prefix
	WithPrefix(prefix string) Logger
}

// Span represents a trace span around a single operation
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Tracer defines the interface for distributed tracing
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}
