package observability

import "context"

// NoopLogger discards all log output. Intended for tests and for callers
// that explicitly opt out of logging.
type NoopLogger struct{}

// NewNoopLogger creates a logger that discards everything
func NewNoopLogger() Logger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(msg string, fields map[string]interface{}) {}
func (l *NoopLogger) Info(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Warn(msg string, fields map[string]interface{})  {}
func (l *NoopLogger) Error(msg string, fields map[string]interface{}) {}

// WithPrefix returns the same noop logger
func (l *NoopLogger) WithPrefix(prefix string) Logger { return l }

// NoopSpan is a no-op implementation of the Span interface
type NoopSpan struct{}

func (s *NoopSpan) End()                                        {}
func (s *NoopSpan) SetAttribute(key string, value interface{})  {}
func (s *NoopSpan) RecordError(err error)                       {}

// NoopTracer produces no-op spans
type NoopTracer struct{}

// NewNoopTracer creates a tracer that records nothing
func NewNoopTracer() Tracer {
	return &NoopTracer{}
}

// StartSpan returns the context unchanged and a no-op span
func (t *NoopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, &NoopSpan{}
}
