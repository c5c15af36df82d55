package logger

import (
	"context"
	"io"
	"log/slog"
	"time"
)

// traceIDKey is the context key WithContext looks up for request tracing.
type traceIDKey struct{}

// ContextWithTraceID returns a context carrying a trace ID that WithContext
// will attach to every log record.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey{}, traceID)
}

// slogLogger implements Logger on top of log/slog with JSON output.
type slogLogger struct {
	handler slog.Handler
	module  string
	fields  []Field
	tz      *time.Location
}

// NewSlogLogger creates a Logger writing JSON records to w at the given
// minimum level. Timestamps are rendered in tz; nil means local time.
// Pass io.Discard for silent test loggers.
func NewSlogLogger(w io.Writer, level LogLevel, tz *time.Location) Logger {
	if w == nil {
		w = io.Discard
	}
	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	return &slogLogger{
		handler: slog.NewJSONHandler(w, opts),
		tz:      tz,
	}
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *slogLogger) Module(name string) Logger {
	clone := *l
	if l.module != "" {
		clone.module = l.module + "." + name
	} else {
		clone.module = name
	}
	return &clone
}

func (l *slogLogger) With(fields ...Field) Logger {
	clone := *l
	clone.fields = append(append([]Field{}, l.fields...), fields...)
	return &clone
}

func (l *slogLogger) WithContext(ctx context.Context) Logger {
	if traceID, ok := ctx.Value(traceIDKey{}).(string); ok && traceID != "" {
		return l.With(String("trace_id", traceID))
	}
	return l
}

func (l *slogLogger) Debug(msg string, fields ...Field) { l.Log(LogLevelDebug, msg, fields...) }
func (l *slogLogger) Info(msg string, fields ...Field)  { l.Log(LogLevelInfo, msg, fields...) }
func (l *slogLogger) Warn(msg string, fields ...Field)  { l.Log(LogLevelWarn, msg, fields...) }
func (l *slogLogger) Error(msg string, fields ...Field) { l.Log(LogLevelError, msg, fields...) }

func (l *slogLogger) Log(level LogLevel, msg string, fields ...Field) {
	lv := slogLevel(level)
	if !l.handler.Enabled(context.Background(), lv) {
		return
	}
	now := time.Now()
	if l.tz != nil {
		now = now.In(l.tz)
	}
	rec := slog.NewRecord(now, lv, msg, 0)
	if l.module != "" {
		rec.AddAttrs(slog.String("module", l.module))
	}
	for i := range l.fields {
		rec.AddAttrs(slog.Any(l.fields[i].Key, l.fields[i].Value))
	}
	for i := range fields {
		rec.AddAttrs(slog.Any(fields[i].Key, fields[i].Value))
	}
	_ = l.handler.Handle(context.Background(), rec)
}
