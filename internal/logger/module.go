package logger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"time"
)

// levelTrace sits below slog's Debug (-4).
const levelTrace = slog.Level(-8)

type sessionIDKey struct{}

// WithSessionID returns a context whose loggers tag records with id. See
// Logger.WithContext.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDKey{}, id)
}

// NewSlogLogger returns a standalone text logger writing to w, or to
// stderr when w is nil. It is meant for tests and tools.
func NewSlogLogger(w io.Writer, level LogLevel, _ *time.Location) Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl := parseLogLevel(string(level))
	return &moduleLogger{
		out:   slog.New(newTextHandler(w, lvl)),
		level: lvl,
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "trace":
		return levelTrace
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

// moduleLogger is a Logger bound to one module and a set of fields.
// Derived loggers share the output and never modify their parent.
type moduleLogger struct {
	module string
	out    *slog.Logger
	level  slog.Level
	fields []Field
}

func (m *moduleLogger) derive(module string, fields []Field) *moduleLogger {
	return &moduleLogger{module: module, out: m.out, level: m.level, fields: fields}
}

// Module returns a child logger named parent.name.
func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	if m.module != "" {
		name = m.module + "." + name
	}
	return m.derive(name, slices.Clone(m.fields))
}

// With returns a logger that adds fields to every record.
func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	return m.derive(m.module, slices.Concat(m.fields, fields))
}

// WithContext adds the session ID carried by ctx, if any.
func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil {
		return nil
	}
	if ctx == nil {
		return m
	}
	if id, _ := ctx.Value(sessionIDKey{}).(string); id != "" {
		return m.With(String(sessionIDField, id))
	}
	return m
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(levelTrace, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }
func (m *moduleLogger) Error(msg string, fields ...Field) { m.emit(slog.LevelError, msg, fields) }

// Log logs at an explicit level.
func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(parseLogLevel(string(level)), msg, fields)
}

// Flush is a no-op; the CentralLogger owns the file.
func (m *moduleLogger) Flush() error {
	return nil
}

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	// Errors are never filtered by module level.
	if m == nil || (level < slog.LevelError && level < m.level) {
		return
	}

	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleField, m.module))
	}
	for _, f := range m.fields {
		attrs = append(attrs, f.attr())
	}
	for _, f := range fields {
		attrs = append(attrs, f.attr())
	}
	m.out.LogAttrs(context.Background(), level, msg, attrs...)
}

// attr converts the field to a slog attribute. Floats keep three decimals.
func (f Field) attr() slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float64:
		return slog.Float64(f.Key, math.Round(v*1000)/1000)
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	default:
		return slog.Any(f.Key, v)
	}
}
