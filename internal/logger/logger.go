// Package logger is the module-aware structured logger used by every
// component. It sits on log/slog; components derive child loggers by module:
//
//	central, err := logger.NewCentralLogger(&logger.LoggingConfig{DefaultLevel: "info"})
//	if err != nil {
//	    return err
//	}
//	defer central.Close()
//
//	log := central.Module("capture")
//	log.Info("device opened",
//	    logger.String("device", "hw:1,0"),
//	    logger.Int("sample_rate", 44100))
//
// Console output is human-readable text; file output is JSON with RFC3339
// timestamps. Tests use NewSlogLogger with io.Discard or a bytes.Buffer.
//
// Loggers must never be called from the real-time capture loop; the capture
// driver reports through counters instead.
package logger

import (
	"context"
	"time"
	"unique"
)

// LogLevel is a level name as used in configuration.
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Field is one key/value pair of a record. Keys are interned.
type Field struct {
	Key   string
	Value any
}

func internKey(key string) string {
	return unique.Make(key).Value()
}

var (
	errorKey       = internKey("error")
	moduleField    = internKey("module")
	sessionIDField = internKey("session_id")
)

// Logger is what components accept. Implementations are safe for
// concurrent use.
type Logger interface {
	Module(name string) Logger

	Trace(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithContext(ctx context.Context) Logger

	Log(level LogLevel, msg string, fields ...Field)

	// Flush ensures all buffered logs are written
	Flush() error
}

// Typed field constructors. Prefer them over Any.

func String(key, value string) Field { return field(key, value) }
func Int(key string, value int) Field { return field(key, value) }
func Int64(key string, value int64) Field { return field(key, value) }
func Uint64(key string, value uint64) Field { return field(key, value) }
func Bool(key string, value bool) Field { return field(key, value) }
func Time(key string, value time.Time) Field { return field(key, value) }
func Any(key string, value any) Field { return field(key, value) }

// Float64 values are rounded to three decimals when written.
func Float64(key string, value float64) Field { return field(key, value) }

// Duration is rendered as text, e.g. "1.5s".
func Duration(key string, value time.Duration) Field { return field(key, value.String()) }

// Error always uses the key "error". A nil error gives a nil value.
func Error(err error) Field {
	if err == nil {
		return Field{Key: errorKey}
	}
	return Field{Key: errorKey, Value: err.Error()}
}

func field(key string, value any) Field {
	return Field{Key: internKey(key), Value: value}
}
