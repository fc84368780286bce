package logger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLoggerAdapter routes GORM's log output to a Logger. Statements log
// at TRACE; failures and slow statements at WARN.
type GormLoggerAdapter struct {
	log  Logger
	slow time.Duration
}

// NewGormLoggerAdapter wraps log. A zero slow threshold disables slow
// statement warnings.
func NewGormLoggerAdapter(log Logger, slow time.Duration) *GormLoggerAdapter {
	if log == nil {
		log = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &GormLoggerAdapter{log: log, slow: slow}
}

func (a *GormLoggerAdapter) LogMode(gormlogger.LogLevel) gormlogger.Interface { return a }

func (a *GormLoggerAdapter) Info(_ context.Context, msg string, data ...any) {
	a.log.Debug(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Warn(_ context.Context, msg string, data ...any) {
	a.log.Warn(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Error(_ context.Context, msg string, data ...any) {
	a.log.Error(fmt.Sprintf(msg, data...))
}

func (a *GormLoggerAdapter) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	stmt, rows := fc()
	fields := []Field{
		String("sql", stmt),
		Int64("rows_affected", rows),
		Int64("duration_ms", elapsed.Milliseconds()),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		a.log.Warn("catalog query failed", append(fields, Error(err))...)
		return
	}
	if a.slow > 0 && elapsed > a.slow {
		a.log.Warn("slow catalog query", append(fields, Duration("threshold", a.slow))...)
		return
	}
	a.log.Trace("catalog query", fields...)
}
