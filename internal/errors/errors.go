// Package errors wraps errors with the component and category that produced
// them, and optionally reports them to telemetry when built.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// ErrorCategory groups errors for logs, metrics and telemetry.
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryConfiguration  ErrorCategory = "configuration"
	CategoryFileIO         ErrorCategory = "file-io"
	CategoryNetwork        ErrorCategory = "network"
	CategoryAudio          ErrorCategory = "audio-processing"
	CategoryAudioSource    ErrorCategory = "audio-source"
	CategoryBuffer         ErrorCategory = "audio-buffer"
	CategoryEpisode        ErrorCategory = "episode-writer"
	CategoryDatabase       ErrorCategory = "database"
	CategoryHTTP           ErrorCategory = "http-request"
	CategorySystem         ErrorCategory = "system-resource"
	CategoryDiskUsage      ErrorCategory = "disk-usage"
	CategoryDiskCleanup    ErrorCategory = "disk-cleanup"
	CategoryMQTTConnection ErrorCategory = "mqtt-connection"
	CategoryMQTTPublish    ErrorCategory = "mqtt-publish"
	CategoryArchive        ErrorCategory = "archive-upload"
	CategoryState          ErrorCategory = "state"
	CategoryGeneric        ErrorCategory = "generic"
)

// ComponentUnknown is used when the component cannot be determined.
const ComponentUnknown = "unknown"

const modulePrefix = "github.com/tphakala/threshcorder/"

// reporting is true while an enabled telemetry reporter is installed. Build
// skips the stack walk when it is false.
var reporting atomic.Bool

// EnhancedError is an error annotated with its origin.
type EnhancedError struct {
	Err       error
	Category  ErrorCategory
	Timestamp time.Time

	component string
	context   map[string]any
	reported  atomic.Bool
}

// Error implements the error interface.
func (ee *EnhancedError) Error() string {
	return ee.Err.Error()
}

// Unwrap returns the wrapped error.
func (ee *EnhancedError) Unwrap() error {
	return ee.Err
}

// Is matches another *EnhancedError of the same category, or anything the
// wrapped error matches.
func (ee *EnhancedError) Is(target error) bool {
	if other, ok := target.(*EnhancedError); ok {
		return ee.Category == other.Category
	}
	return stderrors.Is(ee.Err, target)
}

// GetComponent returns the component that built the error.
func (ee *EnhancedError) GetComponent() string {
	return ee.component
}

// GetContext returns a copy of the error context.
func (ee *EnhancedError) GetContext() map[string]any {
	if ee.context == nil {
		return nil
	}
	return maps.Clone(ee.context)
}

// ErrorBuilder assembles an EnhancedError.
type ErrorBuilder struct {
	err       error
	component string
	category  ErrorCategory
	context   map[string]any
}

// New starts an error wrapping err.
func New(err error) *ErrorBuilder {
	return &ErrorBuilder{err: err}
}

// Newf starts an error from a format string.
func Newf(format string, args ...any) *ErrorBuilder {
	return New(fmt.Errorf(format, args...))
}

// Component names the component that produced the error. Without it the
// component is derived from the calling package when telemetry is active.
func (eb *ErrorBuilder) Component(component string) *ErrorBuilder {
	eb.component = component
	return eb
}

// Category sets the error category.
func (eb *ErrorBuilder) Category(category ErrorCategory) *ErrorBuilder {
	eb.category = category
	return eb
}

// Context attaches a key/value pair.
func (eb *ErrorBuilder) Context(key string, value any) *ErrorBuilder {
	if eb.context == nil {
		eb.context = make(map[string]any)
	}
	eb.context[key] = value
	return eb
}

// Build creates the error and reports it when telemetry is enabled.
func (eb *ErrorBuilder) Build() *EnhancedError {
	ee := &EnhancedError{
		Err:       eb.err,
		Category:  eb.category,
		Timestamp: time.Now(),
		component: eb.component,
		context:   eb.context,
	}

	if ee.Category == "" {
		ee.Category = inheritedCategory(eb.err)
	}

	if !reporting.Load() {
		if ee.component == "" {
			ee.component = ComponentUnknown
		}
		return ee
	}

	if ee.component == "" {
		ee.component = callerComponent()
	}
	reportToTelemetry(ee)
	return ee
}

// inheritedCategory returns the category of an EnhancedError wrapped by err.
func inheritedCategory(err error) ErrorCategory {
	var inner *EnhancedError
	if stderrors.As(err, &inner) && inner.Category != "" {
		return inner.Category
	}
	return CategoryGeneric
}

// callerComponent names the package that called Build, e.g. "export" for
// internal/audiocore/export.
func callerComponent() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		name := frame.Function
		if strings.HasPrefix(name, modulePrefix) {
			return packageName(name)
		}
		if !more {
			return ComponentUnknown
		}
	}
}

// packageName extracts the last path element of a function's package.
func packageName(funcName string) string {
	if slash := strings.LastIndex(funcName, "/"); slash >= 0 {
		funcName = funcName[slash+1:]
	}
	if dot := strings.Index(funcName, "."); dot > 0 {
		return funcName[:dot]
	}
	return ComponentUnknown
}

// Standard library passthroughs, so callers need a single errors import.

// NewStd returns a plain error, as errors.New in the standard library.
func NewStd(text string) error {
	return stderrors.New(text)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Join returns an error that wraps the given errors.
func Join(errs ...error) error {
	return stderrors.Join(errs...)
}

// IsCategory reports whether err wraps an EnhancedError of category.
func IsCategory(err error, category ErrorCategory) bool {
	var enhancedErr *EnhancedError
	return As(err, &enhancedErr) && enhancedErr.Category == category
}
