package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/threshcorder/internal/privacy"
)

// TelemetryReporter receives errors as they are built.
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter sends errors to Sentry. The Sentry client must be
// initialized by the caller.
type SentryReporter struct {
	enabled bool
}

// NewSentryReporter creates a Sentry reporter.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{enabled: enabled}
}

// IsEnabled implements TelemetryReporter.
func (sr *SentryReporter) IsEnabled() bool {
	return sr.enabled
}

// ReportError sends ee once, with its message and string context scrubbed.
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.enabled || !ee.reported.CompareAndSwap(false, true) {
		return
	}

	message := scrubMessageForPrivacy(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))
	title := errorTitle(ee)
	level := sentryLevel(ee.Category)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.component)
		scope.SetTag("category", string(ee.Category))
		scope.SetTag("error_type", fmt.Sprintf("%T", ee.Err))

		for key, value := range ee.context {
			if s, ok := value.(string); ok {
				value = scrubMessageForPrivacy(s)
			}
			scope.SetContext(key, map[string]any{"value": value})
		}

		scope.SetLevel(level)
		scope.SetFingerprint([]string{title, ee.component, string(ee.Category)})

		event := sentry.NewEvent()
		event.Message = message
		event.Level = level
		event.Exception = []sentry.Exception{{Type: title, Value: message}}
		sentry.CaptureEvent(event)
	})
}

// errorTitle groups events by component, category and operation, e.g.
// "export episode-writer finalize_episode".
func errorTitle(ee *EnhancedError) string {
	parts := make([]string, 0, 3)
	if ee.component != "" && ee.component != ComponentUnknown {
		parts = append(parts, ee.component)
	}
	parts = append(parts, string(ee.Category))
	if op, ok := ee.context["operation"].(string); ok && op != "" {
		parts = append(parts, op)
	}
	return strings.Join(parts, " ")
}

// sentryLevel downgrades categories that are usually transient.
func sentryLevel(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryNetwork, CategoryMQTTConnection, CategoryMQTTPublish, CategoryArchive, CategoryHTTP:
		return sentry.LevelWarning
	case CategoryFileIO, CategoryBuffer, CategoryDiskCleanup:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	reporterMu sync.RWMutex
	reporter   TelemetryReporter
)

// SetTelemetryReporter installs r. Passing nil disables reporting.
func SetTelemetryReporter(r TelemetryReporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
	reporting.Store(r != nil && r.IsEnabled())
}

// GetTelemetryReporter returns the installed reporter.
func GetTelemetryReporter() TelemetryReporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}

func reportToTelemetry(ee *EnhancedError) {
	if r := GetTelemetryReporter(); r != nil && r.IsEnabled() {
		r.ReportError(ee)
	}
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|auth|secret|password)[=:]\S+`),
	regexp.MustCompile(`[0-9a-fA-F]{32,}`),
}

// scrubMessageForPrivacy strips credentials and query strings from URLs and
// replaces key-like tokens.
func scrubMessageForPrivacy(message string) string {
	scrubbed := privacy.ScrubMessage(message)
	for _, re := range secretPatterns {
		scrubbed = re.ReplaceAllString(scrubbed, "[REDACTED]")
	}
	return scrubbed
}
