// Package telemetry provides opt-in, privacy-filtered error reporting to
// Sentry.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// flushTimeout bounds delivery of queued events at shutdown.
const flushTimeout = 2 * time.Second

// Init enables error reporting when settings opt in. The returned function
// flushes queued events and must be called before exit; it is a no-op when
// reporting is disabled.
func Init(settings *conf.TelemetrySettings, release string) (func(), error) {
	log := logger.Global().Module("telemetry")

	if !settings.Enabled {
		log.Debug("error telemetry is disabled (opt-in required)")
		return func() {}, nil
	}
	if settings.SentryDSN == "" {
		return nil, errors.Newf("telemetry enabled but no sentry DSN configured").
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.SentryDSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          release,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("error telemetry enabled", logger.String("release", release))

	return func() {
		errors.SetTelemetryReporter(nil)
		sentry.Flush(flushTimeout)
	}, nil
}

// applyPrivacyFilters strips host and user identifying data from an event.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}

	for k := range event.Extra {
		if k != "error_type" && k != "component" {
			delete(event.Extra, k)
		}
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}

	return event
}
