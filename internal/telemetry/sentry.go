// Package telemetry wires opt-in Sentry error reporting. Nothing is sent
// unless it is enabled in the configuration.
package telemetry

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/logger"
)

// Options are test hooks for Init
type Options struct {
	Transport sentry.Transport
}

// Init configures the Sentry SDK and routes enhanced errors to it. It returns
// false without error when telemetry is disabled.
func Init(settings *conf.SentrySettings, version string, opts Options) (bool, error) {
	log := logger.Global().Module("telemetry")
	if settings == nil || !settings.Enabled {
		log.Debug("sentry telemetry is disabled")
		return false, nil
	}

	sampleRate := settings.SampleRate
	if sampleRate <= 0 || sampleRate > 1 {
		sampleRate = 1
	}
	env := settings.Environment
	if env == "" {
		env = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       sampleRate,
		Environment:      env,
		Release:          fmt.Sprintf("audio-annotator@%s", version),
		AttachStacktrace: false,
		ServerName:       "",
		Transport:        opts.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	})
	if err != nil {
		return false, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Build()
	}

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("sentry telemetry enabled",
		logger.String("environment", env),
		logger.Float64("sample_rate", sampleRate))
	return true, nil
}

// Shutdown stops forwarding errors and flushes pending events
func Shutdown(timeout time.Duration) bool {
	errors.SetTelemetryReporter(nil)
	return sentry.Flush(timeout)
}

// applyPrivacyFilters strips host and user identifying data
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	for _, key := range []string{"device", "os", "runtime"} {
		delete(event.Contexts, key)
	}
	for k := range event.Extra {
		if k != "component" && k != "error_type" {
			delete(event.Extra, k)
		}
	}
	delete(event.Tags, "server_name")
	delete(event.Tags, "hostname")
	return event
}
