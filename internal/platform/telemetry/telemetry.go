// Package telemetry reports unexpected errors to Sentry.
package telemetry

import (
	"time"

	"github.com/brightleads/dmengine/internal/config"
	"github.com/getsentry/sentry-go"
)

// Reporter captures errors surfaced by the Job Runner and other background
// work that has no HTTP request to return an error response on. A Reporter
// with no DSN configured drops every report, which keeps local development
// and tests free of a live Sentry dependency.
type Reporter struct {
	enabled bool
}

// Init configures the global Sentry SDK and returns a Reporter bound to it.
func Init(cfg config.TelemetryConfig, env string) (*Reporter, error) {
	if cfg.SentryDSN == "" {
		return &Reporter{enabled: false}, nil
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      env,
		TracesSampleRate: 0,
	}); err != nil {
		return nil, err
	}

	return &Reporter{enabled: true}, nil
}

// CaptureError reports err to Sentry with the given tags attached. It is
// safe to call on a disabled Reporter.
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if !r.enabled || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		sentry.CaptureException(err)
	})
}

// Flush blocks until buffered events are sent or the timeout elapses, meant
// to be deferred in main so a process exit doesn't drop the last report.
func (r *Reporter) Flush(timeout time.Duration) {
	if !r.enabled {
		return
	}
	sentry.Flush(timeout)
}
