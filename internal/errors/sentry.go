package errors

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// SentryReporter forwards operational errors to Sentry. Validation, not-found
// and evaluation errors are caller mistakes or expected rule misses and are
// never sent.
type SentryReporter struct {
	hub *sentry.Hub
}

// NewSentryReporter initializes a Sentry client for dsn.
func NewSentryReporter(dsn, environment, release string) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, Newf("failed to initialize sentry: %w", err).
			Component("telemetry").
			Category(CategoryConfiguration).
			Build()
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) Report(err *EnhancedError) {
	switch err.Category() {
	case CategoryValidation, CategoryNotFound, CategoryEvaluation:
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", err.Component())
		scope.SetTag("category", string(err.Category()))
		if ctx := err.Context(); len(ctx) > 0 {
			scope.SetContext("error_context", sentry.Context(ctx))
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits up to timeout for queued events to be delivered.
func (r *SentryReporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}
