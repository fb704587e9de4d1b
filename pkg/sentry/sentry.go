package sentry

import (
	"fmt"
	"time"

	"github.com/angelmondragon/poflow-backend/pkg/config"
	"github.com/getsentry/sentry-go"
)

// Reporter forwards unexpected errors to Sentry. A nil or disabled Reporter
// drops everything, so callers never need to branch on configuration.
type Reporter struct {
	hub *sentry.Hub
}

// New builds a Reporter. An empty DSN yields a disabled Reporter.
func New(cfg config.SentryConfig, appEnv string) (*Reporter, error) {
	if !cfg.Enabled() {
		return &Reporter{}, nil
	}

	env := cfg.Environment
	if env == "" {
		env = appEnv
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      env,
		SampleRate:       cfg.SampleRate,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("init sentry client: %w", err)
	}

	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Enabled reports whether events are actually sent.
func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// CaptureError reports err with the provided tags on an isolated scope.
func (r *Reporter) CaptureError(err error, tags map[string]string) {
	if !r.Enabled() || err == nil {
		return
	}

	hub := r.hub.Clone()
	hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			if v == "" {
				continue
			}
			scope.SetTag(k, v)
		}
		hub.CaptureException(err)
	})
}

// Flush waits for queued events to be delivered.
func (r *Reporter) Flush(timeout time.Duration) bool {
	if !r.Enabled() {
		return true
	}
	return r.hub.Flush(timeout)
}
