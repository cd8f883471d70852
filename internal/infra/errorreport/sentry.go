// Package errorreport sends pipeline failures to Sentry.
package errorreport

import (
	"context"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/bryanwahyu/medcoder/internal/config"
	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

// Reporter captures errors on its own hub. Without a DSN nothing leaves the process.
type Reporter struct {
	hub *sentry.Hub
}

var _ pipeline.Reporter = (*Reporter)(nil)

// New builds a Reporter. transport is only set by tests.
func New(cfg config.SentryConfig, transport sentry.Transport) (*Reporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Transport:   transport,
	})
	if err != nil {
		return nil, err
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

// Report captures err with tags. Detail payloads stay out of the event since
// they can carry document text.
func (r *Reporter) Report(ctx context.Context, err error, tags map[string]string) {
	if err == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", "pipeline")
		for k, v := range tags {
			if v != "" {
				scope.SetTag(k, v)
			}
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events.
func (r *Reporter) Flush(timeout time.Duration) bool {
	return r.hub.Flush(timeout)
}
