package pipeline

import "context"

// Reporter forwards failures to an external error tracker.
type Reporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}

// NopReporter drops everything.
type NopReporter struct{}

func (NopReporter) Report(context.Context, error, map[string]string) {}
