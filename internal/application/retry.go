package application

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/bryanwahyu/medcoder/internal/domain/pipeline"
)

// RetryPolicy bounds how often an external call is attempted. Only errors
// marked temporary by the pipeline taxonomy are retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// NoRetry runs every call exactly once.
var NoRetry = RetryPolicy{MaxAttempts: 1}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = 0
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}

// Retry runs op under policy p. The last error op returned is what the caller
// sees, also when ctx ends the retries early.
func Retry[T any](ctx context.Context, p RetryPolicy, log zerolog.Logger, name string, op func() (T, error)) (T, error) {
	var last error
	attempt := 0
	out, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := op()
		if err != nil {
			last = err
			if !pipeline.IsTemporary(err) {
				return v, backoff.Permanent(err)
			}
		}
		return v, err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("call", name).Int("attempt", attempt).Dur("wait", wait).Msg("retrying")
	})
	if err != nil && last != nil {
		return out, last
	}
	return out, err
}

// RetryErr is Retry for calls without a result.
func RetryErr(ctx context.Context, p RetryPolicy, log zerolog.Logger, name string, op func() error) error {
	_, err := Retry(ctx, p, log, name, func() (struct{}, error) {
		return struct{}{}, op()
	})
	return err
}
