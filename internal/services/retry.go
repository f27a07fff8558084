package services

import (
	"context"
	"time"

	apperrors "dance-match-backend/pkg/errors"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

// RetryPolicy bounds the retries of transient store failures
type RetryPolicy struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when a component is built without one
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:     5,
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     2 * time.Second,
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	return b
}

// retry runs fn until it succeeds, fails permanently or exhausts the policy.
// Only errors tagged as transient are retried.
func retry[T any](ctx context.Context, p RetryPolicy, op string, fn func() (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}
	attempt := 0
	return backoff.Retry(ctx, func() (T, error) {
		attempt++
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !apperrors.IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Msg("Transient store failure")
		return v, err
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(attempts))
}
