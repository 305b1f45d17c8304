// Package retry is the single retry policy shared by the GitHub fetchers and
// the embedding providers.
//
// Transient failures (network errors, 5xx, per-call timeouts) are retried
// with exponential backoff. Quota refusals, missing sources, invalid input
// and cancellation of the caller's context are returned immediately.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/custodia-labs/repolens/internal/core/domain"
	"github.com/custodia-labs/repolens/internal/logger"
)

// Default policy values.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = time.Second
	DefaultMaxInterval     = 60 * time.Second
	DefaultMultiplier      = 2.0
)

// Policy configures retries.
type Policy struct {
	// MaxAttempts counts the first call. 1 disables retries.
	MaxAttempts uint

	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	// Jitter is the randomisation factor applied to each interval.
	Jitter float64
}

// DefaultPolicy returns 3 attempts, 1s base doubling up to 60s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
		Multiplier:      DefaultMultiplier,
		Jitter:          0.1,
	}
}

// NoWait returns a policy with the default attempt count and tiny intervals.
// Tests use it to exercise retries without sleeping.
func NoWait() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
	}
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	b.RandomizationFactor = p.Jitter
	return b
}

// Do runs op until it succeeds, fails permanently, or runs out of attempts.
// The label names the operation in debug logs.
func Do[T any](ctx context.Context, p Policy, label string, op func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = DefaultMaxAttempts
	}

	wrapped := func() (T, error) {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	return backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("retry %s in %s: %v", label, next, err)
		}),
	)
}

// transientError marks an error as retryable regardless of its chain.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsRetryable reports whether an error is worth another attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var transient *transientError
	if errors.As(err, &transient) {
		return true
	}
	switch {
	case errors.Is(err, domain.ErrQuotaExceeded),
		errors.Is(err, domain.ErrSourceUnavailable),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmbeddingProviderMismatch),
		errors.Is(err, domain.ErrEmbeddingUnavailable),
		errors.Is(err, domain.ErrRateLimited),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
