// Package retry runs external calls with bounded exponential backoff.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds how an operation is retried
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// AttemptTimeout bounds every single attempt; zero leaves attempts unbounded
	AttemptTimeout time.Duration
}

// Default retries three times starting at half a second
var Default = Policy{
	MaxRetries:      3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// WithTimeout returns a copy of the policy with a per-attempt timeout
func (p Policy) WithTimeout(d time.Duration) Policy {
	p.AttemptTimeout = d
	return p
}

// Worst is the longest a call under the policy can take: every attempt
// hitting its timeout plus the capped backoff between attempts. Zero when
// attempts are unbounded.
func (p Policy) Worst() time.Duration {
	if p.AttemptTimeout <= 0 {
		return 0
	}
	n := time.Duration(p.MaxRetries)
	return p.AttemptTimeout*(n+1) + p.MaxInterval*n
}

// Permanent marks an error as not worth retrying (validation, 4xx, decode)
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Do calls fn until it succeeds, returns a permanent error, the retries are
// exhausted or ctx is done. op names the call in logs.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	var (
		result  T
		attempt int
	)
	operation := func() error {
		attempt++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		defer cancel()

		value, err := fn(attemptCtx)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = value
		return nil
	}

	notify := func(err error, wait time.Duration) {
		slog.Warn("Retrying external call",
			"op", op,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, p.MaxRetries), ctx)
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
