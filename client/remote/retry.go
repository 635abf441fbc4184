package remote

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how model loads are retried while the catalog is not ready.
type RetryPolicy struct {
	MaxAttempts uint
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 8,
		BaseDelay:   500 * time.Millisecond,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
	}
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          p.Multiplier,
		MaxInterval:         p.MaxDelay,
	}
	b.Reset()
	return b
}

// Delays lists the waits between attempts the policy allows.
func (p RetryPolicy) Delays() []time.Duration {
	if p.MaxAttempts < 2 {
		return nil
	}
	b := p.backOff()
	delays := make([]time.Duration, 0, p.MaxAttempts-1)
	for i := uint(1); i < p.MaxAttempts; i++ {
		delays = append(delays, b.NextBackOff())
	}
	return delays
}

// retry runs op until it succeeds, returns a permanent error, ctx is done or
// the attempt budget is spent. notify is called before every wait.
func retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error), notify func(err error, next time.Duration)) (T, error) {
	opts := []backoff.RetryOption{
		backoff.WithBackOff(p.backOff()),
		backoff.WithMaxTries(p.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(notify))
	}
	return backoff.Retry(ctx, op, opts...)
}
