package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy is a generic retry-with-backoff policy parameterised by a
// failure classifier, independent of any particular delivery channel.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Retryable  func(error) bool
}

// Execute runs op, retrying classified-retryable failures with exponential
// backoff up to MaxRetries times. It returns the number of retries performed
// alongside the final error.
func (p RetryPolicy) Execute(ctx context.Context, op func(context.Context) error) (int, error) {
	base := p.BaseDelay
	if base <= 0 {
		base = 2 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	b.Reset()

	retries := 0
	for {
		err := op(ctx)
		if err == nil {
			return retries, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return retries, err
		}
		if retries >= p.MaxRetries {
			return retries, err
		}

		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return retries, ctx.Err()
		case <-timer.C:
		}
		retries++
	}
}
