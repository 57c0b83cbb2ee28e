package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Retryable: IsTransient}

	calls := 0
	retries, err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return errors.New("permanent")
	})
	if err == nil {
		t.Fatal("permanent error must be returned")
	}
	if calls != 1 || retries != 0 {
		t.Fatalf("permanent error must not be retried: calls=%d retries=%d", calls, retries)
	}
}

func TestRetryPolicyExhaustsTransientErrors(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, Retryable: IsTransient}

	calls := 0
	retries, err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		return Transient(errors.New("flaky"))
	})
	if err == nil {
		t.Fatal("exhausted retries must surface the error")
	}
	if calls != 3 {
		t.Fatalf("MaxRetries=2 means 3 attempts, got %d", calls)
	}
	if retries != 2 {
		t.Fatalf("retries should be 2, got %d", retries)
	}
}

func TestRetryPolicyRecovers(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, Retryable: IsTransient}

	calls := 0
	retries, err := policy.Execute(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("op eventually succeeds: %v", err)
	}
	if retries != 2 {
		t.Fatalf("two retries before success, got %d", retries)
	}
}

func TestRetryPolicyHonoursContext(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Hour, Retryable: IsTransient}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := policy.Execute(ctx, func(ctx context.Context) error {
		return Transient(errors.New("flaky"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled context must abort the backoff wait, got %v", err)
	}
}
