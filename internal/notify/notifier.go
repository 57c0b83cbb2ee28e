package notify

import (
	"context"
	"errors"
	"fmt"
)

// Channel 定义告警输送通道接口。
type Channel interface {
	Name() string
	Send(ctx context.Context, text string) error
}

// TransientError marks a delivery failure worth retrying: timeouts, network
// errors, 5xx-equivalent responses. Anything else is treated as permanent.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient delivery failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err carries a transient delivery failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
