package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gorm.io/gorm"
)

const maxRetryInterval = 2 * time.Second

// retryOp reruns op with exponential backoff. Context errors and missing rows are final.
func retryOp[T any](ctx context.Context, attempts int, initial time.Duration, op func() (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = initial
	policy.MaxInterval = maxRetryInterval

	return backoff.Retry(ctx, func() (T, error) {
		value, err := op()
		if err != nil && !retryable(err) {
			return value, backoff.Permanent(err)
		}
		return value, err
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(attempts)))
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false
	default:
		return true
	}
}
