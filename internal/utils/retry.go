package utils

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted is returned when every scheduled attempt ran without reaching a result.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryFunc performs one attempt. done reports whether the result is final.
type RetryFunc[T any] func(ctx context.Context) (result T, done bool, err error)

// RetryWithDelays runs fn immediately and then once after each delay until it reports done.
// A non-nil error stops the loop. When the schedule runs out the last result is returned
// together with ErrRetriesExhausted so callers can still present it.
func RetryWithDelays[T any](ctx context.Context, delays []time.Duration, fn RetryFunc[T]) (T, error) {
	var last T
	attempts := len(delays) + 1

	for i := 0; i < attempts; i++ {
		if i > 0 {
			timer := time.NewTimer(delays[i-1])
			select {
			case <-ctx.Done():
				timer.Stop()
				return last, ctx.Err()
			case <-timer.C:
			}
		}

		result, done, err := fn(ctx)
		if err != nil {
			return result, err
		}
		last = result
		if done {
			return result, nil
		}
	}

	return last, fmt.Errorf("after %d attempts: %w", attempts, ErrRetriesExhausted)
}

// BackoffDelays builds a schedule of retries starting at base and growing by factor.
func BackoffDelays(retries int, base time.Duration, factor float64) []time.Duration {
	if retries <= 0 || base <= 0 {
		return nil
	}
	if factor < 1 {
		factor = 1
	}

	delays := make([]time.Duration, 0, retries)
	current := float64(base)
	for i := 0; i < retries; i++ {
		delays = append(delays, time.Duration(current))
		current *= factor
	}
	return delays
}
