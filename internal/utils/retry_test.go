package utils_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-submission-gateway/internal/utils"
)

func TestBackoffDelaysMatchesRefreshSchedule(t *testing.T) {
	delays := utils.BackoffDelays(2, time.Second, 1.5)
	require.Equal(t, []time.Duration{time.Second, 1500 * time.Millisecond}, delays)
	require.Nil(t, utils.BackoffDelays(0, time.Second, 1.5))
}

func TestRetryWithDelaysStopsWhenDone(t *testing.T) {
	calls := 0
	result, err := utils.RetryWithDelays(context.Background(), []time.Duration{time.Millisecond, time.Millisecond}, func(ctx context.Context) (int, bool, error) {
		calls++
		return calls, calls == 2, nil
	})

	require.NoError(t, err)
	require.Equal(t, 2, result)
	require.Equal(t, 2, calls)
}

func TestRetryWithDelaysExhaustsSchedule(t *testing.T) {
	calls := 0
	result, err := utils.RetryWithDelays(context.Background(), []time.Duration{time.Millisecond, time.Millisecond}, func(ctx context.Context) (string, bool, error) {
		calls++
		return "stale", false, nil
	})

	require.ErrorIs(t, err, utils.ErrRetriesExhausted)
	require.Equal(t, "stale", result)
	require.Equal(t, 3, calls)
}

func TestRetryWithDelaysReturnsCallError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := utils.RetryWithDelays(context.Background(), []time.Duration{time.Millisecond}, func(ctx context.Context) (int, bool, error) {
		calls++
		return 0, false, boom
	})

	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestRetryWithDelaysHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := utils.RetryWithDelays(ctx, []time.Duration{time.Hour}, func(ctx context.Context) (int, bool, error) {
		calls++
		cancel()
		return 0, false, nil
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}
