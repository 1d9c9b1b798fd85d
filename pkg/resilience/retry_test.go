package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_Success(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func() error {
		calls++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls) // Should succeed on first try
}

func TestRetry_FailThenSucceed(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}, func() error {
		calls++
		if calls < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_AllFail(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}, func() error {
		calls++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Equal(t, 3, calls) // Initial + 2 retries
}

func TestRetry_ContextCancelStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := Retry(ctx, RetryConfig{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Hour, // would stall without cancellation
		MaxBackoff:     1 * time.Hour,
		Multiplier:     2.0,
	}, func() error {
		calls++
		cancel()
		return errors.New("unreachable")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
