package extraction

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = retryPolicy{maxRetries: 2, base: time.Millisecond, cap: 4 * time.Millisecond, factor: 2}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 409, 429, 500, 502, 503} {
		assert.True(t, retryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 422} {
		assert.False(t, retryableStatus(code), "status %d", code)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&statusError{code: 503}))
	assert.True(t, isRetryable(context.DeadlineExceeded))
	assert.False(t, isRetryable(&statusError{code: 404}))
	assert.False(t, isRetryable(errors.New("schema mismatch")))
	assert.False(t, isRetryable(nil))
}

func TestWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	result, err := withRetry(context.Background(), slog.Default(), testPolicy, "parse", func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", &statusError{code: 503}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), slog.Default(), testPolicy, "parse", func(context.Context) (string, error) {
		attempts++
		return "", &statusError{code: 422}
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWithRetryExhausts(t *testing.T) {
	attempts := 0
	_, err := withRetry(context.Background(), slog.Default(), testPolicy, "parse", func(context.Context) (string, error) {
		attempts++
		return "", &statusError{code: 500}
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "retries exhausted")
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	slow := retryPolicy{maxRetries: 2, base: time.Minute, cap: time.Minute, factor: 2}
	_, err := withRetry(ctx, slog.Default(), slow, "parse", func(context.Context) (string, error) {
		return "", &statusError{code: 500}
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	p := retryPolicy{maxRetries: 5, base: 500 * time.Millisecond, cap: 8 * time.Second, factor: 2}
	assert.Equal(t, 500*time.Millisecond, p.delay(1))
	assert.Equal(t, time.Second, p.delay(2))
	assert.Equal(t, 8*time.Second, p.delay(10))
}
