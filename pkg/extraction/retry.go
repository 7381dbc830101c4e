package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"time"
)

// retryPolicy parameterizes the shared remote-call retry loop. All extraction
// HTTP paths reuse the same helper so backoff behavior stays in one place.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	cap        time.Duration
	factor     float64
}

var defaultRetryPolicy = retryPolicy{
	maxRetries: 2,
	base:       500 * time.Millisecond,
	cap:        8 * time.Second,
	factor:     2,
}

// delay returns the backoff before retry attempt n (1-based).
func (p retryPolicy) delay(attempt int) time.Duration {
	d := time.Duration(float64(p.base) * math.Pow(p.factor, float64(attempt-1)))
	if d > p.cap {
		return p.cap
	}
	return d
}

// statusError is a non-2xx response from the extraction service.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("extraction service returned %d: %s", e.code, e.body)
}

// retryableStatus reports whether an HTTP status warrants a retry.
func retryableStatus(code int) bool {
	return code == 408 || code == 409 || code == 429 || code >= 500
}

// isRetryable classifies transport and status errors. Connection errors,
// timeouts, 408, 409, 429 and 5xx are retried; other 4xx propagate.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return retryableStatus(se.code)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// withRetry runs fn up to 1+maxRetries times, sleeping between attempts and
// honoring context cancellation. Non-retryable errors return immediately.
func withRetry[T any](ctx context.Context, logger *slog.Logger, policy retryPolicy, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= policy.maxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.delay(attempt)
			logger.Warn("Retrying remote call",
				"operation", op,
				"attempt", attempt,
				"delay", delay,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !isRetryable(err) {
			return zero, err
		}
		lastErr = err
	}
	return zero, fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}
