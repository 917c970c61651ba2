package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(n int) *RetryConfig {
	c := DefaultRetryConfig()
	c.MaxRetries = n
	c.BaseDelay = time.Millisecond
	c.Jitter = false
	return c
}

func TestRetryManager(t *testing.T) {
	rm := NewRetryManager(fastRetry(2))

	attempts := 0
	result, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 1, attempts)
}

func TestRetryManagerWithRetries(t *testing.T) {
	var retried []int
	rm := NewRetryManager(fastRetry(3)).OnRetry(func(attempt int, err error) {
		retried = append(retried, attempt)
	})

	attempts := 0
	result, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts < 3 {
			return nil, NewHTTPError(503, "Service unavailable", "")
		}
		return "success", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "success", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryManagerMaxRetriesExceeded(t *testing.T) {
	rm := NewRetryManager(fastRetry(2))

	attempts := 0
	_, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, NewHTTPError(500, "Internal server error", "")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 500, httpErr.StatusCode)
}

func TestRetryManagerNonRetryableError(t *testing.T) {
	rm := NewRetryManager(fastRetry(3))

	attempts := 0
	_, err := rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, NewHTTPError(400, "Bad request", "")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)

	attempts = 0
	_, err = rm.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		attempts++
		return nil, errors.New("invalid strategy")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryManagerContextCancellation(t *testing.T) {
	c := fastRetry(5)
	c.BaseDelay = time.Second
	rm := NewRetryManager(c)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := rm.Execute(ctx, func(ctx context.Context) (interface{}, error) {
		return nil, NewHTTPError(429, "Too many requests", "")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryableHTTPError(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableHTTPError(code), code)
	}
	for _, code := range []int{200, 400, 404} {
		assert.False(t, IsRetryableHTTPError(code), code)
	}
	assert.Equal(t, "HTTP 503: down", NewHTTPError(503, "down", "").Error())
}

func TestProtectorRetriesInsideBreaker(t *testing.T) {
	p := NewProtector(fastRetry(2), nil, nil)

	attempts := 0
	result, err := p.Execute(context.Background(), "llm", func(ctx context.Context) (interface{}, error) {
		attempts++
		if attempts == 1 {
			return nil, NewHTTPError(502, "Bad gateway", "")
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, uint32(1), p.Breakers().Stats("llm")["requests"])
}
