package resilience

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
)

func TestRetry_Success(t *testing.T) {
	config := DefaultRetryConfig()
	config.InitialBackoff = time.Millisecond
	attempts := 0

	err := Retry(context.Background(), config, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("interface down")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetry_MaxRetriesExceeded(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        2,
		InitialBackoff:    1 * time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryableErrors:   DefaultRetryableErrors,
	}

	attempts := 0
	cause := errors.New("persistent error")
	err := Retry(context.Background(), config, func() error {
		attempts++
		return cause
	})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, ErrRetriesExhausted))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, 3, attempts, "initial attempt + 2 retries")
}

func TestRetry_NonRetryableError(t *testing.T) {
	config := ConstantBackoff(time.Millisecond, 10*time.Millisecond)
	attempts := 0
	err := Retry(context.Background(), config, func() error {
		attempts++
		return Permanent(errors.New("no such interface"))
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "non-retryable")
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancellation(t *testing.T) {
	config := RetryConfig{
		MaxRetries:        5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableErrors:   DefaultRetryableErrors,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := Retry(ctx, config, func() error {
		attempts++
		return errors.New("temporary error")
	})

	assert.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.GreaterOrEqual(t, attempts, 1)
	assert.LessOrEqual(t, attempts, 3)
}

func TestConstantBackoff(t *testing.T) {
	config := ConstantBackoff(500*time.Millisecond, 4*time.Second)
	assert.Equal(t, 8, config.MaxRetries)
	for attempt := 0; attempt < 8; attempt++ {
		assert.Equal(t, 500*time.Millisecond, calculateBackoff(attempt, config))
	}
	assert.Equal(t, 0, ConstantBackoff(0, time.Second).MaxRetries)

	attempts := 0
	start := time.Now()
	err := Retry(context.Background(), ConstantBackoff(10*time.Millisecond, 30*time.Millisecond), func() error {
		attempts++
		return errors.New("not yet")
	})
	assert.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestDefaultRetryableErrors(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{nil, false},
		{errors.New("network error"), true},
		{context.Canceled, false},
		{errors.Wrap(context.DeadlineExceeded, "wait"), false},
		{io.EOF, false},
		{Permanent(errors.New("bad")), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.retryable, DefaultRetryableErrors(tt.err), "%v", tt.err)
	}
	assert.Nil(t, Permanent(nil))
}

func TestCalculateBackoff(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, 1 * time.Second},
		{5, 1 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, calculateBackoff(tt.attempt, config), "attempt %d", tt.attempt)
	}
}

func TestCalculateBackoffWithJitter(t *testing.T) {
	config := RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}

	results := make(map[time.Duration]bool)
	for range 10 {
		results[calculateBackoff(1, config)] = true
	}
	assert.GreaterOrEqual(t, len(results), 2, "jitter should vary the wait")
	for d := range results {
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}
