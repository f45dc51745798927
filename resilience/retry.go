// Package resilience holds the retry loop used to wait on conditions that settle over time, such
// as a modem bringing its data interface up.
package resilience

import (
	"context"
	"io"
	"math"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrRetriesExhausted is wrapped into the error returned when every attempt failed.
var ErrRetriesExhausted = errors.New("max retries exceeded")

// RetryConfig defines configuration for retry logic
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first one
	MaxRetries int

	// InitialBackoff is the wait before the first retry
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait per attempt, 1 keeps it constant
	BackoffMultiplier float64

	// Jitter adds up to 10% randomness to each wait
	Jitter bool

	// RetryableErrors decides if an error is worth another attempt
	RetryableErrors func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

// ConstantBackoff polls every interval until total has elapsed. The first attempt runs
// immediately, so total/interval retries follow it.
func ConstantBackoff(interval, total time.Duration) RetryConfig {
	retries := 0
	if interval > 0 {
		retries = int(total / interval)
	}
	return RetryConfig{
		MaxRetries:        retries,
		InitialBackoff:    interval,
		MaxBackoff:        interval,
		BackoffMultiplier: 1,
		RetryableErrors:   DefaultRetryableErrors,
	}
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err so Retry stops at once.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// DefaultRetryableErrors retries everything except cancellation, EOF and permanent errors.
func DefaultRetryableErrors(err error) bool {
	if err == nil {
		return false
	}
	var p *permanentError
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.EOF) {
		return false
	}
	return true
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// Retry runs fn until it succeeds, returns a non-retryable error, runs out of attempts or ctx is done.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return errors.Wrap(err, "non-retryable error")
		}

		if attempt == config.MaxRetries {
			break
		}

		timer := time.NewTimer(calculateBackoff(attempt, config))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Wrapf(errors.CombineErrors(ctx.Err(), lastErr), "retry cancelled after %d attempts", attempt+1)
		case <-timer.C:
		}
	}

	return errors.Mark(errors.Wrapf(lastErr, "%s (%d)", ErrRetriesExhausted, config.MaxRetries), ErrRetriesExhausted)
}

// calculateBackoff calculates the backoff duration for a given attempt
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	multiplier := config.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 1
	}
	backoff := float64(config.InitialBackoff) * math.Pow(multiplier, float64(attempt))

	if config.MaxBackoff > 0 && backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}

	if config.Jitter {
		backoff += rand.Float64() * 0.1 * backoff
	}

	return time.Duration(backoff)
}
