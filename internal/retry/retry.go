package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool
}

// APIConfig returns config for idempotent platform API reads
func APIConfig() Config {
	return Config{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         true,
	}
}

// NoRetry runs the function exactly once
func NoRetry() Config {
	return Config{MaxAttempts: 1}
}

// IsRetryable checks if an error should be retried
type IsRetryable func(error) bool

// DefaultRetryable retries on temporary and timeout errors
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	type temporary interface {
		Temporary() bool
	}
	var te temporary
	if errors.As(err, &te) && te.Temporary() {
		return true
	}

	type timeout interface {
		Timeout() bool
	}
	var to timeout
	if errors.As(err, &to) && to.Timeout() {
		return true
	}

	return false
}

// DoWithRetryable executes a function with retry logic and custom retryability check
func DoWithRetryable(ctx context.Context, config Config, isRetryable IsRetryable, fn func(context.Context) error) error {
	var lastErr error
	backoff := config.InitialBackoff
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) || attempt >= config.MaxAttempts {
			return err
		}

		delay := backoff
		if config.Jitter {
			// +/-25%
			jitter := time.Duration(float64(backoff) * 0.25 * (2*rng.Float64() - 1))
			delay = backoff + jitter
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return lastErr
		}

		backoff = time.Duration(float64(backoff) * config.Multiplier)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}
