package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures Retry.
type RetryConfig struct {
	// MaxRetries counts attempts after the first.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter scales each delay into [delay/2, delay).
	Jitter bool
	// Retryable reports whether an error is worth another attempt. Nil
	// retries every error.
	Retryable func(error) bool
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

func (c RetryConfig) next(delay time.Duration) time.Duration {
	delay = time.Duration(float64(delay) * c.Multiplier)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

func (c RetryConfig) wait(delay time.Duration) time.Duration {
	if !c.Jitter {
		return delay
	}
	return time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
}

// Retry calls fn until it succeeds, returns an error that is not
// retryable, or runs out of attempts. Cancellation of ctx ends the loop
// with the context error wrapping the last failure.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return contextFailure(err, lastErr)
		}

		err := fn()
		if err == nil {
			return nil
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return err
		}
		lastErr = err
		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
		}

		timer := time.NewTimer(cfg.wait(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return contextFailure(ctx.Err(), lastErr)
		case <-timer.C:
		}
		delay = cfg.next(delay)
	}
}

func contextFailure(ctxErr, lastErr error) error {
	if lastErr == nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %w", ctxErr, lastErr)
}
