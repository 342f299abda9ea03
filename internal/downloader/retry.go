package downloader

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryConfig returns the transfer defaults: three attempts, 1s base delay.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// newBackoff builds an exponential policy where attempt n waits
// InitialDelay * 2^n, capped at MaxDelay.
func (c RetryConfig) newBackoff() *backoff.Backoff {
	maxDelay := c.MaxDelay
	if maxDelay < c.InitialDelay {
		maxDelay = c.InitialDelay
	}
	return &backoff.Backoff{
		Min:    c.InitialDelay,
		Max:    maxDelay,
		Factor: 2,
		Jitter: false,
	}
}

// DelayForAttempt returns the wait after the zero-based attempt failed.
func (c RetryConfig) DelayForAttempt(attempt int) time.Duration {
	return c.newBackoff().ForAttempt(float64(attempt))
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
