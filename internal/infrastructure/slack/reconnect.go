package slack

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	domainerrors "github.com/qj0r9j0vc2/slacks/internal/domain/errors"
)

// ReconnectionConfig bounds the delay between stream reconnects.
type ReconnectionConfig struct {
	InitialBackoff    time.Duration // first delay after a stream that delivered nothing (default: 500ms)
	MaxBackoff        time.Duration // ceiling (default: 60s)
	BackoffMultiplier float64       // growth per quiet reconnect (default: 1.5)
}

// DefaultReconnectionConfig returns default reconnection configuration.
func DefaultReconnectionConfig() ReconnectionConfig {
	return ReconnectionConfig{
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        60 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// CalculateBackoff returns the capped exponential delay for the given attempt, counted from zero.
func CalculateBackoff(cfg ReconnectionConfig, attempt int) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffMultiplier, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}

// reconnectDelay is zero for the first reconnect after a stream that
// delivered frames, and grows with each consecutive quiet stream.
func reconnectDelay(cfg ReconnectionConfig, quietStreams int) time.Duration {
	if quietStreams <= 0 {
		return 0
	}
	return CalculateBackoff(cfg, quietStreams-1)
}

// RetryPolicy retries REST commands that failed transiently.
type RetryPolicy struct {
	MaxAttempts     int           // attempts including the first (default: 3)
	InitialInterval time.Duration // first backoff (default: 200ms)
	MaxInterval     time.Duration // backoff ceiling (default: 5s)
	Multiplier      float64       // growth per attempt (default: 2)
	JitterFactor    float64       // random spread as a fraction of the backoff (default: 0.1)
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0.1,
	}
}

// Do runs op until it succeeds, fails permanently or attempts run out.
// onRetry, when set, is called before each wait.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, onRetry func(attempt int, wait time.Duration, err error)) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !domainerrors.IsTransientError(lastErr) || attempt == attempts {
			return lastErr
		}

		wait := p.backoff(attempt)
		if onRetry != nil {
			onRetry(attempt, wait, lastErr)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return lastErr
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt-1))
	if ceiling := float64(p.MaxInterval); ceiling > 0 && d > ceiling {
		d = ceiling
	}
	if p.JitterFactor > 0 {
		d += d * p.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
