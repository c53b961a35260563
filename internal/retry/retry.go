// Package retry holds the exponential backoff shared by every call that
// leaves the process: camera reads, robot sensors, daemon requests.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Config controls the backoff schedule.
type Config struct {
	MaxRetries int           // attempts after the first; 0 means no retries
	Delay      time.Duration // first retry delay
	MaxDelay   time.Duration // cap on any single delay
}

// DefaultConfig retries three times starting at 100ms.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		Delay:      100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Backoff returns the delay before retry number attempt (1-based):
// Delay * 2^(attempt-1), capped at MaxDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := cfg.Delay * time.Duration(1<<uint(attempt-1))
	if cfg.MaxDelay > 0 && (delay > cfg.MaxDelay || delay <= 0) {
		delay = cfg.MaxDelay
	}
	return delay
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Do calls fn until it succeeds, returns a permanent error, or the retries
// are exhausted. The last error is returned.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if serr := Sleep(ctx, Backoff(attempt, cfg)); serr != nil {
				return fmt.Errorf("%w (last error: %v)", serr, err)
			}
		}
		err = fn(ctx)
		if err == nil || errors.Is(err, ErrPermanent) {
			return err
		}
		if attempt >= cfg.MaxRetries {
			return fmt.Errorf("after %d attempts: %w", attempt+1, err)
		}
	}
}

// Result calls fn like Do and returns its value.
func Result[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := Do(ctx, cfg, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
