package connector

import (
	"context"
	"time"
)

// MaxBackoff caps the delay between two attempts.
const MaxBackoff = 10 * time.Minute

// Backoff returns the delay before the retry that follows the given 0-indexed
// attempt: base * 2^attempt, saturating at MaxBackoff.
func Backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 || base > MaxBackoff>>attempt {
		return MaxBackoff
	}
	return base << attempt
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
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
