package executor

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// linearBackoff implements retry.Backoff with a delay*attempt pause
// between attempts. Step retry is linear; the run queue's outer retry
// loop is the exponential one.
type linearBackoff struct {
	delay   time.Duration
	attempt uint64
}

func (b *linearBackoff) Next() (time.Duration, bool) {
	b.attempt++
	return b.delay * time.Duration(b.attempt), false
}

// callWithRetry invokes fn up to attempts times total, pausing delay*i
// between attempt i and attempt i+1, and propagates the final error on
// exhaustion.
func callWithRetry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), &linearBackoff{delay: delay})
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := fn(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}
