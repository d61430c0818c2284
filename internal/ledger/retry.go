package ledger

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds how often a mutation that lost a concurrency race is
// replayed. Delays grow exponentially from BaseDelay up to MaxDelay with jitter.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 20 * time.Millisecond, MaxDelay: 500 * time.Millisecond}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// backoff returns the pause after the given failed attempt (1-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			delay = p.MaxDelay
			break
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	half := delay / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

// do runs fn until it succeeds, fails with a non-conflict error, or the
// attempt budget is spent. It returns the last error and the attempts made.
func (p RetryPolicy) do(ctx context.Context, fn func() error, onRetry func(attempt int, err error)) (int, error) {
	limit := p.attempts()
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil || !IsConflict(err) || attempt >= limit {
			return attempt, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		delay := p.backoff(attempt)
		if delay <= 0 {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return attempt, ctxErr
			}
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}
}
