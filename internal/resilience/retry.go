package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrExhausted is returned by [RetryPolicy.Do] when every attempt completed
// without reporting success.
var ErrExhausted = errors.New("retry budget exhausted")

// RetryPolicy is a bounded, fixed-backoff retry budget.
type RetryPolicy struct {
	// Name is a human-readable label used in log messages.
	Name string

	// MaxAttempts is the total number of attempts including the first one.
	// Default: 4.
	MaxAttempts int

	// Backoff is the fixed delay between attempts. Default: 100ms.
	Backoff time.Duration
}

// withDefaults returns a copy of p with zero fields replaced by defaults.
func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 4
	}
	if p.Backoff <= 0 {
		p.Backoff = 100 * time.Millisecond
	}
	return p
}

// Do calls fn until it reports done, returns an error, or the attempt budget
// is used up. attempt is 1-based. Between attempts Do waits Backoff on clk.
//
// Do returns the number of attempts made alongside:
//   - nil when fn reported done,
//   - the error from fn, wrapped, when fn failed,
//   - ctx.Err() when ctx ended while waiting,
//   - [ErrExhausted] when no attempt reported done.
func (p RetryPolicy) Do(ctx context.Context, clk Clock, fn func(ctx context.Context, attempt int) (done bool, err error)) (int, error) {
	p = p.withDefaults()
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := Sleep(ctx, clk, p.Backoff); err != nil {
				return attempt - 1, err
			}
		}
		done, err := fn(ctx, attempt)
		if err != nil {
			return attempt, fmt.Errorf("resilience: %s attempt %d: %w", p.Name, attempt, err)
		}
		if done {
			return attempt, nil
		}
		if attempt < p.MaxAttempts {
			slog.Debug("retrying", "name", p.Name, "attempt", attempt, "max_attempts", p.MaxAttempts)
		}
	}
	return p.MaxAttempts, ErrExhausted
}
