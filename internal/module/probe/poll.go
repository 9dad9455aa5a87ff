package probe

import (
	"context"
	"time"
)

// PollConfig bounds a polling loop.
type PollConfig struct {
	Interval    time.Duration
	MaxAttempts int
}

// DefaultPollConfig polls every 5 seconds for up to 120 attempts, a
// 10-minute ceiling.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    5 * time.Second,
		MaxAttempts: 120,
	}
}

// Poll drives a bounded status-check loop. Each attempt sleeps the interval,
// then invokes check with the latest handle state; the returned state
// replaces it, supporting provider-side handle rotation. A check error is
// transient: onRetry is invoked and the loop continues, consuming only the
// shared attempt budget. terminal inspects the refreshed state and either
// yields a result, reports a terminal error, or asks for another attempt.
// Exhausting all attempts returns ErrPollTimeout.
func Poll[T any, R any](
	ctx context.Context,
	cfg PollConfig,
	state T,
	check func(ctx context.Context, state T) (T, error),
	terminal func(state T) (R, bool, error),
	onRetry func(attempt int, err error),
) (R, error) {
	var zero R

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(cfg.Interval):
		}

		next, err := check(ctx, state)
		if err != nil {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			continue
		}
		state = next

		result, done, err := terminal(state)
		if err != nil {
			return zero, err
		}
		if done {
			return result, nil
		}
	}

	return zero, ErrPollTimeout
}
