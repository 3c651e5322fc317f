package source

import (
	"context"
	"math"
	"time"

	"codeberg.org/mutker/energymon/internal/errors"
	"codeberg.org/mutker/energymon/internal/logger"
	"codeberg.org/mutker/energymon/internal/telemetry"
	"golang.org/x/exp/constraints"
)

const defaultMultiplier = 2.0

// RetryPolicy bounds the attempts made within one poll.
type RetryPolicy struct {
	Attempts   int
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

// Backoff returns the delay before attempt+1, growing exponentially from
// Initial and capped at Max.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	mult := p.Multiplier
	if mult <= 1 {
		mult = defaultMultiplier
	}
	maxDelay := p.Max
	if maxDelay < p.Initial {
		maxDelay = p.Initial
	}

	delay := float64(p.Initial) * math.Pow(mult, float64(attempt-1))
	if delay > float64(maxDelay) {
		return maxDelay
	}
	return clamp(time.Duration(delay), p.Initial, maxDelay)
}

func clamp[T constraints.Ordered](value, minValue, maxValue T) T {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}
	return value
}

type retrying struct {
	Source
	policy RetryPolicy
	sleep  func(context.Context, time.Duration) error
}

// Retrying wraps src so that retryable failures are attempted again with
// exponential backoff. Decode failures and cancellation return at once.
func Retrying(src Source, policy RetryPolicy) Source {
	if policy.Attempts <= 1 {
		return src
	}
	return &retrying{Source: src, policy: policy, sleep: sleepContext}
}

func (r *retrying) Collect(ctx context.Context) ([]telemetry.Point, error) {
	for attempt := 1; ; attempt++ {
		points, err := r.Source.Collect(ctx)
		if err == nil {
			return points, nil
		}
		if attempt >= r.policy.Attempts || !errors.Retryable(err) || ctx.Err() != nil {
			return nil, err
		}

		delay := r.policy.Backoff(attempt)
		logger.Debug().
			Str("source", r.Name()).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Err(err).
			Msg("Retrying poll")

		if sleepErr := r.sleep(ctx, delay); sleepErr != nil {
			return nil, err
		}
	}
}

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
