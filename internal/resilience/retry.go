// Package resilience retries outbound calls to the analysis and geocoding
// services.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Backoff is an exponential retry schedule with jitter.
type Backoff struct {
	// Attempts counts the first try. 1 disables retries.
	Attempts int
	Initial  time.Duration
	Max      time.Duration
	// Multiplier grows the delay after each attempt.
	Multiplier float64
	// Jitter spreads each delay by ±Jitter of itself.
	Jitter float64

	// Retryable overrides IsTransient.
	Retryable func(err error) bool
}

// DefaultBackoff is three attempts starting at 500ms.
func DefaultBackoff() Backoff {
	return Backoff{
		Attempts:   3,
		Initial:    500 * time.Millisecond,
		Max:        10 * time.Second,
		Multiplier: 2,
		Jitter:     0.25,
	}
}

// WithAttempts returns b with the attempt count replaced when n > 0.
func (b Backoff) WithAttempts(n int) Backoff {
	if n > 0 {
		b.Attempts = n
	}
	return b
}

func (b Backoff) normalized() Backoff {
	def := DefaultBackoff()
	if b.Attempts <= 0 {
		b.Attempts = def.Attempts
	}
	if b.Initial <= 0 {
		b.Initial = def.Initial
	}
	if b.Max <= 0 {
		b.Max = def.Max
	}
	if b.Multiplier < 1 {
		b.Multiplier = def.Multiplier
	}
	if b.Jitter < 0 {
		b.Jitter = 0
	}
	if b.Retryable == nil {
		b.Retryable = IsTransient
	}
	return b
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	b = b.normalized()
	d := math.Min(float64(b.Initial)*math.Pow(b.Multiplier, float64(attempt)), float64(b.Max))
	if b.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * b.Jitter
	}
	return time.Duration(math.Max(d, 0))
}

// Budget is the longest Retry can spend sleeping between attempts.
func (b Backoff) Budget() time.Duration {
	b = b.normalized()
	var total float64
	for i := 0; i < b.Attempts-1; i++ {
		d := math.Min(float64(b.Initial)*math.Pow(b.Multiplier, float64(i)), float64(b.Max))
		total += d * (1 + b.Jitter)
	}
	return time.Duration(total)
}

// Retry calls fn until it succeeds, returns a non-retryable error, the
// attempts run out or ctx ends. op names the call in retry logs.
func Retry[T any](ctx context.Context, b Backoff, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	b = b.normalized()

	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil || !b.Retryable(err) || attempt+1 >= b.Attempts {
			return zero, err
		}

		delay := b.Delay(attempt)
		zap.L().Warn("resilience: retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, err
		case <-timer.C:
		}
	}
}
