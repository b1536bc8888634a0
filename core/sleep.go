package core

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/time/rate"
)

// YieldingSleepStrategy hands the processor to other goroutines without any
// guaranteed delay. Suited to buckets that refill very quickly.
type YieldingSleepStrategy struct{}

// Sleep yields the processor once.
func (YieldingSleepStrategy) Sleep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runtime.Gosched()
	return ctx.Err()
}

// BusySleepStrategy never gives up the processor; callers spin on the bucket.
// Only useful when refills are expected within microseconds.
type BusySleepStrategy struct{}

// Sleep returns immediately unless ctx is done.
func (BusySleepStrategy) Sleep(ctx context.Context) error {
	return ctx.Err()
}

// FixedSleepStrategy pauses for a fixed interval between attempts.
type FixedSleepStrategy struct {
	Interval time.Duration
}

// NewFixedSleepStrategy returns a strategy sleeping for interval.
func NewFixedSleepStrategy(interval time.Duration) (*FixedSleepStrategy, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: sleep interval must be positive, got %v", ErrInvalidArgument, interval)
	}
	return &FixedSleepStrategy{Interval: interval}, nil
}

// Sleep waits for the interval or until ctx is done, whichever comes first.
func (s *FixedSleepStrategy) Sleep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := time.NewTimer(s.Interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// PacedSleepStrategy spaces out retry attempts using a shared rate limiter.
// Every waiter sharing one strategy draws from the same limiter, which caps
// how often the guarded bucket is polled no matter how many goroutines wait.
type PacedSleepStrategy struct {
	limiter *rate.Limiter
}

// NewPacedSleepStrategy allows at most attemptsPerSec retries per second
// across all waiters, with bursts up to burst.
func NewPacedSleepStrategy(attemptsPerSec float64, burst int) (*PacedSleepStrategy, error) {
	if attemptsPerSec <= 0 || burst <= 0 {
		return nil, fmt.Errorf("%w: attempts per second[%v] and burst[%d] must be positive", ErrInvalidArgument, attemptsPerSec, burst)
	}
	return &PacedSleepStrategy{limiter: rate.NewLimiter(rate.Limit(attemptsPerSec), burst)}, nil
}

// Sleep blocks until the limiter grants the next attempt or ctx is done.
// When the next attempt cannot be granted before ctx's deadline it returns
// at once with an error wrapping ErrDeadlineUnreachable, while ctx is still
// live.
func (s *PacedSleepStrategy) Sleep(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", ErrDeadlineUnreachable, err)
	}
	return nil
}
