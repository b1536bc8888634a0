package burstfence

import (
	"time"

	"github.com/yourusername/burstfence/core"
)

// Builder constructs a token bucket step by step. The first failing step
// records its error; later steps are ignored and Build returns that error.
//
//	bucket, err := burstfence.Construct().
//	    WithCapacity(10).
//	    WithFixedIntervalRefillStrategy(5, 10*time.Second).
//	    WithFixedSleepStrategy(50 * time.Millisecond).
//	    Build()
type Builder struct {
	s   settings
	err error
}

// Construct starts a new bucket builder.
func Construct() *Builder {
	return &Builder{}
}

func (b *Builder) apply(opt Option) *Builder {
	if b.err == nil {
		b.err = opt(&b.s)
	}
	return b
}

// WithCapacity sets the bucket capacity.
func (b *Builder) WithCapacity(capacity int64) *Builder {
	return b.apply(WithCapacity(capacity))
}

// WithRefillStrategy sets a custom refill strategy.
func (b *Builder) WithRefillStrategy(strategy core.RefillStrategy) *Builder {
	return b.apply(WithRefillStrategy(strategy))
}

// WithFixedIntervalRefillStrategy refills tokensPerPeriod tokens every period.
func (b *Builder) WithFixedIntervalRefillStrategy(tokensPerPeriod int64, period time.Duration) *Builder {
	return b.apply(WithFixedIntervalRefillStrategy(tokensPerPeriod, period))
}

// WithSleepStrategy sets a custom sleep strategy.
func (b *Builder) WithSleepStrategy(strategy core.SleepStrategy) *Builder {
	return b.apply(WithSleepStrategy(strategy))
}

// WithYieldingSleepStrategy yields between attempts.
func (b *Builder) WithYieldingSleepStrategy() *Builder {
	return b.apply(WithYieldingSleepStrategy())
}

// WithBusySleepStrategy spins between attempts.
func (b *Builder) WithBusySleepStrategy() *Builder {
	return b.apply(WithBusySleepStrategy())
}

// WithFixedSleepStrategy pauses for interval between attempts.
func (b *Builder) WithFixedSleepStrategy(interval time.Duration) *Builder {
	return b.apply(WithFixedSleepStrategy(interval))
}

// WithPacedSleepStrategy paces retries with a shared rate limiter.
func (b *Builder) WithPacedSleepStrategy(attemptsPerSec float64, burst int) *Builder {
	return b.apply(WithPacedSleepStrategy(attemptsPerSec, burst))
}

// WithClock sets the clock for the fixed interval refill strategy.
func (b *Builder) WithClock(clock core.Clock) *Builder {
	return b.apply(WithClock(clock))
}

// WithObserver registers an observer for bucket events.
func (b *Builder) WithObserver(observer core.Observer) *Builder {
	return b.apply(WithObserver(observer))
}

// Err returns the error recorded by the first failing step, if any.
func (b *Builder) Err() error {
	return b.err
}

// Build creates the bucket.
func (b *Builder) Build() (*core.TokenBucket, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.s.build()
}
