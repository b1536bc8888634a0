package burstfence

import (
	"fmt"
	"time"

	"github.com/yourusername/burstfence/core"
)

// Option is a functional option for configuring a token bucket built by New.
type Option func(*settings) error

// settings accumulates bucket parameters until the bucket is built.
type settings struct {
	capacity    int64
	capacitySet bool

	refill core.RefillStrategy

	// fixed interval parameters are resolved at build time so the strategy
	// picks up whichever clock was configured, regardless of option order.
	fixedTokens int64
	fixedPeriod time.Duration

	sleep    core.SleepStrategy
	clock    core.Clock
	observer core.Observer
}

// New creates a token bucket from the given options. WithCapacity and a
// refill strategy are required; the sleep strategy defaults to yielding.
//
// Example:
//
//	bucket, err := burstfence.New(
//	    burstfence.WithCapacity(100),
//	    burstfence.WithFixedIntervalRefillStrategy(10, time.Second),
//	)
func New(opts ...Option) (*core.TokenBucket, error) {
	var s settings
	for _, opt := range opts {
		if err := opt(&s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return s.build()
}

func (s *settings) build() (*core.TokenBucket, error) {
	if !s.capacitySet {
		return nil, fmt.Errorf("%w: capacity was never set", ErrInvalidState)
	}

	refill := s.refill
	if refill == nil {
		if s.fixedPeriod == 0 {
			return nil, fmt.Errorf("%w: no refill strategy was set", ErrInvalidState)
		}
		clock := s.clock
		if clock == nil {
			clock = core.NewSystemClock()
		}
		fixed, err := core.NewFixedIntervalRefillStrategy(clock, s.fixedTokens, s.fixedPeriod)
		if err != nil {
			return nil, err
		}
		refill = fixed
	}

	sleep := s.sleep
	if sleep == nil {
		sleep = core.YieldingSleepStrategy{}
	}

	return core.NewTokenBucket(core.Config{
		Capacity:       s.capacity,
		RefillStrategy: refill,
		SleepStrategy:  sleep,
		Observer:       s.observer,
	})
}

// WithCapacity sets the maximum number of tokens the bucket holds.
func WithCapacity(capacity int64) Option {
	return func(s *settings) error {
		if capacity <= 0 {
			return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, capacity)
		}
		s.capacity = capacity
		s.capacitySet = true
		return nil
	}
}

// WithRefillStrategy sets a custom refill strategy, replacing any fixed
// interval strategy configured earlier.
func WithRefillStrategy(strategy core.RefillStrategy) Option {
	return func(s *settings) error {
		if strategy == nil {
			return fmt.Errorf("%w: refill strategy cannot be nil", ErrInvalidArgument)
		}
		s.refill = strategy
		s.fixedTokens, s.fixedPeriod = 0, 0
		return nil
	}
}

// WithFixedIntervalRefillStrategy refills tokensPerPeriod tokens every period.
func WithFixedIntervalRefillStrategy(tokensPerPeriod int64, period time.Duration) Option {
	return func(s *settings) error {
		if tokensPerPeriod <= 0 {
			return fmt.Errorf("%w: tokens per period must be positive, got %d", ErrInvalidArgument, tokensPerPeriod)
		}
		if period <= 0 {
			return fmt.Errorf("%w: period must be positive, got %v", ErrInvalidArgument, period)
		}
		s.refill = nil
		s.fixedTokens, s.fixedPeriod = tokensPerPeriod, period
		return nil
	}
}

// WithSleepStrategy sets how a blocked Consume waits between attempts.
func WithSleepStrategy(strategy core.SleepStrategy) Option {
	return func(s *settings) error {
		if strategy == nil {
			return fmt.Errorf("%w: sleep strategy cannot be nil", ErrInvalidArgument)
		}
		s.sleep = strategy
		return nil
	}
}

// WithYieldingSleepStrategy yields the processor between attempts.
func WithYieldingSleepStrategy() Option {
	return WithSleepStrategy(core.YieldingSleepStrategy{})
}

// WithBusySleepStrategy spins between attempts.
func WithBusySleepStrategy() Option {
	return WithSleepStrategy(core.BusySleepStrategy{})
}

// WithFixedSleepStrategy pauses for interval between attempts.
func WithFixedSleepStrategy(interval time.Duration) Option {
	return func(s *settings) error {
		strategy, err := core.NewFixedSleepStrategy(interval)
		if err != nil {
			return err
		}
		s.sleep = strategy
		return nil
	}
}

// WithPacedSleepStrategy limits retries to attemptsPerSec across all waiters.
func WithPacedSleepStrategy(attemptsPerSec float64, burst int) Option {
	return func(s *settings) error {
		strategy, err := core.NewPacedSleepStrategy(attemptsPerSec, burst)
		if err != nil {
			return err
		}
		s.sleep = strategy
		return nil
	}
}

// WithClock sets the clock used by WithFixedIntervalRefillStrategy.
func WithClock(clock core.Clock) Option {
	return func(s *settings) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidArgument)
		}
		s.clock = clock
		return nil
	}
}

// WithObserver registers an observer for bucket events.
func WithObserver(observer core.Observer) Option {
	return func(s *settings) error {
		if observer == nil {
			return fmt.Errorf("%w: observer cannot be nil", ErrInvalidArgument)
		}
		s.observer = observer
		return nil
	}
}
