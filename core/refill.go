package core

import (
	"fmt"
	"sync"
	"time"
)

// FixedIntervalRefillStrategy provides N tokens every period T. Tokens arrive
// in bursts rather than at a continuous rate, so no more than N tokens can be
// granted for any single elapsed period.
//
// The first call to Refill always grants one burst and starts the schedule.
// Later calls grant one burst per whole period elapsed since the schedule was
// last advanced; partial periods are carried over, never rounded up.
type FixedIntervalRefillStrategy struct {
	clock           Clock
	tokensPerPeriod int64
	period          Tick

	mu         sync.Mutex
	scheduled  bool
	nextRefill Tick
}

var _ RefillStrategy = (*FixedIntervalRefillStrategy)(nil)
var _ RefillScheduler = (*FixedIntervalRefillStrategy)(nil)

// NewFixedIntervalRefillStrategy creates a strategy granting tokensPerPeriod
// tokens every period, measured with clock.
func NewFixedIntervalRefillStrategy(clock Clock, tokensPerPeriod int64, period time.Duration) (*FixedIntervalRefillStrategy, error) {
	if clock == nil {
		return nil, fmt.Errorf("%w: clock cannot be nil", ErrInvalidArgument)
	}
	if tokensPerPeriod <= 0 {
		return nil, fmt.Errorf("%w: tokens per period must be positive, got %d", ErrInvalidArgument, tokensPerPeriod)
	}
	if period <= 0 {
		return nil, fmt.Errorf("%w: period must be positive, got %v", ErrInvalidArgument, period)
	}

	return &FixedIntervalRefillStrategy{
		clock:           clock,
		tokensPerPeriod: tokensPerPeriod,
		period:          Tick(period),
	}, nil
}

// Refill returns the number of tokens that became due since the last call.
func (s *FixedIntervalRefillStrategy) Refill() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Read()

	if !s.scheduled {
		s.scheduled = true
		s.nextRefill = now + s.period
		return s.tokensPerPeriod
	}

	if now < s.nextRefill {
		return 0
	}

	periods := 1 + int64((now-s.nextRefill)/s.period)
	s.nextRefill += Tick(periods) * s.period
	return s.tokensPerPeriod * periods
}

// NextRefillIn reports how long until the next burst is due. It returns 0
// before the first Refill and whenever a burst is already due.
func (s *FixedIntervalRefillStrategy) NextRefillIn() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.scheduled {
		return 0
	}
	wait := s.nextRefill - s.clock.Read()
	if wait < 0 {
		return 0
	}
	return time.Duration(wait)
}

// TokensPerPeriod returns the burst size.
func (s *FixedIntervalRefillStrategy) TokensPerPeriod() int64 {
	return s.tokensPerPeriod
}

// Period returns the time between bursts.
func (s *FixedIntervalRefillStrategy) Period() time.Duration {
	return time.Duration(s.period)
}
