package core

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TokenBucket is a leaky token bucket: it holds at most capacity tokens and
// any refilled tokens that would exceed that capacity overflow and are lost.
//
// The refill strategy is consulted before every consumption attempt, inside
// the same critical section that updates the token count, so two callers can
// never spend the same refill. Waiters in Consume are not served in FIFO
// order; whichever attempt runs first after a refill wins the tokens.
type TokenBucket struct {
	capacity int64
	refill   RefillStrategy
	sleep    SleepStrategy
	observer Observer

	mu   sync.Mutex
	size int64
}

// NewTokenBucket creates an empty bucket from cfg.
func NewTokenBucket(cfg Config) (*TokenBucket, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidArgument, cfg.Capacity)
	}
	if cfg.RefillStrategy == nil {
		return nil, fmt.Errorf("%w: refill strategy cannot be nil", ErrInvalidArgument)
	}
	if cfg.SleepStrategy == nil {
		return nil, fmt.Errorf("%w: sleep strategy cannot be nil", ErrInvalidArgument)
	}

	return &TokenBucket{
		capacity: cfg.Capacity,
		refill:   cfg.RefillStrategy,
		sleep:    cfg.SleepStrategy,
		observer: cfg.Observer,
	}, nil
}

// TryConsume attempts to take a single token.
func (tb *TokenBucket) TryConsume() bool {
	ok, _ := tb.TryConsumeN(1)
	return ok
}

// TryConsumeN attempts to take n tokens without waiting. It reports false when
// fewer than n tokens are available, which is not an error.
func (tb *TokenBucket) TryConsumeN(n int64) (bool, error) {
	if err := tb.checkCount(n); err != nil {
		return false, err
	}

	tb.mu.Lock()
	added, overflowed := tb.refillLocked()
	ok := tb.size >= n
	if ok {
		tb.size -= n
	}
	available := tb.size
	tb.mu.Unlock()

	if tb.observer != nil {
		if added > 0 || overflowed > 0 {
			tb.observer.Observe(Event{Type: EventRefilled, Tokens: added, Overflowed: overflowed, Available: available})
		}
		typ := EventRejected
		if ok {
			typ = EventConsumed
		}
		tb.observer.Observe(Event{Type: typ, Tokens: n, Available: available})
	}

	return ok, nil
}

func (tb *TokenBucket) checkCount(n int64) error {
	if n <= 0 {
		return fmt.Errorf("%w: %w: %d", ErrInvalidArgument, ErrNonPositiveTokens, n)
	}
	if n > tb.capacity {
		return fmt.Errorf("%w: %w: %d > %d", ErrInvalidArgument, ErrTokensExceedCapacity, n, tb.capacity)
	}
	return nil
}

// refillLocked asks the strategy for new tokens and adds as many as fit.
// A strategy returning a negative count adds nothing.
// MUST be called with tb.mu locked.
func (tb *TokenBucket) refillLocked() (added, overflowed int64) {
	refilled := tb.refill.Refill()
	if refilled <= 0 {
		return 0, 0
	}

	room := tb.capacity - tb.size
	added = min(refilled, room)
	tb.size += added
	return added, refilled - added
}

// Consume takes a single token, waiting as long as needed.
func (tb *TokenBucket) Consume(ctx context.Context) error {
	return tb.ConsumeN(ctx, 1)
}

// ConsumeN takes n tokens, sleeping between attempts with the bucket's sleep
// strategy. It returns an error wrapping ErrCancelled if ctx is done before
// the tokens were taken; no tokens are consumed in that case. The error also
// wraps the sleep strategy's cause, so a strategy that gives up before the
// deadline fires (see ErrDeadlineUnreachable) can be told apart from
// context.Canceled or context.DeadlineExceeded.
func (tb *TokenBucket) ConsumeN(ctx context.Context, n int64) error {
	if err := tb.checkCount(n); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return tb.cancelled(n, err)
	}

	for {
		ok, err := tb.TryConsumeN(n)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if err := tb.sleep.Sleep(ctx); err != nil {
			return tb.cancelled(n, err)
		}
		if err := ctx.Err(); err != nil {
			return tb.cancelled(n, err)
		}
	}
}

func (tb *TokenBucket) cancelled(n int64, cause error) error {
	if tb.observer != nil {
		tb.observer.Observe(Event{Type: EventCancelled, Tokens: n, Available: tb.Available()})
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (tb *TokenBucket) Capacity() int64 {
	return tb.capacity
}

// Available returns the number of tokens currently held. It does not consult
// the refill strategy, so tokens that are due but not yet requested are not
// counted. The value may be stale as soon as it is returned.
func (tb *TokenBucket) Available() int64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.size
}

// NextRefillIn reports how long until the refill strategy's next burst. ok is
// false if the strategy does not expose a schedule.
func (tb *TokenBucket) NextRefillIn() (d time.Duration, ok bool) {
	s, ok := tb.refill.(RefillScheduler)
	if !ok {
		return 0, false
	}
	return s.NextRefillIn(), true
}
