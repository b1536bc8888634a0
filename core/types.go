package core

import (
	"context"
	"time"
)

// Tick is an opaque point in time read from a Clock. Ticks are nanoseconds
// since an arbitrary, clock-specific epoch, so a time.Duration converts to a
// span of ticks without scaling.
type Tick int64

// Clock supplies monotonically non-decreasing ticks.
// Implementations must be safe for concurrent use.
type Clock interface {
	Read() Tick
}

// RefillStrategy decides how many tokens have accrued since it was last asked.
type RefillStrategy interface {
	Refill() int64
}

// SleepStrategy pauses a caller between failed consumption attempts.
// Sleep must return a non-nil error once ctx is done.
type SleepStrategy interface {
	Sleep(ctx context.Context) error
}

// RefillScheduler is implemented by refill strategies that know when their
// next burst is due.
type RefillScheduler interface {
	NextRefillIn() time.Duration
}

// Config holds everything needed to build a TokenBucket.
type Config struct {
	Capacity       int64          // Maximum tokens held at once
	RefillStrategy RefillStrategy // Consulted before every consumption attempt
	SleepStrategy  SleepStrategy  // Used by Consume between attempts
	Observer       Observer       // Optional
}

// EventType identifies what happened inside a bucket.
type EventType int

const (
	EventConsumed EventType = iota
	EventRejected
	EventRefilled
	EventCancelled
)

func (t EventType) String() string {
	switch t {
	case EventConsumed:
		return "consumed"
	case EventRejected:
		return "rejected"
	case EventRefilled:
		return "refilled"
	case EventCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Event describes one state change of a bucket.
type Event struct {
	Type       EventType
	Tokens     int64 // Tokens requested, or tokens added for EventRefilled
	Overflowed int64 // Tokens lost to the capacity limit (EventRefilled only)
	Available  int64 // Tokens left in the bucket after the change
}

// Observer receives bucket events. It is called outside the bucket lock and
// must be safe for concurrent use.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }
