package store

import (
	"context"
	"errors"
)

// ErrStoreFailed is returned when the backing store cannot be reached or
// returns malformed data.
var ErrStoreFailed = errors.New("store operation failed")

// Counters are the cumulative event totals for one bucket.
type Counters struct {
	Consumed   int64 `json:"consumed"`
	Rejected   int64 `json:"rejected"`
	Refilled   int64 `json:"refilled"`
	Overflowed int64 `json:"overflowed"`
	Cancelled  int64 `json:"cancelled"`
}

// Add returns the field-wise sum of c and d.
func (c Counters) Add(d Counters) Counters {
	return Counters{
		Consumed:   c.Consumed + d.Consumed,
		Rejected:   c.Rejected + d.Rejected,
		Refilled:   c.Refilled + d.Refilled,
		Overflowed: c.Overflowed + d.Overflowed,
		Cancelled:  c.Cancelled + d.Cancelled,
	}
}

// IsZero reports whether every counter is zero.
func (c Counters) IsZero() bool {
	return c == Counters{}
}

// Store defines the interface for per-bucket counter storage
type Store interface {
	// Add increments the counters for bucket by delta.
	Add(ctx context.Context, bucket string, delta Counters) error
	// Get returns the counters for bucket; unknown buckets read as zero.
	Get(ctx context.Context, bucket string) (Counters, error)
	// Buckets lists every bucket with recorded counters.
	Buckets(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, bucket string) error
	Clear(ctx context.Context) error
}
