package burstfence

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/yourusername/burstfence/core"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr error
	}{
		{
			name: "fixed interval with defaults",
			opts: []Option{
				WithCapacity(10),
				WithFixedIntervalRefillStrategy(5, time.Second),
			},
		},
		{
			name: "every sleep strategy option",
			opts: []Option{
				WithCapacity(10),
				WithFixedIntervalRefillStrategy(5, time.Second),
				WithBusySleepStrategy(),
				WithFixedSleepStrategy(time.Millisecond),
				WithPacedSleepStrategy(100, 1),
				WithYieldingSleepStrategy(),
			},
		},
		{
			name:    "no options",
			wantErr: ErrInvalidState,
		},
		{
			name:    "missing capacity",
			opts:    []Option{WithFixedIntervalRefillStrategy(5, time.Second)},
			wantErr: ErrInvalidState,
		},
		{
			name:    "missing refill strategy",
			opts:    []Option{WithCapacity(10)},
			wantErr: ErrInvalidState,
		},
		{
			name:    "zero capacity",
			opts:    []Option{WithCapacity(0)},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "nil refill strategy",
			opts:    []Option{WithRefillStrategy(nil)},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "nil sleep strategy",
			opts:    []Option{WithSleepStrategy(nil)},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "non-positive tokens per period",
			opts:    []Option{WithFixedIntervalRefillStrategy(0, time.Second)},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "non-positive period",
			opts:    []Option{WithFixedIntervalRefillStrategy(1, 0)},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "non-positive sleep interval",
			opts:    []Option{WithFixedSleepStrategy(0)},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "nil clock",
			opts:    []Option{WithClock(nil)},
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "nil observer",
			opts:    []Option{WithObserver(nil)},
			wantErr: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, err := New(tt.opts...)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if bucket.Capacity() != 10 {
				t.Errorf("Capacity() = %d, want 10", bucket.Capacity())
			}
			if bucket.Available() != 0 {
				t.Errorf("Available() = %d, want 0", bucket.Available())
			}
		})
	}
}

func TestNew_ClockOrderDoesNotMatter(t *testing.T) {
	clock := core.NewManualClock(0)

	bucket, err := New(
		WithFixedIntervalRefillStrategy(1, time.Minute),
		WithCapacity(5),
		WithClock(clock),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if !bucket.TryConsume() {
		t.Fatal("first TryConsume() = false, want true")
	}
	if bucket.TryConsume() {
		t.Fatal("TryConsume() before the period = true, want false")
	}

	clock.Advance(time.Minute)
	if !bucket.TryConsume() {
		t.Error("TryConsume() after advancing the manual clock = false, want true")
	}
}

func TestNew_CustomRefillStrategyReplacesFixedInterval(t *testing.T) {
	refill := core.RefillStrategy(refillFunc(func() int64 { return 3 }))

	bucket, err := New(
		WithCapacity(3),
		WithFixedIntervalRefillStrategy(1, time.Hour),
		WithRefillStrategy(refill),
	)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ok, err := bucket.TryConsumeN(3)
	if err != nil || !ok {
		t.Errorf("TryConsumeN(3) = %v, %v; want true, nil", ok, err)
	}
}

type refillFunc func() int64

func (f refillFunc) Refill() int64 { return f() }

func TestBuilder(t *testing.T) {
	clock := core.NewManualClock(0)

	var events []core.EventType
	bucket, err := Construct().
		WithCapacity(10).
		WithClock(clock).
		WithFixedIntervalRefillStrategy(5, 10*time.Second).
		WithFixedSleepStrategy(time.Millisecond).
		WithObserver(core.ObserverFunc(func(e core.Event) { events = append(events, e.Type) })).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	if err := bucket.ConsumeN(context.Background(), 5); err != nil {
		t.Fatalf("ConsumeN(5) failed: %v", err)
	}
	if bucket.TryConsume() {
		t.Error("TryConsume() = true, want false")
	}

	want := []core.EventType{core.EventRefilled, core.EventConsumed, core.EventRejected}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilder_RecordsFirstError(t *testing.T) {
	b := Construct().
		WithCapacity(-1).
		WithRefillStrategy(nil).
		WithYieldingSleepStrategy()

	if !errors.Is(b.Err(), ErrInvalidArgument) {
		t.Fatalf("Err() = %v, want %v", b.Err(), ErrInvalidArgument)
	}
	if !strings.Contains(b.Err().Error(), "capacity") {
		t.Errorf("Err() = %v, want the capacity error", b.Err())
	}

	if _, err := b.Build(); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Build() error = %v, want %v", err, ErrInvalidArgument)
	}
}

func TestBuilder_InvalidState(t *testing.T) {
	if _, err := Construct().WithBusySleepStrategy().Build(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Build() without capacity error = %v, want %v", err, ErrInvalidState)
	}
	if _, err := Construct().WithCapacity(1).Build(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Build() without refill strategy error = %v, want %v", err, ErrInvalidState)
	}
}

func TestBuilder_PacedSleepStrategy(t *testing.T) {
	bucket, err := Construct().
		WithCapacity(1).
		WithFixedIntervalRefillStrategy(1, time.Hour).
		WithPacedSleepStrategy(1000, 1).
		Build()
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}

	ctx := context.Background()
	if err := bucket.Consume(ctx); err != nil {
		t.Fatalf("Consume() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := bucket.Consume(ctx); !errors.Is(err, ErrCancelled) {
		t.Errorf("Consume() error = %v, want %v", err, ErrCancelled)
	}
}
