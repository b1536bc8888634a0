package core

import (
	"testing"
	"time"
)

func TestSystemClock_NonDecreasing(t *testing.T) {
	clock := NewSystemClock()

	prev := clock.Read()
	for i := 0; i < 1000; i++ {
		now := clock.Read()
		if now < prev {
			t.Fatalf("Read() went backwards: %d < %d", now, prev)
		}
		prev = now
	}
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(100)

	if got := clock.Read(); got != 100 {
		t.Errorf("Read() = %d, want 100", got)
	}

	clock.Advance(time.Second)
	if got := clock.Read(); got != 100+Tick(time.Second) {
		t.Errorf("Read() = %d, want %d", got, 100+Tick(time.Second))
	}

	clock.Advance(-time.Hour)
	clock.Set(0)
	if got := clock.Read(); got != 100+Tick(time.Second) {
		t.Errorf("clock moved backwards: Read() = %d", got)
	}

	clock.Set(Tick(time.Minute))
	if got := clock.Read(); got != Tick(time.Minute) {
		t.Errorf("Read() = %d, want %d", got, Tick(time.Minute))
	}
}
