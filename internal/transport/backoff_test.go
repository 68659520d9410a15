package transport

import (
	"testing"
	"time"
)

// fixedRandom returns a constant value, making delays deterministic.
type fixedRandom struct{ v float64 }

func (f fixedRandom) Float64() float64 { return f.v }

func TestDelay_DoublesUpToMax(t *testing.T) {
	b := NewBackoff(2*time.Second, 30*time.Second, 0, fixedRandom{})

	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // 32s clamped
		30 * time.Second,
		30 * time.Second,
	}
	for attempt, expected := range want {
		if got := b.Delay(attempt); got != expected {
			t.Errorf("attempt %d: expected %v, got %v", attempt, expected, got)
		}
	}
}

func TestDelay_AddsJitter(t *testing.T) {
	b := NewBackoff(2*time.Second, 30*time.Second, time.Second, fixedRandom{v: 0.5})

	if got := b.Delay(0); got != 2*time.Second+500*time.Millisecond {
		t.Errorf("expected 2.5s, got %v", got)
	}

	// Jitter never pushes the total below the undelayed value.
	b = NewBackoff(2*time.Second, 30*time.Second, time.Second, fixedRandom{v: 0})
	if got := b.Delay(4); got != 30*time.Second {
		t.Errorf("expected 30s at the cap, got %v", got)
	}
}

func TestDelay_MonotonicNonDecreasing(t *testing.T) {
	b := NewBackoff(100*time.Millisecond, 3*time.Second, 10*time.Millisecond, fixedRandom{v: 0.25})

	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		d := b.Delay(attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestDelay_NilRandomUsesDefault(t *testing.T) {
	b := NewBackoff(time.Second, 10*time.Second, time.Second, nil)

	d := b.Delay(0)
	if d < time.Second || d >= 2*time.Second {
		t.Errorf("expected delay in [1s, 2s), got %v", d)
	}
}
