package transport

import (
	"math/rand"
	"time"
)

// RandomSource provides random values for jitter. Tests inject a
// deterministic source.
type RandomSource interface {
	// Float64 returns a random float64 in [0.0, 1.0).
	Float64() float64
}

type defaultRandomSource struct{}

func (defaultRandomSource) Float64() float64 { return rand.Float64() }

// DefaultRandomSource is the production random source.
var DefaultRandomSource RandomSource = defaultRandomSource{}

// Backoff computes reconnect delays:
//
//	delay = min(base * 2^attempt, max) + random(0,1) * jitter
//
// The jitter addend spreads simultaneous reconnects from many clients
// hitting the same coordination server.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration

	random RandomSource
}

// NewBackoff creates a calculator. If random is nil, DefaultRandomSource
// is used.
func NewBackoff(base, max, jitter time.Duration, random RandomSource) *Backoff {
	if random == nil {
		random = DefaultRandomSource
	}
	return &Backoff{Base: base, Max: max, Jitter: jitter, random: random}
}

// Delay returns the backoff for the given attempt number (0 for the
// first retry). Monotonically non-decreasing in attempt up to Max,
// before the jitter addend.
func (b *Backoff) Delay(attempt int) time.Duration {
	d := b.Base
	for i := 0; i < attempt && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return d + time.Duration(b.random.Float64()*float64(b.Jitter))
}
