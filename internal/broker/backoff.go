package broker

import (
	"math/rand"
	"time"
)

// Backoff implements exponential backoff with full jitter per spec §7:
// base 500ms, cap 15s.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max}
}

// Next returns the delay before the next reconnect attempt and advances
// the internal attempt counter. Full jitter: uniform in [0, cappedDelay).
func (b *Backoff) Next() time.Duration {
	d := b.Base << b.attempt
	if d <= 0 || d > b.Max {
		d = b.Max
	}
	b.attempt++
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}

func (b *Backoff) Reset() {
	b.attempt = 0
}
