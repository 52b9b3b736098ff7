package broker

import (
	"testing"
	"time"
)

func TestBackoffCapsAtMax(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 15*time.Second)
	var last time.Duration
	for i := 0; i < 20; i++ {
		d := b.Next()
		if d > 15*time.Second {
			t.Fatalf("iteration %d: delay %s exceeds cap", i, d)
		}
		last = d
	}
	_ = last
}

func TestBackoffResetRestartsFromBase(t *testing.T) {
	b := NewBackoff(500*time.Millisecond, 15*time.Second)
	for i := 0; i < 10; i++ {
		b.Next()
	}
	b.Reset()
	d := b.Next()
	if d > 500*time.Millisecond {
		t.Fatalf("delay after reset = %s, want <= base (500ms)", d)
	}
}
