package publish

import (
	"testing"

	"github.com/beachcabana/beach/internal/replication"
)

func TestDeltaRingSinceReturnsEntriesAboveWatermark(t *testing.T) {
	r := newDeltaRing(16)
	r.push(replication.SyncUpdate{Row: 0, Col: 0, Seq: 1})
	r.push(replication.SyncUpdate{Row: 0, Col: 1, Seq: 2})
	r.push(replication.SyncUpdate{Row: 0, Col: 2, Seq: 3})

	out, hasMore := r.since(1, 16)
	if hasMore {
		t.Fatal("expected hasMore=false within budget")
	}
	if len(out) != 2 || out[0].Seq != 2 || out[1].Seq != 3 {
		t.Fatalf("since(1) = %+v, want seq 2 and 3", out)
	}
}

func TestDeltaRingOverflowSetsStickyFlag(t *testing.T) {
	r := newDeltaRing(2)
	if r.overflowed() {
		t.Fatal("fresh ring must not report overflow")
	}

	r.push(replication.SyncUpdate{Row: 0, Col: 0, Seq: 1})
	r.push(replication.SyncUpdate{Row: 0, Col: 0, Seq: 2})
	if r.overflowed() {
		t.Fatal("ring at capacity without eviction must not report overflow")
	}

	r.push(replication.SyncUpdate{Row: 0, Col: 0, Seq: 3})
	if !r.overflowed() {
		t.Fatal("pushing past capacity must set the overflow flag")
	}

	out, _ := r.since(0, 16)
	if len(out) != 2 || out[0].Seq != 2 || out[1].Seq != 3 {
		t.Fatalf("entries after eviction = %+v, want seq 2 and 3 only", out)
	}

	r.clearOverflow()
	if r.overflowed() {
		t.Fatal("clearOverflow must reset the flag")
	}
}

func TestDeltaRingTruncateDropsAtOrBelowWatermark(t *testing.T) {
	r := newDeltaRing(16)
	r.push(replication.SyncUpdate{Row: 0, Col: 0, Seq: 1})
	r.push(replication.SyncUpdate{Row: 0, Col: 0, Seq: 2})
	r.push(replication.SyncUpdate{Row: 0, Col: 0, Seq: 3})

	r.truncate(2)

	out, _ := r.since(0, 16)
	if len(out) != 1 || out[0].Seq != 3 {
		t.Fatalf("entries after truncate(2) = %+v, want only seq 3", out)
	}
}
