package publish

import (
	"testing"

	"github.com/beachcabana/beach/internal/cell"
	"github.com/beachcabana/beach/internal/grid"
	"github.com/beachcabana/beach/internal/replication"
)

func testConfig() replication.SyncConfig {
	return replication.SyncConfig{
		SnapshotBudgets: map[replication.Lane]int{
			replication.LaneForeground: 4,
			replication.LaneRecent:     4,
			replication.LaneHistory:    4,
		},
		DeltaBudget:          4,
		HeartbeatMillis:      250,
		InitialSnapshotLines: 4,
	}
}

func TestSchedulerSendsServerHelloFirst(t *testing.T) {
	g := grid.New(2, 2)
	src := NewGridSource(g, 16)
	sched := NewScheduler("sub-1", testConfig(), src, src, g.MaxSeq)

	out, ok, err := sched.Tick(t.Context())
	if err != nil || !ok {
		t.Fatalf("Tick: ok=%v err=%v", ok, err)
	}
	if out.Type != replication.FrameServerHello || out.ServerHello == nil {
		t.Fatalf("first output = %+v, want ServerHello", out)
	}
	if out.ServerHello.SubscriptionID != "sub-1" {
		t.Fatalf("SubscriptionID = %q", out.ServerHello.SubscriptionID)
	}
}

func TestSchedulerDrainsLanesInPriorityOrderThenCompletes(t *testing.T) {
	g := grid.New(2, 2)
	g.WriteCellIfNewer(0, 0, 1, cell.Pack('a', 0))
	g.WriteCellIfNewer(1, 0, 2, cell.Pack('b', 0))
	src := NewGridSource(g, 16)
	sched := NewScheduler("sub-1", testConfig(), src, src, g.MaxSeq)
	ctx := t.Context()

	if _, _, err := sched.Tick(ctx); err != nil {
		t.Fatalf("hello tick: %v", err)
	}

	var sawForeground, sawForegroundComplete bool
	for i := 0; i < 8; i++ {
		out, ok, err := sched.Tick(ctx)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if !ok {
			continue
		}
		switch out.Type {
		case replication.FrameSnapshot:
			if out.Snapshot.Lane == replication.LaneForeground {
				sawForeground = true
			}
		case replication.FrameSnapshotComplete:
			if out.SnapshotComplete.Lane == replication.LaneForeground {
				sawForegroundComplete = true
			}
		}
		if sawForeground && sawForegroundComplete {
			break
		}
	}
	if !sawForeground || !sawForegroundComplete {
		t.Fatalf("expected a Foreground Snapshot then SnapshotComplete, got foreground=%v complete=%v", sawForeground, sawForegroundComplete)
	}
}

func TestSchedulerEmitsDeltaRegardlessOfSnapshotState(t *testing.T) {
	g := grid.New(1, 1)
	src := NewGridSource(g, 16)
	sched := NewScheduler("sub-1", testConfig(), src, src, g.MaxSeq)
	ctx := t.Context()

	if _, _, err := sched.Tick(ctx); err != nil {
		t.Fatalf("hello tick: %v", err)
	}

	src.RecordWrite(replication.SyncUpdate{Row: 0, Col: 0, Seq: 9, Payload: uint64(cell.Pack('x', 0))})

	var sawDelta bool
	for i := 0; i < 10 && !sawDelta; i++ {
		out, ok, err := sched.Tick(ctx)
		if err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
		if ok && out.Type == replication.FrameDelta {
			sawDelta = true
			if len(out.Delta.Updates) != 1 || out.Delta.Updates[0].Seq != 9 {
				t.Fatalf("delta updates = %+v", out.Delta.Updates)
			}
		}
	}
	if !sawDelta {
		t.Fatal("expected a Delta frame to be emitted")
	}
}

func TestSchedulerHandleAckTruncatesRetainedDeltas(t *testing.T) {
	g := grid.New(1, 1)
	src := NewGridSource(g, 16)
	sched := NewScheduler("sub-1", testConfig(), src, src, g.MaxSeq)

	src.RecordWrite(replication.SyncUpdate{Row: 0, Col: 0, Seq: 1, Payload: 0})
	src.RecordWrite(replication.SyncUpdate{Row: 0, Col: 0, Seq: 2, Payload: 0})

	sched.HandleAck(1)

	slice, err := src.NextDelta(0, 16)
	if err != nil {
		t.Fatalf("NextDelta: %v", err)
	}
	if len(slice.Updates) != 1 || slice.Updates[0].Seq != 2 {
		t.Fatalf("updates after ack = %+v, want only seq 2", slice.Updates)
	}
}

func TestSchedulerHandleRequestSnapshotRearmsLane(t *testing.T) {
	g := grid.New(1, 1)
	g.WriteCellIfNewer(0, 0, 1, cell.Pack('a', 0))
	src := NewGridSource(g, 16)
	cfg := testConfig()
	sched := NewScheduler("sub-1", cfg, src, src, g.MaxSeq)
	ctx := t.Context()

	sched.Tick(ctx) // hello
	for i := 0; i < 6; i++ {
		sched.Tick(ctx)
	}
	st := sched.lanes[replication.LaneForeground]
	if !st.done {
		t.Fatalf("expected foreground lane done before rearm")
	}

	sched.HandleRequestSnapshot(replication.LaneForeground)
	if st.done || st.cursor != nil {
		t.Fatalf("expected lane rearmed, got done=%v cursor=%v", st.done, st.cursor)
	}
}

func TestSchedulerDemotesSubscriptionOnDeltaRingOverflow(t *testing.T) {
	g := grid.New(1, 1)
	g.WriteCellIfNewer(0, 0, 1, cell.Pack('a', 0))
	src := NewGridSource(g, 2) // tiny ring, easy to overflow
	cfg := testConfig()
	sched := NewScheduler("sub-1", cfg, src, src, g.MaxSeq)
	ctx := t.Context()

	sched.Tick(ctx) // hello
	for i := 0; i < 8; i++ {
		sched.Tick(ctx)
	}
	for _, st := range sched.lanes {
		if !st.done {
			t.Fatalf("expected all lanes drained before forcing overflow")
		}
	}

	// Overflow the ring without ever letting the scheduler drain it via
	// NextDelta, so Overflowed() is still true on the next Tick.
	src.RecordWrite(replication.SyncUpdate{Row: 0, Col: 0, Seq: 2, Payload: 0})
	src.RecordWrite(replication.SyncUpdate{Row: 0, Col: 0, Seq: 3, Payload: 0})
	src.RecordWrite(replication.SyncUpdate{Row: 0, Col: 0, Seq: 4, Payload: 0})
	if !src.Overflowed() {
		t.Fatal("expected the ring to report overflow after exceeding capacity")
	}

	out, ok, err := sched.Tick(ctx)
	if err != nil || !ok {
		t.Fatalf("Tick after overflow: ok=%v err=%v", ok, err)
	}
	if out.Type != replication.FrameRequestResync || out.RequestResync == nil {
		t.Fatalf("output after overflow = %+v, want RequestResync", out)
	}
	if src.Overflowed() {
		t.Fatal("expected Tick to clear the overflow flag after demoting")
	}
	for lane, st := range sched.lanes {
		if st.done {
			t.Fatalf("expected lane %s rearmed after demotion", lane)
		}
	}
}
