package publish

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/beachcabana/beach/internal/replication"
)

// Output is one frame the Scheduler wants sent over the transport's
// ControlOrdered (ServerHello/SnapshotComplete/Heartbeat) or
// DataOrdered (Snapshot/Delta) lane; exactly one of the pointer fields
// is non-nil.
type Output struct {
	Type             replication.FrameType
	ServerHello      *replication.ServerHello
	Snapshot         *replication.Snapshot
	SnapshotComplete *replication.SnapshotComplete
	Delta            *replication.Delta
	Heartbeat        *replication.Heartbeat
	RequestResync    *replication.RequestResync
}

// snapshotLaneOrder is the tie-break order named in spec §4.8.
var snapshotLaneOrder = []replication.Lane{
	replication.LaneForeground,
	replication.LaneRecent,
	replication.LaneHistory,
}

type laneState struct {
	cursor  replication.Cursor
	done    bool
	pending *replication.SnapshotComplete
}

// Scheduler implements the C8 publisher: it cooperatively multiplexes
// snapshot lanes and the delta stream into one Output per Tick call.
// The caller drives Tick in a loop (one coroutine per subscription, as
// noted in the concurrency model) and is responsible for serializing
// and sending whatever Output it returns.
type Scheduler struct {
	subscriptionID string
	config         replication.SyncConfig
	snapshots      SnapshotSource
	deltas         DeltaSource
	maxSeq         func() uint64

	helloSent  bool
	lanes      map[replication.Lane]*laneState
	lastAckSeq uint64
	lastSentAt time.Time

	deltaLimiter *rate.Limiter
}

func NewScheduler(subscriptionID string, config replication.SyncConfig, snapshots SnapshotSource, deltas DeltaSource, maxSeq func() uint64) *Scheduler {
	lanes := make(map[replication.Lane]*laneState, len(snapshotLaneOrder))
	for _, l := range snapshotLaneOrder {
		lanes[l] = &laneState{}
	}
	return &Scheduler{
		subscriptionID: subscriptionID,
		config:         config,
		snapshots:      snapshots,
		deltas:         deltas,
		maxSeq:         maxSeq,
		lanes:          lanes,
		lastSentAt:     time.Now(),
		// delta_budget Delta frames per heartbeat_interval (one token per
		// frame, each frame carrying up to delta_budget updates), converted
		// to a steady rate so bursts of writes don't starve other lanes.
		deltaLimiter: rate.NewLimiter(rate.Limit(float64(config.DeltaBudget)/(time.Duration(config.HeartbeatMillis)*time.Millisecond).Seconds()), config.DeltaBudget),
	}
}

// HandleAck implements spec §4.8 step 5: advance the delta-retention
// low-water mark. History lane cursors are unaffected.
func (s *Scheduler) HandleAck(watermark uint64) {
	if watermark > s.lastAckSeq {
		s.lastAckSeq = watermark
	}
	if t, ok := s.deltas.(interface{ Truncate(uint64) }); ok {
		t.Truncate(watermark)
	}
}

// HandleRequestSnapshot implements the subscriber-initiated re-arm of
// a lane's sticky has_more=false state (spec §4.8's tie-break note).
func (s *Scheduler) HandleRequestSnapshot(lane replication.Lane) {
	st, ok := s.lanes[lane]
	if !ok {
		return
	}
	st.done = false
	st.cursor = nil
	st.pending = nil
	s.snapshots.ResetLane(lane)
}

// Tick produces the next Output to send, or ok=false if there is
// nothing to send right now (the caller should wait before calling
// again -- e.g. until the next write notification or a short poll
// interval).
func (s *Scheduler) Tick(ctx context.Context) (Output, bool, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, false, err
	}

	if !s.helloSent {
		s.helloSent = true
		s.markSent()
		return Output{
			Type: replication.FrameServerHello,
			ServerHello: &replication.ServerHello{
				SubscriptionID: s.subscriptionID,
				MaxSeq:         s.maxSeq(),
				Config:         s.config,
			},
		}, true, nil
	}

	// Overflow demotion (spec §4.8): the delta ring dropped entries
	// before this subscription ever saw them, so its Watermark can
	// never catch up by itself. Restart every lane and tell it to
	// resync from the last value it acked.
	if ov, ok := s.deltas.(interface{ Overflowed() bool }); ok && ov.Overflowed() {
		for _, st := range s.lanes {
			st.done = false
			st.cursor = nil
			st.pending = nil
		}
		for _, lane := range snapshotLaneOrder {
			s.snapshots.ResetLane(lane)
		}
		if c, ok := s.deltas.(interface{ ClearOverflow() }); ok {
			c.ClearOverflow()
		}
		s.markSent()
		return Output{
			Type:          replication.FrameRequestResync,
			RequestResync: &replication.RequestResync{Since: s.lastAckSeq},
		}, true, nil
	}

	// Pending SnapshotComplete takes priority over re-entering the
	// lane loop so "has_more=false" is delivered exactly once.
	for _, lane := range snapshotLaneOrder {
		st := s.lanes[lane]
		if st.pending != nil {
			out := Output{Type: replication.FrameSnapshotComplete, SnapshotComplete: st.pending}
			st.pending = nil
			s.markSent()
			return out, true, nil
		}
	}

	// Deltas are emitted "regardless of snapshot lane state" (spec),
	// paced by delta_budget so they don't starve snapshot lanes.
	if s.deltaLimiter.Allow() {
		slice, err := s.deltas.NextDelta(s.lastAckSeq, s.config.DeltaBudget)
		if err != nil {
			return Output{}, false, fmt.Errorf("next delta: %w", err)
		}
		if len(slice.Updates) > 0 {
			s.markSent()
			return Output{
				Type: replication.FrameDelta,
				Delta: &replication.Delta{
					SubscriptionID: s.subscriptionID,
					Watermark:      slice.Watermark,
					HasMore:        slice.HasMore,
					Updates:        slice.Updates,
				},
			}, true, nil
		}
	}

	// Advance snapshot lanes in priority order.
	for _, lane := range snapshotLaneOrder {
		st := s.lanes[lane]
		if st.done {
			continue
		}
		budget := s.config.SnapshotBudgets[lane]
		if budget <= 0 {
			budget = s.config.InitialSnapshotLines
		}
		slice, err := s.snapshots.NextSlice(st.cursor, lane, budget)
		if err != nil {
			return Output{}, false, fmt.Errorf("next slice (lane %s): %w", lane, err)
		}
		st.cursor = slice.Cursor
		if !slice.HasMore {
			st.done = true
			st.pending = &replication.SnapshotComplete{SubscriptionID: s.subscriptionID, Lane: lane}
		}
		s.markSent()
		return Output{
			Type: replication.FrameSnapshot,
			Snapshot: &replication.Snapshot{
				SubscriptionID: s.subscriptionID,
				Lane:           lane,
				Watermark:      slice.Watermark,
				HasMore:        slice.HasMore,
				Updates:        slice.Updates,
			},
		}, true, nil
	}

	heartbeatEvery := time.Duration(s.config.HeartbeatMillis) * time.Millisecond
	if time.Since(s.lastSentAt) >= heartbeatEvery {
		s.markSent()
		return Output{Type: replication.FrameHeartbeat, Heartbeat: &replication.Heartbeat{MaxSeq: s.maxSeq()}}, true, nil
	}

	return Output{}, false, nil
}

func (s *Scheduler) markSent() {
	s.lastSentAt = time.Now()
}
