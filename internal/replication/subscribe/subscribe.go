// Package subscribe implements the replication subscriber of spec C9:
// the replica-side state machine that applies Snapshot/Delta updates
// from a publish.Scheduler onto a local grid.Grid, detects gaps in the
// delta stream, and drives periodic Ack/RequestSnapshot/RequestResync
// output the same way publish.Scheduler drives its Tick-style output.
package subscribe

import (
	"errors"
	"fmt"
	"time"

	"github.com/beachcabana/beach/internal/cell"
	"github.com/beachcabana/beach/internal/grid"
	"github.com/beachcabana/beach/internal/replication"
)

// ErrCorruptFrame is returned when an update targets coordinates the
// local replica's grid cannot hold; the caller should treat the
// subscription as fatally broken (spec's "fatal on corrupted frame").
var ErrCorruptFrame = errors.New("subscribe: corrupted replication frame")

// Sink is the write surface a Subscriber applies updates onto;
// *grid.Grid satisfies it directly.
type Sink interface {
	WriteCellIfNewer(row, col int, newSeq uint64, payload cell.Packed) grid.WriteResult
	FillRectIfNewer(row0, col0, row1, col1 int, newSeq uint64, payload cell.Packed) (written, skipped int)
}

// Output is one frame the Subscriber wants sent back to the publisher.
type Output struct {
	Type            replication.FrameType
	Ack             *replication.Ack
	RequestSnapshot *replication.RequestSnapshot
	RequestResync   *replication.RequestResync
}

// Subscriber tracks replication progress for one subscription and
// applies incoming frames to Sink.
type Subscriber struct {
	sink Sink

	subscriptionID string
	config         replication.SyncConfig

	lastAppliedSeq uint64
	lanesComplete  map[replication.Lane]bool

	lastAckSent  time.Time
	lastAckValue uint64

	// gapPending is set once a Delta's minimum seq leaves a hole past
	// lastAppliedSeq; further deltas are dropped until a SnapshotComplete
	// on the Foreground or Recent lane (or a new ServerHello) clears it.
	gapPending bool
}

func NewSubscriber(sink Sink) *Subscriber {
	return &Subscriber{
		sink:          sink,
		lanesComplete: make(map[replication.Lane]bool, 3),
	}
}

// HandleServerHello records the negotiated config and resets progress,
// matching the publisher's Foreground-reset on (re)hello.
func (s *Subscriber) HandleServerHello(h replication.ServerHello) {
	s.subscriptionID = h.SubscriptionID
	s.config = h.Config
	s.lastAppliedSeq = 0
	s.lanesComplete = make(map[replication.Lane]bool, 3)
	s.gapPending = false
	s.lastAckSent = time.Time{}
}

// HandleSnapshot applies a snapshot chunk unconditionally: snapshot
// data always wins a stale cell (the grid's own newSeq comparison
// still guards against replaying an older slice after a newer delta).
func (s *Subscriber) HandleSnapshot(snap replication.Snapshot) error {
	if err := s.applyUpdates(snap.Updates); err != nil {
		return err
	}
	if snap.Watermark > s.lastAppliedSeq {
		s.lastAppliedSeq = snap.Watermark
	}
	// A fresh snapshot on a lane that was gapped repairs the replica's
	// reachable state for rows in that lane; global gap tracking is
	// cleared on SnapshotComplete for the Foreground/Recent lanes,
	// which is what a RequestResync round-trip is actually waiting on.
	return nil
}

func (s *Subscriber) HandleSnapshotComplete(sc replication.SnapshotComplete) {
	s.lanesComplete[sc.Lane] = true
	if sc.Lane == replication.LaneForeground || sc.Lane == replication.LaneRecent {
		s.gapPending = false
	}
}

// HandleDelta applies a delta frame, or — if it detects a hole between
// the last applied sequence and the delta's updates — suppresses the
// apply and reports that a RequestResync is needed.
func (s *Subscriber) HandleDelta(d replication.Delta) (needsResync bool, err error) {
	if s.gapPending {
		return true, nil
	}
	minSeq, ok := minUpdateSeq(d.Updates)
	if ok && minSeq > s.lastAppliedSeq+1 {
		s.gapPending = true
		return true, nil
	}
	if err := s.applyUpdates(d.Updates); err != nil {
		return false, err
	}
	if d.Watermark > s.lastAppliedSeq {
		s.lastAppliedSeq = d.Watermark
	}
	return false, nil
}

// HandleHeartbeat reports whether the publisher has seen seqs beyond
// what the replica has ever observed without a corresponding delta
// arriving — a sign of a silently dropped delta frame.
func (s *Subscriber) HandleHeartbeat(hb replication.Heartbeat) (needsResync bool) {
	if s.gapPending {
		return true
	}
	if hb.MaxSeq > s.lastAppliedSeq {
		s.gapPending = true
		return true
	}
	return false
}

func (s *Subscriber) applyUpdates(updates []replication.SyncUpdate) error {
	for _, u := range updates {
		payload := cell.Packed(u.Payload)
		if u.EndRow > u.Row || u.EndCol > u.Col {
			endRow, endCol := u.EndRow, u.EndCol
			if endRow <= u.Row {
				endRow = u.Row + 1
			}
			if endCol <= u.Col {
				endCol = u.Col + 1
			}
			// FillRectIfNewer clamps out-of-bounds rects internally
			// rather than rejecting them, so there is no OutOfBounds
			// signal to check here the way WriteCellIfNewer has one.
			s.sink.FillRectIfNewer(u.Row, u.Col, endRow, endCol, u.Seq, payload)
			continue
		}
		switch s.sink.WriteCellIfNewer(u.Row, u.Col, u.Seq, payload) {
		case grid.OutOfBounds:
			return fmt.Errorf("%w: row=%d col=%d", ErrCorruptFrame, u.Row, u.Col)
		}
	}
	return nil
}

func minUpdateSeq(updates []replication.SyncUpdate) (uint64, bool) {
	if len(updates) == 0 {
		return 0, false
	}
	min := updates[0].Seq
	for _, u := range updates[1:] {
		if u.Seq < min {
			min = u.Seq
		}
	}
	return min, true
}

// RequestResync builds the frame to send after HandleDelta/HandleHeartbeat
// report a gap.
func (s *Subscriber) RequestResync() Output {
	return Output{
		Type:          replication.FrameRequestResync,
		RequestResync: &replication.RequestResync{Since: s.lastAppliedSeq},
	}
}

// OnViewportChanged builds the RequestSnapshot frame a viewer sends
// when its visible rows change, re-arming the Foreground lane.
func (s *Subscriber) OnViewportChanged(budget int) Output {
	return Output{
		Type:            replication.FrameRequestSnapshot,
		RequestSnapshot: &replication.RequestSnapshot{Lane: replication.LaneForeground, Budget: budget},
	}
}

// Tick returns an Ack if progress has been made since the last one and
// at least one heartbeat interval has passed, or ok=false.
func (s *Subscriber) Tick(now time.Time) (Output, bool) {
	if s.lastAppliedSeq == 0 {
		return Output{}, false // nothing applied yet, nothing to report
	}
	if s.lastAppliedSeq == s.lastAckValue {
		return Output{}, false // no new progress since the last Ack
	}
	interval := time.Duration(s.config.HeartbeatMillis) * time.Millisecond
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if !s.lastAckSent.IsZero() && now.Sub(s.lastAckSent) < interval {
		return Output{}, false
	}
	s.lastAckSent = now
	s.lastAckValue = s.lastAppliedSeq
	return Output{Type: replication.FrameAck, Ack: &replication.Ack{Watermark: s.lastAppliedSeq}}, true
}

// LastAppliedSeq reports the highest sequence number durably applied
// to the sink so far.
func (s *Subscriber) LastAppliedSeq() uint64 { return s.lastAppliedSeq }

// LaneComplete reports whether a SnapshotComplete has been observed
// for the given lane since the last ServerHello.
func (s *Subscriber) LaneComplete(lane replication.Lane) bool { return s.lanesComplete[lane] }
