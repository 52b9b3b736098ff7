// Package publish implements the replication publisher of spec C8: a
// lane-prioritized scheduler that streams SnapshotSource/DeltaSource
// output to a subscriber, honoring per-lane budgets and sticky
// has_more semantics.
package publish

import (
	"sort"

	"github.com/beachcabana/beach/internal/grid"
	"github.com/beachcabana/beach/internal/replication"
)

// SnapshotSource yields a bounded slice of a lane's current state.
type SnapshotSource interface {
	NextSlice(cursor replication.Cursor, lane replication.Lane, budget int) (replication.SnapshotSlice, error)
	ResetLane(lane replication.Lane)
}

// DeltaSource yields updates committed since a given sequence number.
type DeltaSource interface {
	NextDelta(since uint64, budget int) (replication.DeltaSlice, error)
}

// GridSource adapts a *grid.Grid into both SnapshotSource and
// DeltaSource. All three snapshot lanes scan the same grid: Foreground
// scans the rows marked via SetForegroundRows (every row when none are
// marked), while Recent and History both scan every row. The
// recentSince field is not read; Recent is not narrowed to rows changed
// since a watermark.
type GridSource struct {
	g *grid.Grid

	foregroundRows []int
	recentSince    uint64

	// deltaLog is an append-only, seq-ordered ring of recently written
	// cells, the "ring buffer sized to cover the oldest un-acked
	// viewer's watermark" named in spec §4.8's retention policy.
	deltaLog *deltaRing
}

func NewGridSource(g *grid.Grid, deltaCapacity int) *GridSource {
	return &GridSource{g: g, deltaLog: newDeltaRing(deltaCapacity)}
}

// RecordWrite should be called by whatever writes to the grid (the
// emulator/capture thread) immediately after a successful
// WriteCellIfNewer/FillRectIfNewer, so the delta ring stays current.
// It does not affect the snapshot lanes, which read the grid directly.
func (s *GridSource) RecordWrite(u replication.SyncUpdate) {
	s.deltaLog.push(u)
}

// SetForegroundRows updates which rows are "currently visible"
// (spec's Foreground lane), called when the viewer's viewport changes.
func (s *GridSource) SetForegroundRows(rows []int) {
	cp := make([]int, len(rows))
	copy(cp, rows)
	sort.Ints(cp)
	s.foregroundRows = cp
}

func cursorToOffset(c replication.Cursor) int {
	if len(c) == 0 {
		return 0
	}
	off := 0
	for _, b := range c {
		off = off<<8 | int(b)
	}
	return off
}

func offsetToCursor(off int) replication.Cursor {
	return replication.Cursor{byte(off >> 24), byte(off >> 16), byte(off >> 8), byte(off)}
}

// NextSlice implements SnapshotSource. Foreground iterates the rows
// named by SetForegroundRows (every row when none are named); Recent
// and History both iterate every row of the grid in ascending order,
// so History does not leave out rows the other lanes already sent.
// Within a lane updates are emitted in
// ascending (row, seq) order (spec's tie-break rule).
func (s *GridSource) NextSlice(cursor replication.Cursor, lane replication.Lane, budget int) (replication.SnapshotSlice, error) {
	rows := s.rowsForLane(lane)
	offset := cursorToOffset(cursor)

	var updates []replication.SyncUpdate
	var maxSeq uint64
	idx := offset
	_, nc := s.g.Dims()

	// GetCellRelaxed (not SnapshotRowInto) so each update carries the
	// seq that was actually live alongside its payload; SnapshotRowInto
	// only bulk-reads payloads and is permitted to tear across cells.
	for idx < len(rows) && len(updates) < budget {
		r := rows[idx]
		for c := 0; c < nc; c++ {
			packed, seq, ok := s.g.GetCellRelaxed(r, c)
			if !ok || seq == 0 {
				continue
			}
			updates = append(updates, replication.SyncUpdate{Row: r, Col: c, Seq: seq, Payload: uint64(packed)})
			if seq > maxSeq {
				maxSeq = seq
			}
			if len(updates) >= budget {
				break
			}
		}
		idx++
	}

	sort.Slice(updates, func(i, j int) bool {
		if updates[i].Row != updates[j].Row {
			return updates[i].Row < updates[j].Row
		}
		return updates[i].Seq < updates[j].Seq
	})

	hasMore := idx < len(rows)
	return replication.SnapshotSlice{
		Updates:   updates,
		Watermark: maxSeq,
		HasMore:   hasMore,
		Cursor:    offsetToCursor(idx),
	}, nil
}

func (s *GridSource) rowsForLane(lane replication.Lane) []int {
	nr, _ := s.g.Dims()
	switch lane {
	case replication.LaneForeground:
		if len(s.foregroundRows) > 0 {
			return s.foregroundRows
		}
		return allRows(nr)
	case replication.LaneRecent:
		return allRows(nr)
	default: // LaneHistory
		return allRows(nr)
	}
}

func allRows(n int) []int {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	return rows
}

func (s *GridSource) ResetLane(lane replication.Lane) {
	// Cursors are caller-held (offsets into this lane's row list); a
	// reset just means the next NextSlice call starts from offset 0,
	// which happens automatically once the caller discards its old
	// cursor. Nothing to do here beyond documenting the contract.
}

// NextDelta implements DeltaSource from the ring buffer populated by
// RecordWrite.
func (s *GridSource) NextDelta(since uint64, budget int) (replication.DeltaSlice, error) {
	updates, hasMore := s.deltaLog.since(since, budget)
	var maxSeq uint64
	for _, u := range updates {
		if u.Seq > maxSeq {
			maxSeq = u.Seq
		}
	}
	if maxSeq == 0 {
		maxSeq = since
	}
	return replication.DeltaSlice{Updates: updates, Watermark: maxSeq, HasMore: hasMore}, nil
}

// Truncate drops retained deltas at or below watermark, implementing
// the "advance the delta-retention low-water" step of spec §4.8's Ack
// handling.
func (s *GridSource) Truncate(watermark uint64) {
	s.deltaLog.truncate(watermark)
}

// Overflowed reports whether the delta ring has dropped entries since
// the last ClearOverflow, i.e. whether a subscriber may have missed
// updates the ring no longer holds.
func (s *GridSource) Overflowed() bool {
	return s.deltaLog.overflowed()
}

// ClearOverflow resets the dropped-entries flag after the scheduler has
// demoted the affected subscription.
func (s *GridSource) ClearOverflow() {
	s.deltaLog.clearOverflow()
}
