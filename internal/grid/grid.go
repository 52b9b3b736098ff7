// Package grid implements the concurrency-safe, sequence-stamped 2-D
// cell cache (spec C1). Writers and readers take only a row's shared
// read lock, so they never block one another; the row lock is held
// exclusively only while FreezeRow/ThawRow switch that row. Cell
// updates are published with atomic stores and a compare-and-swap on
// the seq word. Historical rows can be frozen into an
// immutable snapshot for scrollback retention and thawed back.
package grid

import (
	"sync"
	"sync/atomic"

	"github.com/beachcabana/beach/internal/cell"
)

// WriteResult reports the outcome of a compare-and-publish write.
type WriteResult int

const (
	Written WriteResult = iota
	SkippedOlder
	SkippedEqual
	OutOfBounds
)

func (r WriteResult) String() string {
	switch r {
	case Written:
		return "Written"
	case SkippedOlder:
		return "SkippedOlder"
	case SkippedEqual:
		return "SkippedEqual"
	case OutOfBounds:
		return "OutOfBounds"
	default:
		return "Unknown"
	}
}

// row is one physical row of the grid. Active rows use atomic words so
// writers never block. Frozen rows are immutable plain slices; Frozen
// rejects every write.
type row struct {
	mu      sync.RWMutex // guards only the frozen<->active transition and the frozen slices
	frozen  bool
	payload []atomic.Uint64 // len == cols, used when !frozen
	seq     []atomic.Uint64

	frozenPayload []uint64 // used when frozen
	frozenSeq     []uint64
}

// Grid is a fixed-shape rows x cols store of packed cells with
// per-cell sequence stamps. One owner allocates it; many writers and
// readers may use it concurrently thereafter.
type Grid struct {
	rows, cols int
	data       []row

	rowOffsetMu sync.RWMutex
	rowOffset   int64 // absolute row id of physical row 0
}

// New allocates a Grid of the given shape, fully blank (seq 0 everywhere).
func New(rows, cols int) *Grid {
	g := &Grid{rows: rows, cols: cols, data: make([]row, rows)}
	for i := range g.data {
		g.data[i].payload = make([]atomic.Uint64, cols)
		g.data[i].seq = make([]atomic.Uint64, cols)
	}
	return g
}

// Dims returns the grid's shape.
func (g *Grid) Dims() (rows, cols int) {
	return g.rows, g.cols
}

// RowOffset returns the absolute row id of physical row 0.
func (g *Grid) RowOffset() int64 {
	g.rowOffsetMu.RLock()
	defer g.rowOffsetMu.RUnlock()
	return g.rowOffset
}

// SetRowOffset updates the absolute row id of physical row 0, used when
// scrollback scrolls the logical window without reallocating the grid.
func (g *Grid) SetRowOffset(off int64) {
	g.rowOffsetMu.Lock()
	g.rowOffset = off
	g.rowOffsetMu.Unlock()
}

func (g *Grid) bounds(r, c int) bool {
	return r >= 0 && r < g.rows && c >= 0 && c < g.cols
}

// WriteCellIfNewer stores payload at (row, col) iff newSeq is strictly
// greater than the cell's current seq. Payload is published before seq,
// with release ordering, so any reader observing the new seq necessarily
// observes the new payload (I1-I3).
func (g *Grid) WriteCellIfNewer(r, c int, newSeq uint64, payload cell.Packed) WriteResult {
	if !g.bounds(r, c) {
		return OutOfBounds
	}
	rw := &g.data[r]
	rw.mu.RLock()
	defer rw.mu.RUnlock()
	if rw.frozen {
		return OutOfBounds
	}
	return writeCellLocked(rw, c, newSeq, payload)
}

// writeCellLocked performs the CAS-based compare-and-publish on an
// already-read-locked active row.
func writeCellLocked(rw *row, c int, newSeq uint64, payload cell.Packed) WriteResult {
	for {
		cur := rw.seq[c].Load()
		if newSeq < cur {
			return SkippedOlder
		}
		if newSeq == cur {
			return SkippedEqual
		}
		// Store payload first (release), then seq. A reader doing the
		// double-checked read in GetCellRelaxed will never observe the
		// new seq without also being able to observe the new payload.
		rw.payload[c].Store(uint64(payload))
		if rw.seq[c].CompareAndSwap(cur, newSeq) {
			return Written
		}
		// Another writer raced us to a still-newer seq; retry with it.
	}
}

// FillRectIfNewer applies the same compare-and-publish rule to every
// cell in the half-open rectangle [row0,row1) x [col0,col1).
func (g *Grid) FillRectIfNewer(row0, col0, row1, col1 int, newSeq uint64, payload cell.Packed) (written, skipped int) {
	if row0 < 0 {
		row0 = 0
	}
	if col0 < 0 {
		col0 = 0
	}
	if row1 > g.rows {
		row1 = g.rows
	}
	if col1 > g.cols {
		col1 = g.cols
	}
	for r := row0; r < row1; r++ {
		rw := &g.data[r]
		rw.mu.RLock()
		if rw.frozen {
			rw.mu.RUnlock()
			continue
		}
		for c := col0; c < col1; c++ {
			switch writeCellLocked(rw, c, newSeq, payload) {
			case Written:
				written++
			default:
				skipped++
			}
		}
		rw.mu.RUnlock()
	}
	return written, skipped
}

// SnapshotRowInto performs a bulk read of a row's payloads into out,
// which must have length >= cols. This is a scan, not a transaction: it
// is permitted to tear relative to per-cell seqs. Use GetCellRelaxed
// for a consistent single-cell read.
func (g *Grid) SnapshotRowInto(r int, out []uint64) {
	if r < 0 || r >= g.rows {
		return
	}
	rw := &g.data[r]
	rw.mu.RLock()
	defer rw.mu.RUnlock()
	if rw.frozen {
		n := len(rw.frozenPayload)
		if n > len(out) {
			n = len(out)
		}
		copy(out, rw.frozenPayload[:n])
		return
	}
	n := len(rw.payload)
	if n > len(out) {
		n = len(out)
	}
	for c := 0; c < n; c++ {
		out[c] = rw.payload[c].Load()
	}
}

// GetCellRelaxed performs a double-checked read: load seq, load payload,
// reload seq; on disagreement reload payload once more. The returned
// pair was simultaneously live at some instant between the calls.
func (g *Grid) GetCellRelaxed(r, c int) (payload cell.Packed, seq uint64, ok bool) {
	if !g.bounds(r, c) {
		return 0, 0, false
	}
	rw := &g.data[r]
	rw.mu.RLock()
	defer rw.mu.RUnlock()
	if rw.frozen {
		return cell.Packed(rw.frozenPayload[c]), rw.frozenSeq[c], true
	}

	s1 := rw.seq[c].Load()
	p := rw.payload[c].Load()
	s2 := rw.seq[c].Load()
	if s1 != s2 {
		p = rw.payload[c].Load()
	}
	return cell.Packed(p), s2, true
}

// FreezeRow converts an Active row into an immutable Frozen snapshot.
// Frozen rows reject writes (OutOfBounds).
func (g *Grid) FreezeRow(r int) {
	if r < 0 || r >= g.rows {
		return
	}
	rw := &g.data[r]
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if rw.frozen {
		return
	}
	rw.frozenPayload = make([]uint64, g.cols)
	rw.frozenSeq = make([]uint64, g.cols)
	for c := 0; c < g.cols; c++ {
		rw.frozenPayload[c] = rw.payload[c].Load()
		rw.frozenSeq[c] = rw.seq[c].Load()
	}
	rw.frozen = true
	rw.payload = nil
	rw.seq = nil
}

// ThawRow restores a Frozen row to the atomic Active representation,
// preserving every (payload, seq) pair exactly (I5). resurrectSeq is
// unused by the restore itself but accepted to let callers assert the
// watermark under which the thaw happened; pass 0 if irrelevant.
func (g *Grid) ThawRow(r int, _ uint64) {
	if r < 0 || r >= g.rows {
		return
	}
	rw := &g.data[r]
	rw.mu.Lock()
	defer rw.mu.Unlock()
	if !rw.frozen {
		return
	}
	rw.payload = make([]atomic.Uint64, g.cols)
	rw.seq = make([]atomic.Uint64, g.cols)
	for c := 0; c < g.cols; c++ {
		rw.payload[c].Store(rw.frozenPayload[c])
		rw.seq[c].Store(rw.frozenSeq[c])
	}
	rw.frozen = false
	rw.frozenPayload = nil
	rw.frozenSeq = nil
}

// IsFrozen reports whether row r is currently frozen.
func (g *Grid) IsFrozen(r int) bool {
	if r < 0 || r >= g.rows {
		return false
	}
	rw := &g.data[r]
	rw.mu.RLock()
	defer rw.mu.RUnlock()
	return rw.frozen
}

// MaxSeq scans every active and frozen cell and returns the highest seq
// observed. Used to compute watermarks for ServerHello/Heartbeat frames.
func (g *Grid) MaxSeq() uint64 {
	var max uint64
	for r := range g.data {
		rw := &g.data[r]
		rw.mu.RLock()
		if rw.frozen {
			for _, s := range rw.frozenSeq {
				if s > max {
					max = s
				}
			}
		} else {
			for c := range rw.seq {
				if s := rw.seq[c].Load(); s > max {
					max = s
				}
			}
		}
		rw.mu.RUnlock()
	}
	return max
}
