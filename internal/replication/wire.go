// Package replication defines the wire vocabulary shared by the
// replication publisher (C8) and subscriber (C9): the frames exchanged
// over the framed transport's ControlOrdered/DataOrdered lanes once
// the secure-channel handshake (C6) has produced AEAD keys.
package replication

// Lane is the priority lane a snapshot or delta belongs to.
type Lane string

const (
	LaneForeground Lane = "foreground"
	LaneRecent     Lane = "recent"
	LaneHistory    Lane = "history"
)

// Cursor is opaque to everyone except the SnapshotSource that issued
// it; callers only ever pass one back to the same source.
type Cursor []byte

// SyncUpdate is any replicated change: a single cell write or a
// rectangular fill, carrying the sequence number used for LWW merge
// on the subscriber's replica.
type SyncUpdate struct {
	Row      int    `json:"row"`
	Col      int    `json:"col"`
	// EndRow/EndCol, when > Row/Col, make this a rectangular fill
	// update (spec C1's fill_rect_if_newer) instead of a single cell.
	EndRow   int    `json:"end_row,omitempty"`
	EndCol   int    `json:"end_col,omitempty"`
	Seq      uint64 `json:"seq"`
	Payload  uint64 `json:"payload"` // packed cell.Packed
}

// Cost defaults to 1 update; large fills may report a larger cost so
// budgets track work rather than frame count.
func (u SyncUpdate) Cost() int {
	if u.EndRow > u.Row || u.EndCol > u.Col {
		rows := u.EndRow - u.Row
		if rows < 1 {
			rows = 1
		}
		cols := u.EndCol - u.Col
		if cols < 1 {
			cols = 1
		}
		return rows * cols
	}
	return 1
}

// SnapshotSlice is one SnapshotSource.NextSlice result.
type SnapshotSlice struct {
	Updates   []SyncUpdate
	Watermark uint64
	HasMore   bool
	Cursor    Cursor
}

// DeltaSlice is one DeltaSource.NextDelta result.
type DeltaSlice struct {
	Updates   []SyncUpdate
	Watermark uint64
	HasMore   bool
}

// SyncConfig is negotiated once at ServerHello (spec §4.8).
type SyncConfig struct {
	SnapshotBudgets   map[Lane]int `json:"snapshot_budgets"`
	DeltaBudget       int          `json:"delta_budget"`
	HeartbeatMillis   int          `json:"heartbeat_millis"`
	InitialSnapshotLines int       `json:"initial_snapshot_lines"`
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		SnapshotBudgets: map[Lane]int{
			LaneForeground: 500,
			LaneRecent:     500,
			LaneHistory:    500,
		},
		DeltaBudget:           512,
		HeartbeatMillis:       250,
		InitialSnapshotLines:  500,
	}
}

// --- wire frames ---

type ClientHello struct {
	ViewportRows int `json:"viewport_rows"`
	ViewportCols int `json:"viewport_cols"`
}

type ServerHello struct {
	SubscriptionID string     `json:"subscription_id"`
	MaxSeq         uint64     `json:"max_seq"`
	Config         SyncConfig `json:"config"`
}

type Snapshot struct {
	SubscriptionID string       `json:"subscription_id"`
	Lane           Lane         `json:"lane"`
	Watermark      uint64       `json:"watermark"`
	HasMore        bool         `json:"has_more"`
	Updates        []SyncUpdate `json:"updates"`
}

type SnapshotComplete struct {
	SubscriptionID string `json:"subscription_id"`
	Lane           Lane   `json:"lane"`
}

type Delta struct {
	SubscriptionID string       `json:"subscription_id"`
	Watermark      uint64       `json:"watermark"`
	HasMore        bool         `json:"has_more"`
	Updates        []SyncUpdate `json:"updates"`
}

type Heartbeat struct {
	MaxSeq uint64 `json:"max_seq"`
}

type Ack struct {
	Watermark uint64 `json:"watermark"`
}

type RequestSnapshot struct {
	Lane   Lane `json:"lane"`
	Budget int  `json:"budget"`
}

type RequestResync struct {
	Since uint64 `json:"since"`
}

// FrameType discriminates the frames above when serialized onto the
// framed transport (spec C7's payload_type is transport-level; this
// Type is the replication-level discriminator carried in the JSON
// envelope body).
type FrameType string

const (
	FrameServerHello      FrameType = "server_hello"
	FrameClientHello      FrameType = "client_hello"
	FrameSnapshot         FrameType = "snapshot"
	FrameSnapshotComplete FrameType = "snapshot_complete"
	FrameDelta            FrameType = "delta"
	FrameHeartbeat        FrameType = "heartbeat"
	FrameAck              FrameType = "ack"
	FrameRequestSnapshot  FrameType = "request_snapshot"
	FrameRequestResync    FrameType = "request_resync"
)

// Envelope discriminates a replication frame's type before its
// type-specific body is unmarshaled, mirroring the broker protocol's
// own Envelope{Type} pattern.
type Envelope struct {
	Type FrameType `json:"type"`
}
