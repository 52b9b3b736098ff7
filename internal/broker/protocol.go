// Package broker implements the rendezvous client of spec C5: it joins
// a session on the broker's WebSocket signaling protocol and exchanges
// sealed envelopes and ICE candidates. The broker never sees cleartext
// session content — every Signal payload it forwards is opaque JSON
// produced by the envelope package.
package broker

import "encoding/json"

// Transport is one of the transports a peer may advertise support for.
type Transport string

const (
	TransportWebRTC      Transport = "webrtc"
	TransportWebTransport Transport = "webtransport"
	TransportDirect      Transport = "direct"
	TransportCustom      Transport = "custom"
)

// Role identifies whether a peer is the session's offerer (Server) or a
// joining viewer (Client).
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Envelope discriminates client<->broker messages by a "type" tag.
type Envelope struct {
	Type string `json:"type"`
}

// --- client -> broker ---

type JoinMsg struct {
	Type                string      `json:"type"`
	PeerID              string      `json:"peer_id"`
	Role                Role        `json:"role"`
	Passphrase          string      `json:"passphrase,omitempty"`
	SupportedTransports []Transport `json:"supported_transports"`
	PreferredTransport  Transport   `json:"preferred_transport,omitempty"`
}

type SignalMsg struct {
	Type   string          `json:"type"`
	ToPeer string          `json:"to_peer"`
	Signal json.RawMessage `json:"signal"`
}

type PingMsg struct {
	Type string `json:"type"`
}

// --- broker -> client ---

type Peer struct {
	PeerID              string      `json:"peer_id"`
	Role                Role        `json:"role"`
	SupportedTransports []Transport `json:"supported_transports"`
}

type JoinSuccessMsg struct {
	Type                string    `json:"type"`
	SessionID           string    `json:"session_id"`
	PeerID              string    `json:"peer_id"`
	Peers               []Peer    `json:"peers"`
	AvailableTransports []Transport `json:"available_transports"`
}

type JoinErrorMsg struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type PeerJoinedMsg struct {
	Type string `json:"type"`
	Peer Peer   `json:"peer"`
}

type PeerLeftMsg struct {
	Type   string `json:"type"`
	PeerID string `json:"peer_id"`
}

type SignalInMsg struct {
	Type     string          `json:"type"`
	FromPeer string          `json:"from_peer"`
	Signal   json.RawMessage `json:"signal"`
}

type PongMsg struct {
	Type string `json:"type"`
}

type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

const (
	TypeJoin        = "join"
	TypeSignal      = "signal"
	TypePing        = "ping"
	TypeJoinSuccess = "join_success"
	TypeJoinError   = "join_error"
	TypePeerJoined  = "peer_joined"
	TypePeerLeft    = "peer_left"
	TypePong        = "pong"
	TypeError       = "error"
)

// SealedSignal is the opaque-to-the-broker payload carried inside a
// SignalMsg/SignalInMsg's Signal field: a sealed envelope plus a kind
// tag ("offer", "answer", "ice") so the receiver knows how to route it
// without the broker ever inspecting cleartext.
type SealedSignal struct {
	Kind    string `json:"kind"`
	Sealed  string `json:"sealed"` // compact envelope encoding
}
