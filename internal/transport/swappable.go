package transport

import (
	"context"
	"fmt"
	"sync"
)

// MigrationState mirrors the collaborator stack's relay/P2P migration
// states: a session starts on the broker-relayed fallback transport
// and may migrate to a direct P2P transport once one becomes
// available, falling back again if it dies.
type MigrationState string

const (
	StateRelay MigrationState = "relay"
	StateP2P   MigrationState = "p2p"
)

// MigrationHook is invoked with the new state whenever SwappableTransport
// migrates, so a caller can tell the broker/peer about the switch (the
// collaborator stack's pty.migrated / pty.fallback notifications).
type MigrationHook func(state MigrationState)

// SwappableTransport lets a connection start on one Transport (e.g. the
// WebSocket fallback) and atomically swap to another (e.g. a WebRTC
// data-channel Transport) once P2P negotiation completes, without the
// publisher/subscriber above it ever seeing a Transport change.
type SwappableTransport struct {
	mu      sync.Mutex
	active  Transport
	state   MigrationState
	onState MigrationHook
}

// NewSwappableTransport starts on relayTransport, mirroring the
// collaborator stack's "always start on relay, migrate to P2P" rule.
func NewSwappableTransport(relayTransport Transport) *SwappableTransport {
	return &SwappableTransport{active: relayTransport, state: StateRelay}
}

// OnStateChange registers a hook fired on every MigrateToP2P/FallbackToRelay.
func (s *SwappableTransport) OnStateChange(hook MigrationHook) {
	s.mu.Lock()
	s.onState = hook
	s.mu.Unlock()
}

// MigrateToP2P atomically swaps the active transport to p2pTransport.
// Send and Recv read the active transport under the lock and release it
// before delegating, so the swap never waits on a blocked Recv; a call
// already in progress completes on the transport it started on.
func (s *SwappableTransport) MigrateToP2P(p2pTransport Transport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateP2P {
		return fmt.Errorf("transport: already migrated to p2p")
	}
	s.active = p2pTransport
	s.state = StateP2P
	if s.onState != nil {
		s.onState(StateP2P)
	}
	return nil
}

// FallbackToRelay swaps back to relayTransport, e.g. after the P2P
// transport's Recv/Send reports ErrChannelClosed.
func (s *SwappableTransport) FallbackToRelay(relayTransport Transport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRelay {
		return
	}
	s.active = relayTransport
	s.state = StateRelay
	if s.onState != nil {
		s.onState(StateRelay)
	}
}

// State reports whether the connection is currently relayed or P2P.
func (s *SwappableTransport) State() MigrationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SwappableTransport) Send(ctx context.Context, lane Lane, payloadType PayloadTypeWire, payload []byte) error {
	s.mu.Lock()
	t := s.active
	s.mu.Unlock()
	return t.Send(ctx, lane, payloadType, payload)
}

func (s *SwappableTransport) Recv(ctx context.Context) (Lane, Frame, error) {
	s.mu.Lock()
	t := s.active
	s.mu.Unlock()
	return t.Recv(ctx)
}

func (s *SwappableTransport) Close() error {
	s.mu.Lock()
	t := s.active
	s.mu.Unlock()
	return t.Close()
}

var _ Transport = (*SwappableTransport)(nil)
