// Package webrtcsig wires pion/webrtc PeerConnections with one data
// channel per C7 lane, completing the "transport" half of the
// offer/answer/ICE exchange that C5's broker carries as opaque sealed
// signals. Adapted from the collaborator stack's browser-facing P2P
// peer manager, generalized from a single per-sender PeerConnection
// map to a direct two-party connection (host <-> one viewer at a
// time; the publisher fans out to multiple viewer Peers).
package webrtcsig

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/beachcabana/beach/internal/logger"
	"github.com/beachcabana/beach/internal/transport"
)

// laneLabels maps each C7 lane to its data channel label and ordering.
var laneLabels = map[transport.Lane]struct {
	label   string
	ordered bool
}{
	transport.ControlOrdered: {"beach-control", true},
	transport.DataOrdered:    {"beach-data", true},
	transport.DataUnordered:  {"beach-data-unordered", false},
}

// Peer wraps a pion PeerConnection plus its three lane data channels.
type Peer struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	channels  map[transport.Lane]*webrtc.DataChannel
	opened    map[transport.Lane]chan struct{}
	recvQueue chan laneFrame

	OnICECandidate func(candidate webrtc.ICECandidateInit)
	OnConnected    func()
	OnFailed       func(state webrtc.PeerConnectionState)
}

func newPeer(iceServers []webrtc.ICEServer) (*Peer, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	p := &Peer{
		pc:       pc,
		channels: make(map[transport.Lane]*webrtc.DataChannel),
		opened:   make(map[transport.Lane]chan struct{}),
	}
	for lane := range laneLabels {
		p.opened[lane] = make(chan struct{})
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if p.OnICECandidate != nil {
			p.OnICECandidate(c.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Debug("webrtc connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateConnected:
			if p.OnConnected != nil {
				p.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			if p.OnFailed != nil {
				p.OnFailed(state)
			}
		}
	})
	return p, nil
}

// NewOfferer creates the three lane data channels locally (the offerer
// drives channel creation per the WebRTC negotiation model) and
// returns the local SDP offer.
func NewOfferer(iceServers []webrtc.ICEServer) (*Peer, webrtc.SessionDescription, error) {
	p, err := newPeer(iceServers)
	if err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	for lane, spec := range laneLabels {
		ordered := spec.ordered
		dc, err := p.pc.CreateDataChannel(spec.label, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			p.pc.Close()
			return nil, webrtc.SessionDescription{}, fmt.Errorf("create data channel %s: %w", spec.label, err)
		}
		p.wireChannel(lane, dc)
	}

	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		p.pc.Close()
		return nil, webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		p.pc.Close()
		return nil, webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return p, offer, nil
}

// NewAnswerer accepts a remote offer and returns the local SDP answer.
// Its data channels arrive via OnDataChannel since the answerer doesn't
// create them.
func NewAnswerer(iceServers []webrtc.ICEServer, offer webrtc.SessionDescription) (*Peer, webrtc.SessionDescription, error) {
	p, err := newPeer(iceServers)
	if err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	p.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		lane, ok := laneForLabel(dc.Label())
		if !ok {
			logger.Warn("webrtcsig: unexpected data channel label", "label", dc.Label())
			return
		}
		p.wireChannel(lane, dc)
	})

	if err := p.pc.SetRemoteDescription(offer); err != nil {
		p.pc.Close()
		return nil, webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		p.pc.Close()
		return nil, webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		p.pc.Close()
		return nil, webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	return p, answer, nil
}

func laneForLabel(label string) (transport.Lane, bool) {
	for lane, spec := range laneLabels {
		if spec.label == label {
			return lane, true
		}
	}
	return 0, false
}

// SetAnswer completes the offerer side after the answerer's SDP comes
// back over the broker.
func (p *Peer) SetAnswer(answer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description (answer): %w", err)
	}
	return nil
}

// AddICECandidate applies a trickled remote candidate.
func (p *Peer) AddICECandidate(c webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

// WaitChannelsOpen blocks until all three lane data channels have
// fired OnOpen, or ctx is done.
func (p *Peer) WaitChannelsOpen(ctx context.Context) error {
	for lane := range laneLabels {
		p.mu.Lock()
		ch := p.opened[lane]
		p.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return fmt.Errorf("webrtcsig: channels not open before deadline: %w", ctx.Err())
		}
	}
	return nil
}

func (p *Peer) Close() error {
	return p.pc.Close()
}
