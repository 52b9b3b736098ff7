package webrtcsig

import (
	"context"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/beachcabana/beach/internal/transport"
)

// wireChannel registers open/close/message handlers for a lane's data
// channel and fans incoming messages into the Peer's shared recv
// queue, tagged with their lane.
func (p *Peer) wireChannel(lane transport.Lane, dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.channels[lane] = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.mu.Lock()
		ch := p.opened[lane]
		p.mu.Unlock()
		select {
		case <-ch:
		default:
			close(ch)
		}
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		f, err := transport.Decode(msg.Data)
		if err != nil {
			return
		}
		p.deliver(lane, f)
	})
}

func (p *Peer) deliver(lane transport.Lane, f transport.Frame) {
	p.mu.Lock()
	queue := p.recvQueue
	p.mu.Unlock()
	if queue == nil {
		return
	}
	queue <- laneFrame{lane: lane, frame: f}
}

type laneFrame struct {
	lane  transport.Lane
	frame transport.Frame
}

// Transport adapts Peer to transport.Transport, sending each frame
// over the data channel for its lane and receiving from a fan-in
// queue across all three.
type Transport struct {
	peer *Peer
}

// AsTransport returns a transport.Transport view of p. The Peer must
// have completed WaitChannelsOpen first.
func (p *Peer) AsTransport() *Transport {
	p.mu.Lock()
	if p.recvQueue == nil {
		p.recvQueue = make(chan laneFrame, 256)
	}
	p.mu.Unlock()
	return &Transport{peer: p}
}

func (t *Transport) Send(ctx context.Context, lane transport.Lane, payloadType transport.PayloadTypeWire, payload []byte) error {
	t.peer.mu.Lock()
	dc, ok := t.peer.channels[lane]
	t.peer.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: no data channel for lane %s", transport.ErrSetup, lane)
	}
	data := transport.Encode(transport.Frame{Type: payloadType, Payload: payload})
	if err := dc.Send(data); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrChannelClosed, err)
	}
	return nil
}

func (t *Transport) Recv(ctx context.Context) (transport.Lane, transport.Frame, error) {
	select {
	case lf := <-t.peer.recvQueue:
		return lf.lane, lf.frame, nil
	case <-ctx.Done():
		return 0, transport.Frame{}, fmt.Errorf("%w: %v", transport.ErrTimeout, ctx.Err())
	}
}

func (t *Transport) Close() error {
	return t.peer.Close()
}

var _ transport.Transport = (*Transport)(nil)
