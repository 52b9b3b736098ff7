package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// IPCTransport is the in-process transport backing named in spec §4.7
// for same-host tests and the loopback "share with myself" path: two
// ends connected by io.Pipe, each message length-prefixed with its
// lane tag since io.Pipe has no native framing or lanes.
//
// On a substrate without native lanes, DataOrdered and ControlOrdered
// collapse to one ordered stream and DataUnordered collapses to
// DataOrdered (spec §4.7) -- Send collapses the lane, and IPCTransport
// preserves the result only as a tag for the receiver's prioritization
// logic, not as a separate wire.
type IPCTransport struct {
	w io.Writer
	r io.Reader

	writeMu sync.Mutex
	closeFn func() error
	closeOnce sync.Once
}

// NewIPCPair returns two connected IPCTransports, as if produced by
// two ends of an io.Pipe.
func NewIPCPair() (a, b *IPCTransport) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a = &IPCTransport{w: aw, r: ar, closeFn: func() error { aw.Close(); return ar.Close() }}
	b = &IPCTransport{w: bw, r: br, closeFn: func() error { bw.Close(); return br.Close() }}
	return a, b
}

func (t *IPCTransport) Send(ctx context.Context, lane Lane, payloadType PayloadTypeWire, payload []byte) error {
	return t.sendFrame(collapseLane(lane), Frame{Type: payloadType, Payload: payload})
}

func (t *IPCTransport) sendFrame(lane Lane, f Frame) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var laneTag [4]byte
	binary.BigEndian.PutUint32(laneTag[:], uint32(lane))
	if _, err := t.w.Write(laneTag[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	if err := WriteFrame(t.w, f); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

func (t *IPCTransport) Recv(ctx context.Context) (Lane, Frame, error) {
	type result struct {
		lane Lane
		f    Frame
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		var laneTag [4]byte
		if _, err := io.ReadFull(t.r, laneTag[:]); err != nil {
			ch <- result{err: fmt.Errorf("%w: %v", ErrChannelClosed, err)}
			return
		}
		f, err := ReadFrame(t.r)
		if err != nil {
			ch <- result{err: fmt.Errorf("%w: %v", ErrChannelClosed, err)}
			return
		}
		ch <- result{lane: Lane(binary.BigEndian.Uint32(laneTag[:])), f: f}
	}()

	select {
	case res := <-ch:
		return res.lane, res.f, res.err
	case <-ctx.Done():
		return 0, Frame{}, fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
	}
}

func (t *IPCTransport) Close() error {
	var err error
	t.closeOnce.Do(func() { err = t.closeFn() })
	return err
}
