package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/coder/websocket"
)

// WSTransport is the WebSocket fallback backing named in spec §4.7 for
// substrates without native lanes: every lane collapses onto a single
// ordered binary stream, each message prefixed with a lane tag.
type WSTransport struct {
	conn *websocket.Conn
}

func NewWSTransport(conn *websocket.Conn) *WSTransport {
	conn.SetReadLimit(maxFrameLength + 64)
	return &WSTransport{conn: conn}
}

func (t *WSTransport) Send(ctx context.Context, lane Lane, payloadType PayloadTypeWire, payload []byte) error {
	lane = collapseLane(lane)
	var buf bytes.Buffer
	var laneTag [4]byte
	binary.BigEndian.PutUint32(laneTag[:], uint32(lane))
	buf.Write(laneTag[:])
	if err := WriteFrame(&buf, Frame{Type: payloadType, Payload: payload}); err != nil {
		return err
	}
	if err := t.conn.Write(ctx, websocket.MessageBinary, buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

func (t *WSTransport) Recv(ctx context.Context) (Lane, Frame, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0, Frame{}, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return 0, Frame{}, fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	if len(data) < 4 {
		return 0, Frame{}, fmt.Errorf("%w: message too short for lane tag", ErrFrameDecode)
	}
	lane := Lane(binary.BigEndian.Uint32(data[:4]))
	f, err := ReadFrame(bytes.NewReader(data[4:]))
	if err != nil {
		return 0, Frame{}, err
	}
	return lane, f, nil
}

func (t *WSTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}

// collapseLane implements spec §4.7's substrate-without-lanes rule:
// DataUnordered collapses to DataOrdered; ControlOrdered and
// DataOrdered both run over the same ordered WS stream but keep
// distinct tags so a subscriber can still prioritize reads.
func collapseLane(l Lane) Lane {
	if l == DataUnordered {
		return DataOrdered
	}
	return l
}
