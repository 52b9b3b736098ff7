// Package transport implements the framed transport of spec C7: a
// binary frame format carried over one of three lanes, AEAD-encrypted
// with the direction-specific keys produced by C6.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// PayloadType discriminates a frame's payload per spec §4.7.
type PayloadType uint8

const (
	PayloadText   PayloadType = 0
	PayloadBinary PayloadType = 1
)

// ErrFrameDecode covers any malformed frame header or truncated body;
// always fatal for that transport instance (spec §4.7).
var ErrFrameDecode = errors.New("frame decode failed")

const maxFrameLength = 16 * 1024 * 1024

// Frame is one unit of the wire format:
//
//	payload_type: u8
//	sequence:     u64
//	length:       u32
//	payload:      length bytes
type Frame struct {
	Type    PayloadType
	Seq     uint64
	Payload []byte
}

const headerLen = 1 + 8 + 4

// Encode serializes f into the wire format.
func Encode(f Frame) []byte {
	buf := make([]byte, headerLen+len(f.Payload))
	buf[0] = byte(f.Type)
	binary.BigEndian.PutUint64(buf[1:9], f.Seq)
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(f.Payload)))
	copy(buf[headerLen:], f.Payload)
	return buf
}

// Decode parses a wire-format frame from a single message. Lane
// backings that frame messages natively (WebRTC data channels) decode
// one Frame per message; stream-oriented backings (WebSocket fallback,
// in-process IPC) use ReadFrame instead.
func Decode(data []byte) (Frame, error) {
	if len(data) < headerLen {
		return Frame{}, fmt.Errorf("%w: short header (%d bytes)", ErrFrameDecode, len(data))
	}
	length := binary.BigEndian.Uint32(data[9:13])
	if uint32(len(data)-headerLen) != length {
		return Frame{}, fmt.Errorf("%w: length mismatch: header says %d, got %d", ErrFrameDecode, length, len(data)-headerLen)
	}
	payload := make([]byte, length)
	copy(payload, data[headerLen:])
	return Frame{Type: PayloadType(data[0]), Seq: binary.BigEndian.Uint64(data[1:9]), Payload: payload}, nil
}

// WriteFrame writes f to w in length-prefixed form, for stream-oriented
// backings that have no native message boundaries.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > maxFrameLength {
		return fmt.Errorf("%w: payload too large (%d bytes)", ErrFrameDecode, len(f.Payload))
	}
	encoded := Encode(f)
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(encoded)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err := w.Write(encoded)
	return err
}

// ReadFrame reads one length-prefixed frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > maxFrameLength || n < headerLen {
		return Frame{}, fmt.Errorf("%w: invalid stream frame length %d", ErrFrameDecode, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Frame{}, err
	}
	return Decode(buf)
}
