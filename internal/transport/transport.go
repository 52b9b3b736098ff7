package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/crypto/chacha20poly1305"
)

// Lane is one of the three channel semantics named in spec §4.7.
type Lane uint32

const (
	ControlOrdered Lane = iota
	DataOrdered
	DataUnordered
)

func (l Lane) String() string {
	switch l {
	case ControlOrdered:
		return "ControlOrdered"
	case DataOrdered:
		return "DataOrdered"
	case DataUnordered:
		return "DataUnordered"
	default:
		return "Lane(?)"
	}
}

var (
	ErrChannelClosed = errors.New("transport: channel closed")
	ErrTimeout       = errors.New("transport: timeout")
	ErrSetup         = errors.New("transport: setup failed")
	ErrSeqExhausted  = errors.New("transport: sequence counter exhausted")
)

// Transport is the C7 abstraction a publisher/subscriber sends and
// receives frames through, on a given lane, already AEAD-sealed with
// the C6 direction key.
type Transport interface {
	Send(ctx context.Context, lane Lane, payloadType PayloadTypeWire, payload []byte) error
	Recv(ctx context.Context) (lane Lane, f Frame, err error)
	Close() error
}

// PayloadTypeWire re-exports PayloadType so callers outside this
// package don't need two import aliases for the same concept.
type PayloadTypeWire = PayloadType

// Sealer AEAD-encrypts and decrypts frame payloads with a
// direction-specific key, nonce = 64-bit sequence || 32-bit lane tag
// (spec §4.7). A Sealer is one-directional: a connection needs one for
// sending and a distinct one (the peer's) for receiving.
type Sealer struct {
	aead cipherAEAD
	seq  atomic.Uint64
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
	Overhead() int
}

// NewSealer builds a Sealer from a 32-byte direction key.
func NewSealer(key [32]byte) (*Sealer, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: init AEAD: %v", ErrSetup, err)
	}
	return &Sealer{aead: aead}, nil
}

func nonce(seq uint64, lane Lane) []byte {
	n := make([]byte, 12)
	binary.BigEndian.PutUint64(n[0:8], seq)
	binary.BigEndian.PutUint32(n[8:12], uint32(lane))
	return n
}

// SealNext encrypts plaintext under the next sequence number for lane,
// returning the sequence used and the ciphertext. Reusing a (seq, lane)
// pair is a protocol violation the caller must never trigger -- the
// monotonic counter here is the only seq source for this Sealer.
func (s *Sealer) SealNext(lane Lane, plaintext []byte) (seq uint64, ciphertext []byte, err error) {
	seq = s.seq.Add(1) - 1
	if seq == ^uint64(0) {
		return 0, nil, ErrSeqExhausted
	}
	ct := s.aead.Seal(nil, nonce(seq, lane), plaintext, nil)
	return seq, ct, nil
}

// Open decrypts ciphertext sent under (seq, lane).
func (s *Sealer) Open(lane Lane, seq uint64, ciphertext []byte) ([]byte, error) {
	pt, err := s.aead.Open(nil, nonce(seq, lane), ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: AEAD open failed", ErrFrameDecode)
	}
	return pt, nil
}
