package handshake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/flynn/noise"
)

const maxNoiseMessage = 65535

// Run drives one side of the XX_psk2 handshake over rw (the dedicated
// "beach-secure-handshake" ordered channel). initiator must be true on
// exactly one side; the other side must pass false. On success it
// returns the directional transport keys and verification code.
func Run(rw io.ReadWriter, initiator bool, psk []byte, prologue []byte, localID, remoteID string) (Result, error) {
	if len(psk) != 32 {
		return Result{}, fmt.Errorf("%w: psk must be 32 bytes, got %d", ErrHandshakeFailed, len(psk))
	}

	staticKeypair, err := cipherSuite.GenerateKeypair(nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: generate static keypair: %v", ErrHandshakeFailed, err)
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:           cipherSuite,
		Pattern:               noise.HandshakeXX,
		Initiator:             initiator,
		Prologue:              prologue,
		StaticKeypair:         staticKeypair,
		PresharedKey:          psk,
		PresharedKeyPlacement: 2, // psk2: mix PSK into the second message (0-indexed position 1)
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: init noise state: %v", ErrHandshakeFailed, err)
	}

	// XXpsk2 has three messages: -> e; <- e, ee, s, es, psk; -> s, se.
	// Messages alternate sender starting with the initiator.
	var h []byte
	sends := [3]bool{initiator, !initiator, initiator}
	for i, senderIsMe := range sends {
		if senderIsMe {
			out, _, cs, err := hs.WriteMessage(nil, nil)
			if err != nil {
				return Result{}, fmt.Errorf("%w: write message %d: %v", ErrHandshakeFailed, i, err)
			}
			if err := writeFrame(rw, out); err != nil {
				return Result{}, fmt.Errorf("%w: send message %d: %v", ErrHandshakeFailed, i, err)
			}
			if cs != nil {
				h = hs.ChannelBinding()
			}
		} else {
			in, err := readFrame(rw)
			if err != nil {
				return Result{}, fmt.Errorf("%w: recv message %d: %v", ErrHandshakeFailed, i, err)
			}
			_, _, cs, err := hs.ReadMessage(nil, in)
			if err != nil {
				return Result{}, fmt.Errorf("%w: read message %d: %v", ErrHandshakeFailed, i, err)
			}
			if cs != nil {
				h = hs.ChannelBinding()
			}
		}
	}

	if h == nil {
		return Result{}, fmt.Errorf("%w: handshake did not complete", ErrHandshakeFailed)
	}

	a, b := localID, remoteID
	if !initiator {
		a, b = remoteID, localID
	}
	return DeriveApplicationKeys(psk, h, a, b)
}

func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxNoiseMessage {
		return fmt.Errorf("noise message too large: %d bytes", len(payload))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
