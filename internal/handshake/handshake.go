// Package handshake implements the secure-channel handshake of spec
// C6: Noise XX_psk2_25519_ChaChaPoly_BLAKE2s run over a dedicated
// ordered channel, binding session identity to the passcode and
// producing directional AEAD keys plus a user-comparable verification
// code. Grounded in the same ECDH+HKDF shape as the legacy PTY crypto
// helper this stack used before moving to a full Noise handshake, now
// delegated to github.com/flynn/noise since the Noise Protocol
// Framework itself has no in-pack precedent.
package handshake

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/flynn/noise"
	"golang.org/x/crypto/hkdf"

	hashfn "crypto/sha256"
)

// ErrHandshakeFailed covers any Noise decode error, PSK mismatch, or
// channel close mid-handshake (spec §4.6's single fatal condition).
var ErrHandshakeFailed = errors.New("secure handshake failed")

const prologuePrefix = "beach:secure-handshake:v1"

// ChannelLabel is the dedicated ordered channel label the handshake
// runs over before being torn down.
const ChannelLabel = "beach-secure-handshake"

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

// Prologue builds the Noise prologue binding the handshake to a
// specific rendezvous: handshake-id plus the sorted pair of peer ids.
func Prologue(handshakeID [16]byte, peerA, peerB string) []byte {
	lo, hi := peerA, peerB
	if hi < lo {
		lo, hi = hi, lo
	}
	var buf strings.Builder
	buf.WriteString(prologuePrefix)
	buf.WriteByte(0x1F)
	buf.Write(handshakeID[:])
	buf.WriteByte('|')
	buf.WriteString(lo)
	buf.WriteByte('|')
	buf.WriteString(hi)
	return []byte(buf.String())
}

// Result holds the outputs of a completed handshake: the two
// directional transport keys and the 6-digit verification code, plus
// the raw handshake hash for any caller-side bookkeeping.
type Result struct {
	KeyAtoB  [32]byte
	KeyBtoA  [32]byte
	Verify   string // 6 decimal digits, zero-padded
	HandshakeHash []byte
}

// DeriveApplicationKeys implements spec §4.6's "Derivation of
// application keys" step: hkdf = HKDF-SHA256(psk, h), then per-label
// expansion for each direction's transport key and the verification
// code.
func DeriveApplicationKeys(psk []byte, h []byte, peerA, peerB string) (Result, error) {
	// hkdf.Extract(hash, secret, salt) computes HMAC(key=salt, msg=secret).
	// The original implementation builds this as Hkdf::new(Some(psk), h),
	// and the Rust hkdf crate's Hkdf::new(salt, ikm) signature makes psk
	// the salt and h the secret -- so secret=h, salt=psk here.
	prk := hkdf.Extract(hashfn.New, h, psk)

	kAtoB, err := hkdfExpandLabel(prk, fmt.Sprintf("beach:secure-transport:direction:%s->%s", peerA, peerB), 32)
	if err != nil {
		return Result{}, fmt.Errorf("%w: derive k_AtoB: %v", ErrHandshakeFailed, err)
	}
	kBtoA, err := hkdfExpandLabel(prk, fmt.Sprintf("beach:secure-transport:direction:%s->%s", peerB, peerA), 32)
	if err != nil {
		return Result{}, fmt.Errorf("%w: derive k_BtoA: %v", ErrHandshakeFailed, err)
	}

	lo, hi := peerA, peerB
	if hi < lo {
		lo, hi = hi, lo
	}
	verifyBytes, err := hkdfExpandLabel(prk, fmt.Sprintf("beach:secure-transport:verify:%s|%s", lo, hi), 4)
	if err != nil {
		return Result{}, fmt.Errorf("%w: derive verify code: %v", ErrHandshakeFailed, err)
	}

	code := binary.BigEndian.Uint32(verifyBytes) % 1_000_000
	res := Result{Verify: zeroPad6(code), HandshakeHash: h}
	copy(res.KeyAtoB[:], kAtoB)
	copy(res.KeyBtoA[:], kBtoA)
	return res, nil
}

func hkdfExpandLabel(prk []byte, info string, length int) ([]byte, error) {
	r := hkdf.Expand(hashfn.New, prk, []byte(info))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func zeroPad6(n uint32) string {
	s := strconv.FormatUint(uint64(n), 10)
	if len(s) < 6 {
		s = strings.Repeat("0", 6-len(s)) + s
	}
	return s
}

