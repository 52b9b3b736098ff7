// Package keys derives the session key material used by the signaling
// envelope codec and the secure-channel handshake from a session id and
// a user passcode (spec C3).
package keys

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/hkdf"
)

// Argon2id parameters. These are a floor: implementations may strengthen
// them but must never derive with weaker settings.
const (
	ArgonTime    = 1
	ArgonMemory  = 32 * 1024 // KiB
	ArgonThreads = 1
	ArgonKeyLen  = 32
)

const sessionSaltLabel = "beach-cabana-session:"

var (
	ErrEmptyPasscode = errors.New("keys: empty passcode")
	ErrKdfFailed     = errors.New("keys: kdf failed")
)

// Material holds the passcode-derived key for one session, from which
// per-handshake subkeys are derived.
type Material struct {
	Stretched   [32]byte
	Fingerprint [32]byte
}

// Derive computes the session salt, Argon2id-stretches the passcode, and
// fingerprints the passcode for UX comparisons. Returns ErrEmptyPasscode
// if passcode is empty.
func Derive(sessionID, passcode string) (Material, error) {
	if passcode == "" {
		return Material{}, ErrEmptyPasscode
	}

	salt := sha256.Sum256([]byte(sessionSaltLabel + sessionID))
	sessionSalt := salt[:16]

	stretched := argon2.IDKey([]byte(passcode), sessionSalt, ArgonTime, ArgonMemory, ArgonThreads, ArgonKeyLen)
	if len(stretched) != 32 {
		return Material{}, ErrKdfFailed
	}

	var m Material
	copy(m.Stretched[:], stretched)
	m.Fingerprint = sha256.Sum256([]byte(passcode))
	return m, nil
}

// Subkeys derives the per-handshake signaling key and Noise PSK from the
// session's stretched key and a 128-bit handshake id (used as HKDF salt).
func (m Material) Subkeys(handshakeID [16]byte) (signalingKey, noisePSK [32]byte, err error) {
	sig, err := hkdfExpand(m.Stretched[:], handshakeID[:], []byte("beach-cabana/signaling"))
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	psk, err := hkdfExpand(m.Stretched[:], handshakeID[:], []byte("beach-cabana/noise-psk"))
	if err != nil {
		return [32]byte{}, [32]byte{}, err
	}
	copy(signalingKey[:], sig)
	copy(noisePSK[:], psk)
	return signalingKey, noisePSK, nil
}

func hkdfExpand(ikm, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, ikm, salt, info)
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKdfFailed, err)
	}
	return out, nil
}
