// Package envelope implements the sealed signaling envelope codec (spec
// C4): ChaCha20-Poly1305 AEAD over the per-handshake signaling key, with
// both a compact ASCII wire form and a JSON wire form.
package envelope

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const wireVersion uint8 = 1

var (
	ErrInvalidEnvelope = errors.New("envelope: invalid envelope")
	ErrDecrypt         = errors.New("envelope: decrypt failed")
	ErrEncrypt         = errors.New("envelope: encrypt failed")
	ErrBase64          = errors.New("envelope: base64 decode failed")
)

// Envelope is the sealed wire form carried inside broker messages.
type Envelope struct {
	Version      uint8
	HandshakeID  [16]byte
	Nonce        [12]byte
	Ciphertext   []byte // includes the 16-byte Poly1305 tag
}

// Seal encrypts plaintext under signalingKey, binding the ciphertext to
// handshakeID. AAD is empty at this layer; binding comes from the
// handshake id embedded in the envelope. A fresh CSPRNG nonce is drawn
// for every call.
func Seal(signalingKey [32]byte, handshakeID [16]byte, plaintext []byte) (Envelope, error) {
	aead, err := chacha20poly1305.New(signalingKey[:])
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrEncrypt, err)
	}

	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return Envelope{}, fmt.Errorf("%w: nonce: %v", ErrEncrypt, err)
	}

	ct := aead.Seal(nil, nonce[:], plaintext, nil)
	return Envelope{
		Version:     wireVersion,
		HandshakeID: handshakeID,
		Nonce:       nonce,
		Ciphertext:  ct,
	}, nil
}

// Open decrypts an Envelope under signalingKey. Returns ErrInvalidEnvelope
// on a version mismatch and ErrDecrypt on any AEAD authentication failure.
func Open(signalingKey [32]byte, env Envelope) ([]byte, error) {
	if env.Version != wireVersion {
		return nil, ErrInvalidEnvelope
	}
	aead, err := chacha20poly1305.New(signalingKey[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	pt, err := aead.Open(nil, env.Nonce[:], env.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return pt, nil
}

// EncodeCompact renders an Envelope as "{version}:{hs_b64}:{nonce_b64}:{ct_b64}".
func EncodeCompact(env Envelope) string {
	return fmt.Sprintf("%d:%s:%s:%s",
		env.Version,
		base64.StdEncoding.EncodeToString(env.HandshakeID[:]),
		base64.StdEncoding.EncodeToString(env.Nonce[:]),
		base64.StdEncoding.EncodeToString(env.Ciphertext),
	)
}

// DecodeCompact parses the compact ASCII wire form.
func DecodeCompact(s string) (Envelope, error) {
	parts := strings.SplitN(s, ":", 4)
	if len(parts) != 4 {
		return Envelope{}, ErrInvalidEnvelope
	}

	var version uint8
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
		return Envelope{}, ErrInvalidEnvelope
	}

	hsBytes, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(hsBytes) != 16 {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBase64, err)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil || len(nonceBytes) != 12 {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBase64, err)
	}
	ct, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBase64, err)
	}

	env := Envelope{Version: version, Ciphertext: ct}
	copy(env.HandshakeID[:], hsBytes)
	copy(env.Nonce[:], nonceBytes)
	return env, nil
}

// jsonEnvelope mirrors Envelope with the four fields the spec names,
// base64-encoded for JSON transport.
type jsonEnvelope struct {
	Version     uint8  `json:"version"`
	HandshakeID string `json:"handshake_id"`
	Nonce       string `json:"nonce"`
	Ciphertext  string `json:"ciphertext"`
}

// EncodeJSON renders an Envelope as the JSON wire form.
func EncodeJSON(env Envelope) ([]byte, error) {
	j := jsonEnvelope{
		Version:     env.Version,
		HandshakeID: base64.StdEncoding.EncodeToString(env.HandshakeID[:]),
		Nonce:       base64.StdEncoding.EncodeToString(env.Nonce[:]),
		Ciphertext:  base64.StdEncoding.EncodeToString(env.Ciphertext),
	}
	return json.Marshal(j)
}

// DecodeJSON parses the JSON wire form.
func DecodeJSON(data []byte) (Envelope, error) {
	var j jsonEnvelope
	if err := json.Unmarshal(data, &j); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	hsBytes, err := base64.StdEncoding.DecodeString(j.HandshakeID)
	if err != nil || len(hsBytes) != 16 {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBase64, err)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(j.Nonce)
	if err != nil || len(nonceBytes) != 12 {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBase64, err)
	}
	ct, err := base64.StdEncoding.DecodeString(j.Ciphertext)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrBase64, err)
	}

	env := Envelope{Version: j.Version, Ciphertext: ct}
	copy(env.HandshakeID[:], hsBytes)
	copy(env.Nonce[:], nonceBytes)
	return env, nil
}
