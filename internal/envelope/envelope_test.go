package envelope

import (
	"bytes"
	"testing"

	"github.com/beachcabana/beach/internal/keys"
)

func subkeys(t *testing.T, sessionID, passcode string, hs [16]byte) [32]byte {
	t.Helper()
	m, err := keys.Derive(sessionID, passcode)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	sig, _, err := m.Subkeys(hs)
	if err != nil {
		t.Fatalf("subkeys: %v", err)
	}
	return sig
}

// TestSealOpenRoundTrip covers R1: open(seal(m)) == m.
func TestSealOpenRoundTrip(t *testing.T) {
	hs := [16]byte{9, 9, 9}
	key := subkeys(t, "S1", "hunter2", hs)

	msg := []byte(`{"type":"webrtc.offer","sdp":"v=0..."}`)
	env, err := Seal(key, hs, msg)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	got, err := Open(key, env)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("got %q, want %q", got, msg)
	}
}

// TestOpenWithWrongKeyFails covers P3: opening with any other key
// combination fails with ErrDecrypt.
func TestOpenWithWrongKeyFails(t *testing.T) {
	hs := [16]byte{1}
	rightKey := subkeys(t, "S1", "alpha", hs)
	wrongKey := subkeys(t, "S1", "alfa", hs)

	env, err := Seal(rightKey, hs, []byte("secret"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(wrongKey, env); err != ErrDecrypt {
		t.Fatalf("err = %v, want ErrDecrypt", err)
	}
}

func TestNonceIsFreshPerSeal(t *testing.T) {
	hs := [16]byte{1}
	key := subkeys(t, "S1", "hunter2", hs)

	e1, _ := Seal(key, hs, []byte("a"))
	e2, _ := Seal(key, hs, []byte("a"))
	if e1.Nonce == e2.Nonce {
		t.Fatalf("nonce reused across seal calls under the same key")
	}
}

// TestCompactAndJSONRoundTripInterchangeably covers R2.
func TestCompactAndJSONRoundTripInterchangeably(t *testing.T) {
	hs := [16]byte{7, 7}
	key := subkeys(t, "S1", "hunter2", hs)
	env, _ := Seal(key, hs, []byte("payload"))

	compact := EncodeCompact(env)
	decodedCompact, err := DecodeCompact(compact)
	if err != nil {
		t.Fatalf("decode compact: %v", err)
	}

	jsonBytes, err := EncodeJSON(env)
	if err != nil {
		t.Fatalf("encode json: %v", err)
	}
	decodedJSON, err := DecodeJSON(jsonBytes)
	if err != nil {
		t.Fatalf("decode json: %v", err)
	}

	if decodedCompact.Version != decodedJSON.Version ||
		decodedCompact.HandshakeID != decodedJSON.HandshakeID ||
		decodedCompact.Nonce != decodedJSON.Nonce ||
		!bytes.Equal(decodedCompact.Ciphertext, decodedJSON.Ciphertext) {
		t.Fatalf("compact and json decodings disagree: %+v vs %+v", decodedCompact, decodedJSON)
	}

	// Both decoded forms still open correctly.
	if _, err := Open(key, decodedCompact); err != nil {
		t.Fatalf("open decoded compact: %v", err)
	}
	if _, err := Open(key, decodedJSON); err != nil {
		t.Fatalf("open decoded json: %v", err)
	}
}

func TestOpenRejectsVersionMismatch(t *testing.T) {
	hs := [16]byte{1}
	key := subkeys(t, "S1", "hunter2", hs)
	env, _ := Seal(key, hs, []byte("a"))
	env.Version = 99

	if _, err := Open(key, env); err != ErrInvalidEnvelope {
		t.Fatalf("err = %v, want ErrInvalidEnvelope", err)
	}
}

func TestDecodeCompactRejectsMalformed(t *testing.T) {
	if _, err := DecodeCompact("not-an-envelope"); err == nil {
		t.Fatalf("expected error decoding malformed compact envelope")
	}
}
