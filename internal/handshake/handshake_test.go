package handshake

import (
	"io"
	"testing"
)

// pipeConn glues two io.Pipe pairs into one io.ReadWriter per side.
type pipeConn struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p pipeConn) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p pipeConn) Write(b []byte) (int, error) { return p.w.Write(b) }

func newPipePair() (a, b pipeConn) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return pipeConn{r: ar, w: aw}, pipeConn{r: br, w: bw}
}

func TestRunProducesMatchingVerificationCode(t *testing.T) {
	psk := make([]byte, 32)
	for i := range psk {
		psk[i] = byte(i + 1)
	}
	hostConn, viewerConn := newPipePair()

	prologue := Prologue([16]byte{1, 2, 3}, "host-peer", "viewer-peer")

	type out struct {
		res Result
		err error
	}
	hostCh := make(chan out, 1)
	viewerCh := make(chan out, 1)

	go func() {
		res, err := Run(hostConn, true, psk, prologue, "host-peer", "viewer-peer")
		hostCh <- out{res, err}
	}()
	go func() {
		res, err := Run(viewerConn, false, psk, prologue, "viewer-peer", "host-peer")
		viewerCh <- out{res, err}
	}()

	hostOut := <-hostCh
	viewerOut := <-viewerCh

	if hostOut.err != nil {
		t.Fatalf("host Run: %v", hostOut.err)
	}
	if viewerOut.err != nil {
		t.Fatalf("viewer Run: %v", viewerOut.err)
	}

	if hostOut.res.Verify != viewerOut.res.Verify {
		t.Fatalf("verification codes differ: host=%s viewer=%s", hostOut.res.Verify, viewerOut.res.Verify)
	}
	if len(hostOut.res.Verify) != 6 {
		t.Fatalf("verify code length = %d, want 6", len(hostOut.res.Verify))
	}

	if hostOut.res.KeyAtoB != viewerOut.res.KeyAtoB {
		t.Fatal("host's k_AtoB does not match viewer's k_AtoB")
	}
	if hostOut.res.KeyBtoA != viewerOut.res.KeyBtoA {
		t.Fatal("host's k_BtoA does not match viewer's k_BtoA")
	}
	if hostOut.res.KeyAtoB == hostOut.res.KeyBtoA {
		t.Fatal("directional keys must differ")
	}
}

func TestRunFailsOnPSKMismatch(t *testing.T) {
	pskA := make([]byte, 32)
	pskB := make([]byte, 32)
	for i := range pskB {
		pskB[i] = byte(255 - i)
	}
	hostConn, viewerConn := newPipePair()
	prologue := Prologue([16]byte{9}, "host-peer", "viewer-peer")

	type out struct{ err error }
	hostCh := make(chan out, 1)
	viewerCh := make(chan out, 1)

	go func() {
		_, err := Run(hostConn, true, pskA, prologue, "host-peer", "viewer-peer")
		hostCh <- out{err}
	}()
	go func() {
		_, err := Run(viewerConn, false, pskB, prologue, "viewer-peer", "host-peer")
		viewerCh <- out{err}
	}()

	h := <-hostCh
	v := <-viewerCh
	if h.err == nil && v.err == nil {
		t.Fatal("expected at least one side to fail on PSK mismatch")
	}
}

func TestDeriveApplicationKeysDeterministic(t *testing.T) {
	psk := make([]byte, 32)
	h := make([]byte, 32)
	for i := range h {
		h[i] = byte(i)
	}
	r1, err := DeriveApplicationKeys(psk, h, "a", "b")
	if err != nil {
		t.Fatalf("DeriveApplicationKeys: %v", err)
	}
	r2, err := DeriveApplicationKeys(psk, h, "a", "b")
	if err != nil {
		t.Fatalf("DeriveApplicationKeys: %v", err)
	}
	if r1.KeyAtoB != r2.KeyAtoB || r1.Verify != r2.Verify {
		t.Fatal("derivation is not deterministic for identical inputs")
	}
}
