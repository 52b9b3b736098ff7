package transport

import (
	"bytes"
	"testing"
)

func TestSealerRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	sender, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	receiver, err := NewSealer(key)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}

	plaintext := []byte("terminal output bytes")
	seq, ct, err := sender.SealNext(DataOrdered, plaintext)
	if err != nil {
		t.Fatalf("SealNext: %v", err)
	}
	pt, err := receiver.Open(DataOrdered, seq, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Fatalf("decrypted = %q, want %q", pt, plaintext)
	}
}

func TestSealerWrongLaneFailsOpen(t *testing.T) {
	var key [32]byte
	s, _ := NewSealer(key)
	r, _ := NewSealer(key)
	seq, ct, _ := s.SealNext(ControlOrdered, []byte("data"))
	if _, err := r.Open(DataOrdered, seq, ct); err == nil {
		t.Fatal("expected Open to fail when lane tag differs from the one sealed under")
	}
}

func TestSealerSequenceIncrementsMonotonically(t *testing.T) {
	var key [32]byte
	s, _ := NewSealer(key)
	seq1, _, _ := s.SealNext(DataOrdered, []byte("a"))
	seq2, _, _ := s.SealNext(DataOrdered, []byte("b"))
	if seq2 != seq1+1 {
		t.Fatalf("seq2 = %d, want %d", seq2, seq1+1)
	}
}

func TestIPCTransportSendRecv(t *testing.T) {
	a, b := NewIPCPair()
	defer a.Close()
	defer b.Close()

	ctx := t.Context()
	if err := a.Send(ctx, DataOrdered, PayloadBinary, []byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	lane, f, err := b.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if lane != DataOrdered || !bytes.Equal(f.Payload, []byte("hi")) {
		t.Fatalf("Recv got lane=%v payload=%q", lane, f.Payload)
	}
}

func TestIPCTransportBidirectional(t *testing.T) {
	a, b := NewIPCPair()
	defer a.Close()
	defer b.Close()
	ctx := t.Context()

	if err := a.Send(ctx, ControlOrdered, PayloadText, []byte("from-a")); err != nil {
		t.Fatalf("a.Send: %v", err)
	}
	if err := b.Send(ctx, ControlOrdered, PayloadText, []byte("from-b")); err != nil {
		t.Fatalf("b.Send: %v", err)
	}

	_, f, err := b.Recv(ctx)
	if err != nil || !bytes.Equal(f.Payload, []byte("from-a")) {
		t.Fatalf("b.Recv: %v %q", err, f.Payload)
	}
	_, f, err = a.Recv(ctx)
	if err != nil || !bytes.Equal(f.Payload, []byte("from-b")) {
		t.Fatalf("a.Recv: %v %q", err, f.Payload)
	}
}
