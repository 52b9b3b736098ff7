package transport

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Type: PayloadBinary, Seq: 42, Payload: []byte("hello")}
	data := Encode(f)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Type != f.Type || got.Seq != f.Seq || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, f)
	}
}

func TestDecodeRejectsShortHeader(t *testing.T) {
	_, err := Decode([]byte{0, 1, 2})
	if err == nil {
		t.Fatal("expected error for short header")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	f := Frame{Type: PayloadText, Seq: 1, Payload: []byte("abc")}
	data := Encode(f)
	data = append(data, 0xFF) // trailing garbage byte breaks the length invariant
	_, err := Decode(data)
	if err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestWriteReadFrameStream(t *testing.T) {
	var buf bytes.Buffer
	frames := []Frame{
		{Type: PayloadText, Seq: 1, Payload: []byte("one")},
		{Type: PayloadBinary, Seq: 2, Payload: []byte("two")},
	}
	for _, f := range frames {
		if err := WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for _, want := range frames {
		got, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if got.Seq != want.Seq || !bytes.Equal(got.Payload, want.Payload) {
			t.Fatalf("stream frame mismatch: got %+v, want %+v", got, want)
		}
	}
}
