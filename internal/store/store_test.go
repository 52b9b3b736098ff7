package store

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateSession("sess-1", time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, ok, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !ok {
		t.Fatal("GetSession: ok = false, want true")
	}
	if got.SessionID != "sess-1" {
		t.Fatalf("SessionID = %q, want sess-1", got.SessionID)
	}
}

func TestGetSessionMissing(t *testing.T) {
	s := openTestStore(t)
	_, ok, err := s.GetSession("nope")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if ok {
		t.Fatal("GetSession: ok = true for missing session")
	}
}

func TestCreateSessionRefreshesExpiry(t *testing.T) {
	s := openTestStore(t)
	first, err := s.CreateSession("sess-1", time.Minute)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	second, err := s.CreateSession("sess-1", 2*time.Hour)
	if err != nil {
		t.Fatalf("CreateSession (refresh): %v", err)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Fatalf("refreshed ExpiresAt %v not after original %v", second.ExpiresAt, first.ExpiresAt)
	}
}

func TestPutAndTakeEnvelopeOnce(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutEnvelope("sess-1", "hs-1", "offer", "peer-b", "sealed-blob", time.Minute); err != nil {
		t.Fatalf("PutEnvelope: %v", err)
	}

	sealed, ok, err := s.TakeEnvelope("sess-1", "hs-1", "offer")
	if err != nil {
		t.Fatalf("TakeEnvelope: %v", err)
	}
	if !ok {
		t.Fatal("TakeEnvelope: ok = false, want true")
	}
	if sealed != "sealed-blob" {
		t.Fatalf("sealed = %q, want sealed-blob", sealed)
	}

	_, ok, err = s.TakeEnvelope("sess-1", "hs-1", "offer")
	if err != nil {
		t.Fatalf("TakeEnvelope (second): %v", err)
	}
	if ok {
		t.Fatal("TakeEnvelope: envelope still present after first fetch")
	}
}

func TestPutEnvelopeOverwritesPrior(t *testing.T) {
	s := openTestStore(t)
	if err := s.PutEnvelope("sess-1", "hs-1", "offer", "peer-b", "first", time.Minute); err != nil {
		t.Fatalf("PutEnvelope: %v", err)
	}
	if err := s.PutEnvelope("sess-1", "hs-1", "offer", "peer-c", "second", time.Minute); err != nil {
		t.Fatalf("PutEnvelope (overwrite): %v", err)
	}
	sealed, ok, err := s.TakeEnvelope("sess-1", "hs-1", "offer")
	if err != nil {
		t.Fatalf("TakeEnvelope: %v", err)
	}
	if !ok || sealed != "second" {
		t.Fatalf("sealed = %q, ok = %v, want second/true", sealed, ok)
	}
}

func TestSweepExpired(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.CreateSession("stale", -time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := s.CreateSession("fresh", time.Hour); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := s.PutEnvelope("stale", "hs-1", "offer", "peer-b", "blob", -time.Minute); err != nil {
		t.Fatalf("PutEnvelope: %v", err)
	}

	n, err := s.SweepExpired()
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("SweepExpired removed %d sessions, want 1", n)
	}

	if _, ok, _ := s.GetSession("stale"); ok {
		t.Fatal("stale session still present after sweep")
	}
	if _, ok, _ := s.GetSession("fresh"); !ok {
		t.Fatal("fresh session removed by sweep")
	}
	if _, ok, _ := s.TakeEnvelope("stale", "hs-1", "offer"); ok {
		t.Fatal("stale envelope still present after sweep")
	}
}
