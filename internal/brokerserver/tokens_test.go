package brokerserver

import (
	"testing"
	"time"
)

func TestIssueAndValidateSessionToken(t *testing.T) {
	srv, _ := testServer(t)
	tok, err := srv.issueSessionToken("sess-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issueSessionToken: %v", err)
	}
	if err := srv.validateSessionToken(tok, "sess-1"); err != nil {
		t.Fatalf("validateSessionToken: %v", err)
	}
}

func TestValidateSessionTokenRejectsWrongSession(t *testing.T) {
	srv, _ := testServer(t)
	tok, err := srv.issueSessionToken("sess-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issueSessionToken: %v", err)
	}
	if err := srv.validateSessionToken(tok, "sess-2"); err == nil {
		t.Fatal("expected validation to fail for mismatched session id")
	}
}

func TestValidateSessionTokenRejectsExpired(t *testing.T) {
	srv, _ := testServer(t)
	tok, err := srv.issueSessionToken("sess-1", time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("issueSessionToken: %v", err)
	}
	if err := srv.validateSessionToken(tok, "sess-1"); err == nil {
		t.Fatal("expected validation to fail for an expired token")
	}
}

func TestValidateSessionTokenRejectsForgedToken(t *testing.T) {
	srvA, _ := testServer(t)
	srvB, _ := testServer(t)
	tok, err := srvA.issueSessionToken("sess-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("issueSessionToken: %v", err)
	}
	if err := srvB.validateSessionToken(tok, "sess-1"); err == nil {
		t.Fatal("expected a token signed by a different broker to fail validation")
	}
}
