package keys

import "testing"

func TestDeriveRejectsEmptyPasscode(t *testing.T) {
	if _, err := Derive("S1", ""); err != ErrEmptyPasscode {
		t.Fatalf("err = %v, want ErrEmptyPasscode", err)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	a, err := Derive("S1", "hunter2")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, err := Derive("S1", "hunter2")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if a.Stretched != b.Stretched {
		t.Fatalf("same (session, passcode) produced different stretched keys")
	}
}

func TestDeriveDiffersByPasscode(t *testing.T) {
	a, _ := Derive("S1", "alpha")
	b, _ := Derive("S1", "alfa")
	if a.Stretched == b.Stretched {
		t.Fatalf("different passcodes produced the same stretched key")
	}
	if a.Fingerprint == b.Fingerprint {
		t.Fatalf("different passcodes produced the same fingerprint")
	}
}

func TestDeriveDiffersBySessionID(t *testing.T) {
	a, _ := Derive("S1", "hunter2")
	b, _ := Derive("S2", "hunter2")
	if a.Stretched == b.Stretched {
		t.Fatalf("different session ids produced the same stretched key")
	}
}

func TestSubkeysDeterministicPerHandshake(t *testing.T) {
	m, _ := Derive("S1", "hunter2")
	hs := [16]byte{1, 2, 3}

	sig1, psk1, err := m.Subkeys(hs)
	if err != nil {
		t.Fatalf("subkeys: %v", err)
	}
	sig2, psk2, err := m.Subkeys(hs)
	if err != nil {
		t.Fatalf("subkeys: %v", err)
	}
	if sig1 != sig2 || psk1 != psk2 {
		t.Fatalf("same handshake id produced different subkeys")
	}
	if sig1 == psk1 {
		t.Fatalf("signaling key and noise psk must differ")
	}
}

func TestSubkeysDifferByHandshakeID(t *testing.T) {
	m, _ := Derive("S1", "hunter2")
	sig1, _, _ := m.Subkeys([16]byte{1})
	sig2, _, _ := m.Subkeys([16]byte{2})
	if sig1 == sig2 {
		t.Fatalf("different handshake ids produced the same signaling key")
	}
}
