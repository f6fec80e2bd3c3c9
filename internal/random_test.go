package internal

import (
	"strings"
	"testing"
)

func TestNewTokenSecretHashesToken(t *testing.T) {
	token, digest, err := NewTokenSecret()
	if err != nil {
		t.Fatalf("NewTokenSecret: %v", err)
	}
	if len(token) != 43 {
		t.Fatalf("expected 43-char base64url token, got %d", len(token))
	}
	if HashToken(token) != digest {
		t.Fatal("digest does not match HashToken(token)")
	}

	other, _, err := NewTokenSecret()
	if err != nil {
		t.Fatalf("NewTokenSecret: %v", err)
	}
	if other == token {
		t.Fatal("expected distinct tokens")
	}
}

func TestBridgeTokenRoundTrip(t *testing.T) {
	bridge := EncodeBridgeToken("5f0c6f0e-1d1b-4a6e-9b8e-2f6a3d8d1c11", "secret-part")
	id, secret, err := DecodeBridgeToken(bridge)
	if err != nil {
		t.Fatalf("DecodeBridgeToken: %v", err)
	}
	if id != "5f0c6f0e-1d1b-4a6e-9b8e-2f6a3d8d1c11" || secret != "secret-part" {
		t.Fatalf("unexpected decode: %q %q", id, secret)
	}
}

func TestDecodeBridgeTokenRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "nodot", ".secret", "abc.", "!!!.secret"} {
		if _, _, err := DecodeBridgeToken(in); err == nil {
			t.Fatalf("expected %q to be rejected", in)
		}
	}
}

func TestNewBackupCodeShape(t *testing.T) {
	code, err := NewBackupCode(10)
	if err != nil {
		t.Fatalf("NewBackupCode: %v", err)
	}
	if len(code) != 11 || code[5] != '-' {
		t.Fatalf("unexpected code shape %q", code)
	}
	for _, r := range strings.ReplaceAll(code, "-", "") {
		if !strings.ContainsRune(BackupCodeAlphabet, r) {
			t.Fatalf("character %q outside alphabet", r)
		}
	}
	if _, err := NewBackupCode(4); err == nil {
		t.Fatal("expected short length to be rejected")
	}
}
