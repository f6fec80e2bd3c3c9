package authflow

import (
	"net/url"
	"strings"
	"testing"
	"time"
)

const (
	rfcSecretSHA1   = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQ"
	rfcSecretSHA256 = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZA"
	rfcSecretSHA512 = "GEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZDGNBVGY3TQOJQGEZDGNA"
)

func rfcEngine(algorithm string) *totpEngine {
	return newTOTPEngine(TOTPConfig{
		Issuer:     "authflow",
		Digits:     8,
		Period:     30,
		Algorithm:  algorithm,
		Skew:       0,
		SecretSize: 20,
	})
}

func TestTOTPVerifyRFCVectors(t *testing.T) {
	tests := []struct {
		algorithm string
		secret    string
		ts        int64
		code      string
	}{
		{"SHA1", rfcSecretSHA1, 59, "94287082"},
		{"SHA1", rfcSecretSHA1, 1111111109, "07081804"},
		{"SHA1", rfcSecretSHA1, 1234567890, "89005924"},
		{"SHA1", rfcSecretSHA1, 20000000000, "65353130"},
		{"SHA256", rfcSecretSHA256, 59, "46119246"},
		{"SHA256", rfcSecretSHA256, 1111111111, "67062674"},
		{"SHA256", rfcSecretSHA256, 2000000000, "90698825"},
		{"SHA512", rfcSecretSHA512, 59, "90693936"},
		{"SHA512", rfcSecretSHA512, 1234567890, "93441116"},
		{"SHA512", rfcSecretSHA512, 20000000000, "47863826"},
	}
	for _, tc := range tests {
		m := rfcEngine(tc.algorithm)
		step, ok, err := m.Verify(tc.secret, tc.code, time.Unix(tc.ts, 0))
		if err != nil || !ok {
			t.Fatalf("%s vector failed at t=%d, ok=%v err=%v", tc.algorithm, tc.ts, ok, err)
		}
		if step != tc.ts/30 {
			t.Fatalf("%s vector at t=%d: expected step %d, got %d", tc.algorithm, tc.ts, tc.ts/30, step)
		}
	}
}

func TestTOTPSkewAcceptsAdjacentStep(t *testing.T) {
	m := newTOTPEngine(TOTPConfig{Issuer: "authflow", Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1, SecretSize: 20})
	now := time.Unix(1234567890, 0)

	prev, err := m.codeAt(rfcSecretSHA1, now.Add(-30*time.Second))
	if err != nil {
		t.Fatalf("codeAt failed: %v", err)
	}
	step, ok, err := m.Verify(rfcSecretSHA1, prev, now)
	if err != nil || !ok {
		t.Fatalf("expected previous-step code accepted, ok=%v err=%v", ok, err)
	}
	if step != now.Unix()/30-1 {
		t.Fatalf("expected previous step counter, got %d", step)
	}

	old, _ := m.codeAt(rfcSecretSHA1, now.Add(-90*time.Second))
	if _, ok, _ := m.Verify(rfcSecretSHA1, old, now); ok {
		t.Fatal("expected code three steps old to be rejected")
	}
}

func TestTOTPMalformedCodesRejected(t *testing.T) {
	m := newTOTPEngine(TOTPConfig{Issuer: "authflow", Digits: 6, Period: 30, Algorithm: "SHA1", Skew: 1, SecretSize: 20})
	for _, code := range []string{"", "12345", "1234567", "12a456", "      "} {
		_, ok, err := m.Verify(rfcSecretSHA1, code, time.Now())
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", code, err)
		}
		if ok {
			t.Fatalf("expected %q to be rejected", code)
		}
	}
}

func TestTOTPEnrollProducesProvisioningURI(t *testing.T) {
	m := newTOTPEngine(DefaultConfig().TOTP)
	setup, err := m.Enroll("a@x.com")
	if err != nil {
		t.Fatalf("Enroll failed: %v", err)
	}
	if len(setup.Secret) != 32 {
		t.Fatalf("expected 32-char base32 secret for 20 bytes, got %d", len(setup.Secret))
	}

	u, err := url.Parse(setup.URI)
	if err != nil {
		t.Fatalf("parse uri: %v", err)
	}
	if u.Scheme != "otpauth" || u.Host != "totp" {
		t.Fatalf("unexpected uri %q", setup.URI)
	}
	if !strings.Contains(u.Path, "a@x.com") {
		t.Fatalf("expected account label in %q", u.Path)
	}
	q := u.Query()
	if q.Get("secret") != setup.Secret || q.Get("issuer") != "authflow" {
		t.Fatalf("unexpected query %v", q)
	}

	code, err := m.codeAt(setup.Secret, time.Now())
	if err != nil {
		t.Fatalf("codeAt: %v", err)
	}
	if _, ok, err := m.Verify(setup.Secret, code, time.Now()); err != nil || !ok {
		t.Fatalf("expected freshly enrolled secret to verify, ok=%v err=%v", ok, err)
	}
}

func TestNilTOTPEngine(t *testing.T) {
	var m *totpEngine
	if _, err := m.Enroll("x"); err == nil {
		t.Fatal("expected error from nil engine")
	}
}
