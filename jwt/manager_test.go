package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestCreateAndParseEd25519(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PrivateKey: priv, Issuer: "authflow", Audience: "api"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	now := time.Now()
	tok, err := m.CreateAccess("acct-1", "sess-1", "admin", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	claims, err := m.ParseAccess(tok, time.Now())
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.AccountID() != "acct-1" || claims.SessionID() != "sess-1" || claims.Role != "admin" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseAccessRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "acct",
		ID:        "s1",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token, time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseAccessRejectsExpired(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte(strings.Repeat("s", 32))})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	past := time.Now().Add(-2 * time.Hour)
	tok, err := m.CreateAccess("acct", "sess", "user", past, past.Add(time.Hour))
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(tok, time.Now()); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestParseAccessUsesSuppliedClock(t *testing.T) {
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte(strings.Repeat("s", 32))})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	issued := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	tok, err := m.CreateAccess("acct", "sess", "user", issued, issued.Add(time.Hour))
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := m.ParseAccess(tok, issued.Add(30*time.Minute)); err != nil {
		t.Fatalf("expected token valid at its own clock, got %v", err)
	}
	if _, err := m.ParseAccess(tok, issued.Add(2*time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry against supplied clock, got %v", err)
	}
}

func TestParseAccessIssuerAudienceMismatch(t *testing.T) {
	key := []byte(strings.Repeat("s", 32))
	issuer, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: key, Issuer: "other", Audience: "api"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	verifier, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: key, Issuer: "authflow", Audience: "api"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	now := time.Now()
	tok, _ := issuer.CreateAccess("acct", "sess", "user", now, now.Add(time.Hour))
	if _, err := verifier.ParseAccess(tok, time.Now()); err == nil {
		t.Fatal("expected issuer mismatch to be rejected")
	}
}

func TestParseAccessUnknownKidFails(t *testing.T) {
	key := []byte(strings.Repeat("s", 32))
	a, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: key, KeyID: "k1"})
	b, _ := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: key, KeyID: "k2"})

	now := time.Now()
	tok, err := a.CreateAccess("acct", "sess", "user", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create access: %v", err)
	}
	if _, err := b.ParseAccess(tok, time.Now()); err == nil {
		t.Fatal("expected unknown kid to be rejected")
	}
}

func TestNewManagerRejectsShortHMACKey(t *testing.T) {
	if _, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short hs256 key to be rejected")
	}
}

func TestVerifyOnlyManagerCannotSign(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.CreateAccess("a", "s", "user", time.Now(), time.Now().Add(time.Minute)); err == nil {
		t.Fatal("expected error without signing key")
	}
}

func FuzzParseAccess(f *testing.F) {
	key := []byte(strings.Repeat("f", 32))
	m, err := NewManager(Config{SigningMethod: MethodHS256, PrivateKey: key, Issuer: "fuzz"})
	if err != nil {
		f.Fatal(err)
	}
	now := time.Now()
	valid, err := m.CreateAccess("acct", "sess", "user", now, now.Add(time.Hour))
	if err != nil {
		f.Fatal(err)
	}

	f.Add(valid)
	f.Add("")
	f.Add("a.b.c")
	f.Add(valid + "x")

	f.Fuzz(func(t *testing.T, tok string) {
		claims, err := m.ParseAccess(tok, time.Now())
		if err == nil && (claims.Subject == "" || claims.ID == "") {
			t.Fatal("accepted token without subject or session id")
		}
	})
}
