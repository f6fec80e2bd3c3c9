package authflow

import (
	"context"
	"errors"
	"testing"
)

func TestLoginWithoutSecondFactorIssuesSession(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)

	res, err := h.engine.CredentialCheck(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("CredentialCheck: %v", err)
	}
	if res.NeedsSecondFactor {
		t.Fatal("account without enrollment must not need a second factor")
	}
	if res.Session == nil || res.Session.AccessToken == "" {
		t.Fatalf("expected session, got %+v", res)
	}
	if res.AccountID != accountID || res.Session.AccountID != accountID {
		t.Fatalf("session for wrong account: %+v", res)
	}

	principal, err := h.engine.ValidateSession(ctx, res.Session.AccessToken)
	if err != nil {
		t.Fatalf("ValidateSession: %v", err)
	}
	if principal.SessionID != res.Session.ID || principal.Role != RoleUser {
		t.Fatalf("unexpected principal %+v", principal)
	}

	events := h.drainAudit()
	if _, ok := findEvent(events, AuditLoginSuccess, ""); !ok {
		t.Fatalf("expected login_success audit event, got %+v", events)
	}
}

func TestCredentialCheckNormalizesEmail(t *testing.T) {
	h := newHarness(t, nil)
	h.registerVerified(t, testEmail, testPassword)

	if _, err := h.engine.CredentialCheck(testCtx(), "  A@X.com ", testPassword); err != nil {
		t.Fatalf("CredentialCheck with mixed-case email: %v", err)
	}
}

func TestCredentialCheckFailuresAreIndistinguishable(t *testing.T) {
	h := newHarness(t, nil)
	h.registerVerified(t, testEmail, testPassword)
	h.registerVerified(t, "nocred@x.com", testPassword)

	nocred, err := h.store.AccountByEmail(context.Background(), "nocred@x.com")
	if err != nil {
		t.Fatalf("AccountByEmail: %v", err)
	}
	h.store.DeleteCredential(nocred.ID)
	h.drainAudit()

	cases := []struct {
		name   string
		ip     string
		email  string
		reason string
	}{
		{name: "unknown email", ip: "198.51.100.1", email: "ghost@x.com", reason: reasonUnknownAccount},
		{name: "wrong password", ip: "198.51.100.2", email: testEmail, reason: reasonWrongPassword},
		{name: "missing credential", ip: "198.51.100.3", email: "nocred@x.com", reason: "no_credential"},
	}

	var messages []string
	for _, tc := range cases {
		pw := testPassword
		if tc.reason == reasonWrongPassword {
			pw = "Wr0ng!Pass1234"
		}
		_, err := h.engine.CredentialCheck(ctxFrom(tc.ip), tc.email, pw)
		if !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("%s: expected ErrAuthenticationFailed, got %v", tc.name, err)
		}
		if KindOf(err) != KindAuthenticationFailed {
			t.Fatalf("%s: unexpected kind %s", tc.name, KindOf(err))
		}
		messages = append(messages, err.Error()+"|"+PublicMessage(err))

		events := h.drainAudit()
		if _, ok := findEvent(events, AuditLoginFailure, tc.reason); !ok {
			t.Fatalf("%s: expected audit reason %q, got %+v", tc.name, tc.reason, events)
		}
	}
	for _, m := range messages[1:] {
		if m != messages[0] {
			t.Fatalf("failure responses differ: %q vs %q", messages[0], m)
		}
	}

	// The account with a credential is untouched by the others' failures.
	if _, err := h.engine.CredentialCheck(testCtx(), testEmail, testPassword); err != nil {
		t.Fatalf("valid login after failures: %v", err)
	}
}

func TestCredentialCheckUnverifiedEmail(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	if err := h.engine.Register(ctx, testEmail, testPassword, "Ada"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := h.engine.CredentialCheck(ctx, testEmail, testPassword); !errors.Is(err, ErrUnverifiedEmail) {
		t.Fatalf("expected ErrUnverifiedEmail, got %v", err)
	}
	// Without the right password the unverified state is not revealed.
	if _, err := h.engine.CredentialCheck(ctx, testEmail, "Wr0ng!Pass1234"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestCredentialCheckRateLimitDeniesValidInput(t *testing.T) {
	h := newHarness(t, nil)
	h.registerVerified(t, testEmail, testPassword)
	ctx := ctxFrom("198.51.100.20")

	for i := 0; i < 5; i++ {
		if _, err := h.engine.CredentialCheck(ctx, testEmail, "Wr0ng!Pass1234"); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: expected ErrAuthenticationFailed, got %v", i+1, err)
		}
	}
	if _, err := h.engine.CredentialCheck(ctx, testEmail, testPassword); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on sixth attempt, got %v", err)
	}
	// The email key is exhausted too, so another origin is also denied.
	if _, err := h.engine.CredentialCheck(ctxFrom("198.51.100.21"), testEmail, testPassword); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited from second origin, got %v", err)
	}
	if h.engine.metrics.Value(MetricRateLimitHit) == 0 {
		t.Fatal("expected rate limit metric")
	}
}

func TestCredentialCheckRejectsMalformedInput(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()

	if _, err := h.engine.CredentialCheck(ctx, "not-an-email", testPassword); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad email, got %v", err)
	}
	if _, err := h.engine.CredentialCheck(ctx, testEmail, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty password, got %v", err)
	}
}

func TestCompleteLoginRejectsGarbageBridge(t *testing.T) {
	h := newHarness(t, nil)

	if _, err := h.engine.CompleteLogin(testCtx(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	if _, err := h.engine.CompleteLogin(testCtx(), ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestNilEngineIsNotReady(t *testing.T) {
	var e *Engine
	if _, err := e.CredentialCheck(context.Background(), testEmail, testPassword); !errors.Is(err, ErrEngineNotReady) {
		t.Fatalf("expected ErrEngineNotReady, got %v", err)
	}
	if KindOf(ErrEngineNotReady) != KindInternalFailure {
		t.Fatal("ErrEngineNotReady must be an internal failure")
	}
}
