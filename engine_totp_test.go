package authflow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/internal"
)

func TestEnrollVerifyIssuesTenBackupCodes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)

	setup, err := h.engine.EnrollSecondFactor(ctx, accountID)
	if err != nil {
		t.Fatalf("EnrollSecondFactor: %v", err)
	}
	if setup.Secret == "" || !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected setup %+v", setup)
	}
	if !strings.Contains(setup.URI, "issuer=authflow") {
		t.Fatalf("URI missing issuer: %s", setup.URI)
	}

	status, err := h.engine.SecondFactorStatus(ctx, accountID)
	if err != nil {
		t.Fatalf("SecondFactorStatus: %v", err)
	}
	if status.Enrolled || !status.PendingVerification {
		t.Fatalf("expected pending enrollment, got %+v", status)
	}

	// A pending enrollment does not gate login.
	res, err := h.engine.CredentialCheck(ctx, testEmail, testPassword)
	if err != nil || res.NeedsSecondFactor {
		t.Fatalf("pending enrollment must not require a second factor: %+v %v", res, err)
	}

	codes, err := h.engine.VerifyEnrollment(ctx, accountID, h.code(t, setup.Secret))
	if err != nil {
		t.Fatalf("VerifyEnrollment: %v", err)
	}
	if len(codes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(codes))
	}
	seen := map[string]bool{}
	for _, c := range codes {
		if seen[c] {
			t.Fatalf("duplicate backup code %q", c)
		}
		seen[c] = true
	}

	status, err = h.engine.SecondFactorStatus(ctx, accountID)
	if err != nil {
		t.Fatalf("SecondFactorStatus: %v", err)
	}
	if !status.Enrolled || status.BackupCodesRemaining != 10 {
		t.Fatalf("expected enrolled with 10 codes, got %+v", status)
	}

	if _, err := h.engine.EnrollSecondFactor(ctx, accountID); !errors.Is(err, ErrSecondFactorAlreadyEnabled) {
		t.Fatalf("expected ErrSecondFactorAlreadyEnabled, got %v", err)
	}
}

func TestVerifyEnrollmentRejectsWrongCode(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)

	if _, err := h.engine.VerifyEnrollment(ctx, accountID, "123456"); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled before enrollment, got %v", err)
	}

	setup, err := h.engine.EnrollSecondFactor(ctx, accountID)
	if err != nil {
		t.Fatalf("EnrollSecondFactor: %v", err)
	}
	wrong := wrongCode(h.code(t, setup.Secret))
	if _, err := h.engine.VerifyEnrollment(ctx, accountID, wrong); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
	if _, err := h.engine.VerifyEnrollment(ctx, accountID, "12ab56"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-numeric code, got %v", err)
	}
}

func TestLoginWithTOTPAndBridge(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	secret, _ := h.enroll(t, ctx, accountID)

	res, err := h.engine.CredentialCheck(ctx, testEmail, testPassword)
	if err != nil {
		t.Fatalf("CredentialCheck: %v", err)
	}
	if !res.NeedsSecondFactor || res.Session != nil || res.Challenge == "" {
		t.Fatalf("expected second factor step, got %+v", res)
	}

	code := h.code(t, secret)
	bridge, err := h.engine.SecondFactorVerify(ctx, res.Challenge, code, false)
	if err != nil {
		t.Fatalf("SecondFactorVerify: %v", err)
	}

	sess, err := h.engine.CompleteLogin(ctx, bridge)
	if err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
	if sess.AccountID != accountID || sess.AccessToken == "" {
		t.Fatalf("unexpected session %+v", sess)
	}

	if _, err := h.engine.CompleteLogin(ctx, bridge); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected bridge to work once, got %v", err)
	}
	if _, err := h.engine.SecondFactorVerify(ctx, res.Challenge, h.code(t, secret), false); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected consumed challenge to fail, got %v", err)
	}
	if _, err := h.engine.SecondFactorVerify(ctx, h.challenge(t, ctx), code, false); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected replayed code to fail, got %v", err)
	}
	if h.engine.metrics.Value(MetricTOTPReplayRejected) != 1 {
		t.Fatalf("expected one replay rejection, got %d", h.engine.metrics.Value(MetricTOTPReplayRejected))
	}
}

func TestSecondFactorVerifyRequiresPasswordStep(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	secret, codes := h.enroll(t, ctx, accountID)

	if res, err := h.engine.CredentialCheck(ctx, testEmail, "Wr0ng!Pass1234"); res != nil || !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected wrong password to yield no challenge, got %+v %v", res, err)
	}

	forged := internal.EncodeBridgeToken(accountID, "not-a-real-secret")
	attempts := []struct {
		challenge, code string
		isBackup        bool
	}{
		{accountID, h.code(t, secret), false},
		{forged, h.code(t, secret), false},
		{accountID, codes[0], true},
		{forged, codes[0], true},
	}
	for i, a := range attempts {
		bridge, err := h.engine.SecondFactorVerify(ctx, a.challenge, a.code, a.isBackup)
		if bridge != "" || !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: expected ErrAuthenticationFailed, got bridge=%q err=%v", i, bridge, err)
		}
	}

	status, err := h.engine.SecondFactorStatus(ctx, accountID)
	if err != nil {
		t.Fatalf("SecondFactorStatus: %v", err)
	}
	if status.BackupCodesRemaining != 10 {
		t.Fatalf("backup codes must not be spent without a password, got %d left", status.BackupCodesRemaining)
	}
	if h.engine.metrics.Value(MetricSessionCreated) != 0 {
		t.Fatal("no session may be issued without the password step")
	}

	// The code was never consumed, so the genuine flow still works.
	bridge, err := h.engine.SecondFactorVerify(ctx, h.challenge(t, ctx), h.code(t, secret), false)
	if err != nil {
		t.Fatalf("SecondFactorVerify: %v", err)
	}
	if _, err := h.engine.CompleteLogin(ctx, bridge); err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
}

func TestSecondFactorChallengeExpires(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	secret, _ := h.enroll(t, ctx, accountID)

	challenge := h.challenge(t, ctx)
	h.clock.Advance(h.engine.config.Tokens.ChallengeTTL + time.Second)

	if _, err := h.engine.SecondFactorVerify(ctx, challenge, h.code(t, secret), false); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected expired challenge to fail, got %v", err)
	}
}

func TestSecondFactorVerifyRateLimitBeatsCorrectCode(t *testing.T) {
	h := newHarness(t, nil)
	accountID := h.registerVerified(t, testEmail, testPassword)
	secret, _ := h.enroll(t, ctxFrom("198.51.100.40"), accountID)

	ctx := ctxFrom("198.51.100.41")
	challenge := h.challenge(t, ctx)
	wrong := wrongCode(h.code(t, secret))
	for i := 0; i < 5; i++ {
		if _, err := h.engine.SecondFactorVerify(ctx, challenge, wrong, false); !errors.Is(err, ErrAuthenticationFailed) {
			t.Fatalf("attempt %d: expected ErrAuthenticationFailed, got %v", i+1, err)
		}
	}

	if _, err := h.engine.SecondFactorVerify(ctx, challenge, h.code(t, secret), false); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited with correct code, got %v", err)
	}
	if _, ok := findEvent(h.drainAudit(), AuditLoginFailure, reasonRateLimited); !ok {
		t.Fatal("expected rate_limited audit event")
	}
}

func TestBackupCodeRedeemsOnce(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	_, codes := h.enroll(t, ctx, accountID)

	bridge, err := h.engine.SecondFactorVerify(ctx, h.challenge(t, ctx), codes[0], true)
	if err != nil {
		t.Fatalf("backup code login: %v", err)
	}
	if _, err := h.engine.CompleteLogin(ctx, bridge); err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}

	challenge := h.challenge(t, ctx)
	if _, err := h.engine.SecondFactorVerify(ctx, challenge, codes[0], true); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected used backup code to fail, got %v", err)
	}
	if _, err := h.engine.SecondFactorVerify(ctx, challenge, "short", true); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected malformed backup code to fail, got %v", err)
	}

	status, err := h.engine.SecondFactorStatus(ctx, accountID)
	if err != nil {
		t.Fatalf("SecondFactorStatus: %v", err)
	}
	if status.BackupCodesRemaining != 9 {
		t.Fatalf("expected 9 codes remaining, got %d", status.BackupCodesRemaining)
	}
}

func TestDisableSecondFactorRemovesCodes(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	_, codes := h.enroll(t, ctx, accountID)
	other := ctxFrom("198.51.100.42")
	challenge := h.challenge(t, other)

	if err := h.engine.DisableSecondFactor(ctx, accountID, "Wr0ng!Pass1234"); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected wrong password to fail, got %v", err)
	}
	if err := h.engine.DisableSecondFactor(ctx, accountID, testPassword); err != nil {
		t.Fatalf("DisableSecondFactor: %v", err)
	}

	status, err := h.engine.SecondFactorStatus(ctx, accountID)
	if err != nil {
		t.Fatalf("SecondFactorStatus: %v", err)
	}
	if status.Enrolled || status.PendingVerification || status.BackupCodesRemaining != 0 {
		t.Fatalf("expected no enrollment, got %+v", status)
	}

	if _, err := h.engine.SecondFactorVerify(other, challenge, codes[1], true); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected old backup code to fail, got %v", err)
	}
	if _, ok := findEvent(h.drainAudit(), AuditLoginFailure, reasonInvalidToken); !ok {
		t.Fatal("expected the pending challenge to be revoked by disable")
	}
	if err := h.engine.DisableSecondFactor(ctx, accountID, testPassword); !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}

	res, err := h.engine.CredentialCheck(ctx, testEmail, testPassword)
	if err != nil || res.NeedsSecondFactor {
		t.Fatalf("expected direct session after disable: %+v %v", res, err)
	}
}

func TestRegenerateBackupCodesInvalidatesOldBatch(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	secret, old := h.enroll(t, ctx, accountID)

	fresh, err := h.engine.RegenerateBackupCodes(ctx, accountID, h.code(t, secret))
	if err != nil {
		t.Fatalf("RegenerateBackupCodes: %v", err)
	}
	if len(fresh) != 10 {
		t.Fatalf("expected 10 codes, got %d", len(fresh))
	}

	challenge := h.challenge(t, ctx)
	if _, err := h.engine.SecondFactorVerify(ctx, challenge, old[0], true); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected old batch to be void, got %v", err)
	}
	if _, err := h.engine.SecondFactorVerify(ctx, challenge, fresh[0], true); err != nil {
		t.Fatalf("expected new code to work, got %v", err)
	}

	// Same step again is a replay.
	if _, err := h.engine.RegenerateBackupCodes(ctx, accountID, h.code(t, secret)); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected replayed code to fail, got %v", err)
	}
}

func TestSecondFactorVerifyWithoutEnrollmentFails(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	secret, _ := h.enroll(t, ctx, accountID)
	challenge := h.challenge(t, ctx)

	if err := h.store.DeleteEnrollment(context.Background(), accountID); err != nil {
		t.Fatalf("DeleteEnrollment: %v", err)
	}
	h.drainAudit()

	if _, err := h.engine.SecondFactorVerify(ctx, challenge, h.code(t, secret), false); !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
	if _, ok := findEvent(h.drainAudit(), AuditLoginFailure, reasonNotEnrolled); !ok {
		t.Fatal("expected not_enrolled audit reason")
	}
}

func TestTOTPCodeAcceptedWithinSkew(t *testing.T) {
	h := newHarness(t, nil)
	ctx := testCtx()
	accountID := h.registerVerified(t, testEmail, testPassword)
	secret, _ := h.enroll(t, ctx, accountID)

	challenge := h.challenge(t, ctx)
	code := h.code(t, secret)
	h.clock.Advance(30 * time.Second)

	if _, err := h.engine.SecondFactorVerify(ctx, challenge, code, false); err != nil {
		t.Fatalf("code from previous step should pass with skew 1: %v", err)
	}
}

func TestStatusForUnknownAccount(t *testing.T) {
	h := newHarness(t, nil)
	status, err := h.engine.SecondFactorStatus(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("SecondFactorStatus: %v", err)
	}
	if status.Enrolled {
		t.Fatal("unknown account cannot be enrolled")
	}
}

// wrongCode returns a well-formed code that differs from code.
func wrongCode(code string) string {
	b := []byte(code)
	for i := range b {
		b[i] = '0' + (b[i]-'0'+5)%10
	}
	return string(b)
}
