package authflow

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/internal/flows"
	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/password"
	"github.com/MrEthical07/authflow/store"
	"github.com/google/uuid"
)

// CredentialCheck verifies email and password.
//
// Unknown email, missing credential and wrong password all return
// ErrAuthenticationFailed. An unverified address returns ErrUnverifiedEmail,
// but only after the password has been proven. When a verified second factor
// exists the result asks for it; otherwise it carries the new session.
func (e *Engine) CredentialCheck(ctx context.Context, email, pw string) (*LoginResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	email, err := normalizeEmail(email)
	if err == nil {
		err = loginPasswordShape(e.config.Password, pw)
	}
	if err != nil {
		e.metricInc(MetricCredentialFailure)
		e.emitFailure(ctx, AuditLoginFailure, "", reasonInvalidInput)
		return nil, err
	}

	start := time.Now()
	out := flows.CredentialCheck(ctx, e.loginDeps(), clientIPFromContext(ctx), email, pw)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricCredentialLatency, time.Since(start))
	}
	e.emitOutcome(ctx, out)

	switch out.State {
	case flows.StateSecondFactorPending:
		e.metricInc(MetricCredentialSuccess)
		e.metricInc(MetricSecondFactorRequired)
		return &LoginResult{NeedsSecondFactor: true, AccountID: out.AccountID(), Challenge: out.Challenge}, nil
	case flows.StateSessionIssued:
		e.metricInc(MetricCredentialSuccess)
		return &LoginResult{
			AccountID: out.AccountID(),
			Session:   publicSession(out.Session, out.Account.Role, out.AccessToken),
		}, nil
	}

	e.metricInc(MetricCredentialFailure)
	switch out.Reason {
	case flows.ReasonRateLimited:
		return nil, ErrRateLimited
	case flows.ReasonUnverifiedEmail:
		return nil, ErrUnverifiedEmail
	case flows.ReasonInternal:
		e.log.Error(ctx, "credential check failed", "error", out.Cause)
		return nil, internalError(out.Cause)
	default:
		return nil, ErrAuthenticationFailed
	}
}

// SecondFactorVerify checks a TOTP code, or a backup code when isBackup is
// set, against the challenge CredentialCheck returned. A wrong code leaves
// the challenge usable until it expires; an accepted one consumes it and
// yields an opaque bridge token for CompleteLogin. Every rejection is
// ErrAuthenticationFailed.
func (e *Engine) SecondFactorVerify(ctx context.Context, challenge, code string, isBackup bool) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}

	if challenge == "" || code == "" {
		e.emitFailure(ctx, AuditLoginFailure, "", reasonInvalidInput)
		return "", ErrMissingField
	}
	if !isBackup {
		normalized, err := normalizeTOTPCode(code, e.config.TOTP.Digits)
		if err != nil {
			e.emitFailure(ctx, AuditLoginFailure, "", reasonInvalidInput)
			return "", err
		}
		code = normalized
	}

	out := flows.SecondFactorVerify(ctx, e.loginDeps(), clientIPFromContext(ctx), challenge, code, isBackup)
	e.emitOutcome(ctx, out)

	if !out.Failed() {
		e.metricInc(MetricSecondFactorSuccess)
		if isBackup {
			e.metricInc(MetricBackupCodeUsed)
		}
		return out.Bridge, nil
	}

	e.metricInc(MetricSecondFactorFailure)
	switch out.Reason {
	case flows.ReasonRateLimited:
		return "", ErrRateLimited
	case flows.ReasonInternal:
		e.log.Error(ctx, "second factor verify failed", "account_id", out.AccountID(), "error", out.Cause)
		return "", internalError(out.Cause)
	case flows.ReasonCodeReplay:
		e.metricInc(MetricTOTPReplayRejected)
	case flows.ReasonInvalidBackupCode:
		e.metricInc(MetricBackupCodeFailed)
	}
	return "", ErrAuthenticationFailed
}

// CompleteLogin exchanges a bridge token from SecondFactorVerify for a
// session. A bridge token works once.
func (e *Engine) CompleteLogin(ctx context.Context, bridge string) (*Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if bridge == "" {
		e.emitFailure(ctx, AuditLoginFailure, "", reasonInvalidInput)
		return nil, ErrMissingField
	}

	out := flows.CompleteLogin(ctx, e.loginDeps(), clientIPFromContext(ctx), bridge)
	e.emitOutcome(ctx, out)

	if !out.Failed() {
		e.metricInc(MetricLoginCompleted)
		return publicSession(out.Session, out.Account.Role, out.AccessToken), nil
	}

	e.metricInc(MetricLoginBridgeRejected)
	switch out.Reason {
	case flows.ReasonRateLimited:
		return nil, ErrRateLimited
	case flows.ReasonInternal:
		e.log.Error(ctx, "complete login failed", "error", out.Cause)
		return nil, internalError(out.Cause)
	default:
		return nil, ErrInvalidToken
	}
}

func (e *Engine) loginDeps() flows.LoginDeps {
	limit := func(action limiters.Action, subject func(ip, id string) limiters.Subject) func(context.Context, string, string) error {
		return func(ctx context.Context, ip, id string) error {
			return e.guard.Check(ctx, action, subject(ip, id))
		}
	}
	succeeded := func(action limiters.Action, subject func(ip, id string) limiters.Subject) func(context.Context, string, string) {
		return func(ctx context.Context, ip, id string) {
			e.rateSucceeded(ctx, action, subject(ip, id))
		}
	}
	byEmail := func(ip, email string) limiters.Subject { return limiters.Subject{IP: ip, Email: email} }
	byAccount := func(ip, id string) limiters.Subject { return limiters.Subject{IP: ip, AccountID: id} }

	return flows.LoginDeps{
		Now: e.now,

		CheckCredentialRate:   limit(limiters.ActionCredential, byEmail),
		CredentialSucceeded:   succeeded(limiters.ActionCredential, byEmail),
		CheckSecondFactorRate: limit(limiters.ActionSecondFactor, byAccount),
		SecondFactorSucceeded: succeeded(limiters.ActionSecondFactor, byAccount),
		CheckTokenRedeemRate:  limit(limiters.ActionTokenRedeem, byAccount),
		TokenRedeemSucceeded:  succeeded(limiters.ActionTokenRedeem, byAccount),

		AccountByEmail: func(ctx context.Context, email string) (*store.Account, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.AccountByEmail(sctx, email)
		},
		AccountByID: func(ctx context.Context, id string) (*store.Account, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.AccountByID(sctx, id)
		},
		PasswordHash: func(ctx context.Context, id string) (string, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.PasswordHash(sctx, id)
		},
		Enrollment: func(ctx context.Context, id string) (*store.TOTPEnrollment, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.Enrollment(sctx, id)
		},

		VerifyPassword: e.verifyPassword,
		BurnPasswordCheck: func(ctx context.Context, pw string) {
			_, _ = e.verifyPassword(ctx, pw, e.dummyHash)
		},
		UpgradePassword: e.upgradePassword,

		VerifyTOTP: e.totp.Verify,
		RecordTOTPStep: func(ctx context.Context, id string, step int64, now time.Time) (bool, error) {
			sctx, cancel := e.storeCtx(ctx)
			defer cancel()
			return e.store.RecordStep(sctx, id, step, now, e.config.TOTP.EnforceReplayProtection)
		},
		RedeemBackupCode: e.redeemBackupCode,

		IssueChallenge: func(ctx context.Context, account *store.Account) (string, error) {
			secret, _, err := e.issueToken(ctx, challengeNamespace(account.Email), e.config.Tokens.ChallengeTTL)
			if err != nil {
				return "", err
			}
			return internal.EncodeBridgeToken(account.ID, secret), nil
		},
		CheckChallenge: func(ctx context.Context, account *store.Account, secret string) error {
			tctx, cancel := e.tokenCtx(ctx)
			defer cancel()
			_, err := e.tokens.Check(tctx, challengeNamespace(account.Email), internal.HashToken(secret), e.now())
			return err
		},
		ConsumeChallenge: func(ctx context.Context, account *store.Account, secret string) error {
			tctx, cancel := e.tokenCtx(ctx)
			defer cancel()
			_, err := e.tokens.Consume(tctx, challengeNamespace(account.Email), internal.HashToken(secret), e.now())
			return err
		},

		IssueBridge: func(ctx context.Context, account *store.Account) (string, error) {
			secret, _, err := e.issueToken(ctx, bridgeNamespace(account.Email), e.config.Tokens.LoginBridgeTTL)
			if err != nil {
				return "", err
			}
			return internal.EncodeBridgeToken(account.ID, secret), nil
		},
		DecodeBridge: internal.DecodeBridgeToken,
		ConsumeBridge: func(ctx context.Context, account *store.Account, secret string) error {
			tctx, cancel := e.tokenCtx(ctx)
			defer cancel()
			_, err := e.tokens.Consume(tctx, bridgeNamespace(account.Email), internal.HashToken(secret), e.now())
			return err
		},

		IssueSession: e.issueSession,
	}
}

func (e *Engine) redeemBackupCode(ctx context.Context, accountID, code string, now time.Time) (bool, error) {
	if !backupCodeWellFormed(code, e.config.BackupCodes.Length) {
		return false, nil
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.store.RedeemBackupCode(sctx, accountID, password.DigestBackupCode(accountID, code), now)
}

func (e *Engine) upgradePassword(ctx context.Context, accountID, pw, digest string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	stale, err := e.hasher.NeedsUpgrade(digest)
	if err != nil || !stale {
		return
	}
	fresh, err := e.hashPassword(ctx, pw)
	if err != nil {
		e.log.Warn(ctx, "password rehash failed", "account_id", accountID, "error", err)
		return
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.UpdatePasswordHash(sctx, accountID, fresh, e.now()); err != nil {
		e.log.Warn(ctx, "password rehash not stored", "account_id", accountID, "error", err)
	}
}

func (e *Engine) issueSession(ctx context.Context, account *store.Account) (*store.Session, string, error) {
	now := e.now()
	sess := store.Session{
		ID:        uuid.NewString(),
		AccountID: account.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(e.config.Session.TTL),
	}

	token, err := e.jwt.CreateAccess(account.ID, sess.ID, string(account.Role), now, sess.ExpiresAt)
	if err != nil {
		return nil, "", err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.store.CreateSession(sctx, sess); err != nil {
		return nil, "", err
	}
	e.metricInc(MetricSessionCreated)
	return &sess, token, nil
}

func publicSession(s *store.Session, role Role, token string) *Session {
	return &Session{
		ID:          s.ID,
		AccountID:   s.AccountID,
		Role:        role,
		AccessToken: token,
		CreatedAt:   s.CreatedAt,
		ExpiresAt:   s.ExpiresAt,
	}
}
