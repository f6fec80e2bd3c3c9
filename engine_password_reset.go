package authflow

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/store"
)

// RequestPasswordReset mails a reset token if email belongs to an account.
// The result never says whether it does.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		e.emitFailure(ctx, AuditResetRequest, "", reasonInvalidInput)
		return err
	}

	subject := limiters.Subject{IP: clientIPFromContext(ctx), Email: email}
	if err := e.checkRate(ctx, limiters.ActionResetRequest, subject); err != nil {
		e.emitFailure(ctx, AuditResetRequest, "", reasonOf(err))
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	account, err := e.store.AccountByEmail(sctx, email)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		e.emitFailure(ctx, AuditResetRequest, "", reasonUnknownAccount)
		return nil
	}
	if err != nil {
		e.emitFailure(ctx, AuditResetRequest, "", reasonInternal)
		return internalError(err)
	}

	token, expires, err := e.issueToken(ctx, resetNamespace(email), e.config.Tokens.PasswordResetTTL)
	if err != nil {
		e.log.Error(ctx, "issue reset token", "account_id", account.ID, "error", err)
		e.emitFailure(ctx, AuditResetRequest, account.ID, reasonInternal)
		return internalError(err)
	}

	e.metricInc(MetricResetRequested)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditResetRequest,
		state:     stateResetIssued,
		success:   true,
		accountID: account.ID,
	})
	e.sendMail(ctx, MailMessage{
		Kind:        MailPasswordReset,
		To:          account.Email,
		DisplayName: account.DisplayName,
		Token:       token,
		ExpiresAt:   expires,
	})
	return nil
}

// CompletePasswordReset consumes the reset token for email, replaces the
// password and revokes every live session of the account in one store
// transaction. It reports success only once all of that has committed.
func (e *Engine) CompletePasswordReset(ctx context.Context, email, token, newPassword string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		e.emitFailure(ctx, AuditResetComplete, "", reasonInvalidInput)
		return err
	}
	if token == "" {
		e.emitFailure(ctx, AuditResetComplete, "", reasonInvalidInput)
		return ErrMissingField
	}
	if err := checkPasswordPolicy(e.config.Password, newPassword); err != nil {
		e.emitFailure(ctx, AuditResetComplete, "", reasonInvalidInput)
		return err
	}

	subject := limiters.Subject{IP: clientIPFromContext(ctx), Email: email}
	if err := e.checkRate(ctx, limiters.ActionTokenRedeem, subject); err != nil {
		e.metricInc(MetricResetFailure)
		e.emitFailure(ctx, AuditResetComplete, "", reasonOf(err))
		return err
	}

	if err := e.consumeToken(ctx, resetNamespace(email), token); err != nil {
		e.metricInc(MetricResetFailure)
		e.emitFailure(ctx, AuditResetComplete, "", reasonOf(err))
		return err
	}

	// The token is spent from here on; any later failure needs a new request.
	sctx, cancel := e.storeCtx(ctx)
	account, err := e.store.AccountByEmail(sctx, email)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		e.metricInc(MetricResetFailure)
		e.emitFailure(ctx, AuditResetComplete, "", reasonUnknownAccount)
		return ErrInvalidToken
	}
	if err != nil {
		e.metricInc(MetricResetFailure)
		e.emitFailure(ctx, AuditResetComplete, "", reasonInternal)
		return internalError(err)
	}

	digest, err := e.hashPassword(ctx, newPassword)
	if err != nil {
		e.metricInc(MetricResetFailure)
		e.emitFailure(ctx, AuditResetComplete, account.ID, reasonInternal)
		return internalError(err)
	}

	sctx, cancel = e.storeCtx(ctx)
	revoked, err := e.store.ResetPassword(sctx, account.ID, digest, e.now())
	cancel()
	if err != nil {
		e.log.Error(ctx, "password reset not committed", "account_id", account.ID, "error", err)
		e.metricInc(MetricResetFailure)
		e.emitFailure(ctx, AuditResetComplete, account.ID, reasonInternal)
		return internalError(err)
	}

	e.revokeLoginTokens(ctx, account.ID, account.Email)
	e.rateSucceeded(ctx, limiters.ActionTokenRedeem, subject)
	e.metricInc(MetricResetCompleted)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditResetComplete,
		state:     statePasswordReset,
		success:   true,
		accountID: account.ID,
		metadata: func() map[string]string {
			return map[string]string{"sessions_revoked": strconv.FormatInt(revoked, 10)}
		},
	})
	return nil
}
