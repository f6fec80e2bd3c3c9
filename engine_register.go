package authflow

import (
	"context"
	"errors"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/store"
)

// Register creates an unverified account and mails a verification token.
//
// The result is the same whether or not the address is already registered:
// an existing unverified account is sent a fresh token, a verified one is
// left alone. Only input and rate limit errors are reported.
func (e *Engine) Register(ctx context.Context, email, pw, displayName string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		e.emitFailure(ctx, AuditRegister, "", reasonInvalidInput)
		return err
	}
	name, err := normalizeDisplayName(displayName)
	if err != nil {
		e.emitFailure(ctx, AuditRegister, "", reasonInvalidInput)
		return err
	}
	if err := checkPasswordPolicy(e.config.Password, pw); err != nil {
		e.emitFailure(ctx, AuditRegister, "", reasonInvalidInput)
		return err
	}

	subject := limiters.Subject{IP: clientIPFromContext(ctx), Email: email}
	if err := e.checkRate(ctx, limiters.ActionRegister, subject); err != nil {
		e.metricInc(MetricRegisterRejected)
		e.emitFailure(ctx, AuditRegister, "", reasonOf(err))
		return err
	}

	// Hash before touching the store so a duplicate costs the same.
	digest, err := e.hashPassword(ctx, pw)
	if err != nil {
		e.metricInc(MetricRegisterRejected)
		e.emitFailure(ctx, AuditRegister, "", reasonInternal)
		return internalError(err)
	}

	sctx, cancel := e.storeCtx(ctx)
	account, err := e.store.CreateAccount(sctx, store.NewAccount{
		Email:        email,
		DisplayName:  name,
		Role:         RoleUser,
		PasswordHash: digest,
	}, e.now())
	cancel()

	switch {
	case errors.Is(err, store.ErrConflict):
		return e.resendVerification(ctx, email)
	case err != nil:
		e.metricInc(MetricRegisterRejected)
		e.emitFailure(ctx, AuditRegister, "", reasonInternal)
		return internalError(err)
	}

	e.metricInc(MetricRegisterAccepted)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditRegister,
		state:     stateAccountCreated,
		success:   true,
		accountID: account.ID,
	})
	return e.mailVerification(ctx, account)
}

func (e *Engine) resendVerification(ctx context.Context, email string) error {
	sctx, cancel := e.storeCtx(ctx)
	account, err := e.store.AccountByEmail(sctx, email)
	cancel()
	if err != nil {
		e.emitFailure(ctx, AuditRegister, "", reasonInternal)
		return internalError(err)
	}

	if account.EmailVerified() {
		e.emitFailure(ctx, AuditRegister, account.ID, reasonDuplicate)
		return nil
	}

	e.emitAudit(ctx, auditRecord{
		kind:      AuditRegister,
		state:     stateAccountCreated,
		success:   true,
		accountID: account.ID,
		metadata:  func() map[string]string { return map[string]string{"resend": "true"} },
	})
	return e.mailVerification(ctx, account)
}

func (e *Engine) mailVerification(ctx context.Context, account *Account) error {
	token, expires, err := e.issueToken(ctx, verifyNamespace(account.Email), e.config.Tokens.EmailVerificationTTL)
	if err != nil {
		e.log.Error(ctx, "issue verification token", "account_id", account.ID, "error", err)
		return internalError(err)
	}
	e.sendMail(ctx, MailMessage{
		Kind:        MailVerifyEmail,
		To:          account.Email,
		DisplayName: account.DisplayName,
		Token:       token,
		ExpiresAt:   expires,
	})
	return nil
}

// VerifyEmail consumes the verification token for email and marks the
// address verified. Verifying an already verified account with a live token
// succeeds without changing the timestamp.
func (e *Engine) VerifyEmail(ctx context.Context, email, token string) error {
	if err := e.ready(); err != nil {
		return err
	}

	email, err := normalizeEmail(email)
	if err != nil {
		e.emitFailure(ctx, AuditEmailVerify, "", reasonInvalidInput)
		return err
	}
	if token == "" {
		e.emitFailure(ctx, AuditEmailVerify, "", reasonInvalidInput)
		return ErrMissingField
	}

	subject := limiters.Subject{IP: clientIPFromContext(ctx), Email: email}
	if err := e.checkRate(ctx, limiters.ActionTokenRedeem, subject); err != nil {
		e.metricInc(MetricEmailVerifyFailure)
		e.emitFailure(ctx, AuditEmailVerify, "", reasonOf(err))
		return err
	}

	if err := e.consumeToken(ctx, verifyNamespace(email), token); err != nil {
		e.metricInc(MetricEmailVerifyFailure)
		e.emitFailure(ctx, AuditEmailVerify, "", reasonOf(err))
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	account, err := e.store.AccountByEmail(sctx, email)
	if errors.Is(err, store.ErrNotFound) {
		e.metricInc(MetricEmailVerifyFailure)
		e.emitFailure(ctx, AuditEmailVerify, "", reasonUnknownAccount)
		return ErrInvalidToken
	}
	if err != nil {
		e.emitFailure(ctx, AuditEmailVerify, "", reasonInternal)
		return internalError(err)
	}

	changed, err := e.store.MarkEmailVerified(sctx, account.ID, e.now())
	if err != nil {
		e.emitFailure(ctx, AuditEmailVerify, account.ID, reasonInternal)
		return internalError(err)
	}

	e.rateSucceeded(ctx, limiters.ActionTokenRedeem, subject)
	e.metricInc(MetricEmailVerifySuccess)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditEmailVerify,
		state:     stateEmailVerified,
		success:   true,
		accountID: account.ID,
		reason:    alreadyVerifiedReason(changed),
	})
	return nil
}

func alreadyVerifiedReason(changed bool) string {
	if changed {
		return ""
	}
	return reasonAlreadyVerified
}
