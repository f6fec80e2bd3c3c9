package authflow

import (
	"context"
	"errors"
	"strconv"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/store"
)

// The operations in this file act for an authenticated caller. accountID is
// taken from a validated session, never from request input.

// EnrollSecondFactor starts TOTP setup. The secret and provisioning URI are
// returned once. Calling it again before VerifyEnrollment replaces the
// pending secret; once verified, ErrSecondFactorAlreadyEnabled is returned.
func (e *Engine) EnrollSecondFactor(ctx context.Context, accountID string) (*TOTPSetup, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	account, err := e.authenticatedAccount(ctx, AuditEnrollment, accountID)
	if err != nil {
		return nil, err
	}

	sctx, cancel := e.storeCtx(ctx)
	current, err := e.store.Enrollment(sctx, account.ID)
	cancel()
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	case current.Verified:
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonAlreadyEnrolled)
		return nil, ErrSecondFactorAlreadyEnabled
	}

	setup, err := e.totp.Enroll(account.Email)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.store.SaveEnrollment(sctx, account.ID, setup.Secret, e.now())
	cancel()
	if errors.Is(err, store.ErrConflict) {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonAlreadyEnrolled)
		return nil, ErrSecondFactorAlreadyEnabled
	}
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}

	e.metricInc(MetricEnrollmentStarted)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditEnrollment,
		state:     stateEnrollmentIssued,
		success:   true,
		accountID: account.ID,
	})
	return setup, nil
}

// VerifyEnrollment proves possession of the pending secret. On success the
// enrollment becomes active and a fresh batch of backup codes is returned.
// The codes are not retrievable later.
func (e *Engine) VerifyEnrollment(ctx context.Context, accountID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	code, err := normalizeTOTPCode(code, e.config.TOTP.Digits)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, accountID, reasonInvalidInput)
		return nil, err
	}
	account, err := e.authenticatedAccount(ctx, AuditEnrollment, accountID)
	if err != nil {
		return nil, err
	}

	subject := limiters.Subject{IP: clientIPFromContext(ctx), AccountID: account.ID}
	if err := e.checkRate(ctx, limiters.ActionSecondFactor, subject); err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonOf(err))
		return nil, err
	}

	enrollment, err := e.enrollment(ctx, account.ID)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonOf(err))
		return nil, err
	}
	if enrollment.Verified {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonAlreadyEnrolled)
		return nil, ErrSecondFactorAlreadyEnabled
	}

	now := e.now()
	step, ok, err := e.totp.Verify(enrollment.Secret, code, now)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}
	if !ok {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInvalidCode)
		return nil, ErrInvalidCode
	}

	batch, err := newBackupBatch(account.ID, e.config.BackupCodes)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}

	sctx, cancel := e.storeCtx(ctx)
	err = e.store.ActivateEnrollment(sctx, account.ID, step, now, batch.Digests)
	cancel()
	if errors.Is(err, store.ErrConflict) {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonAlreadyEnrolled)
		return nil, ErrSecondFactorAlreadyEnabled
	}
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}

	e.rateSucceeded(ctx, limiters.ActionSecondFactor, subject)
	e.metricInc(MetricEnrollmentVerified)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditEnrollment,
		state:     stateEnrollmentActive,
		success:   true,
		accountID: account.ID,
		metadata:  backupCountMetadata(len(batch.Plain)),
	})
	return batch.Plain, nil
}

// DisableSecondFactor removes the enrollment and every backup code after
// re-checking the account password.
func (e *Engine) DisableSecondFactor(ctx context.Context, accountID, pw string) error {
	if err := e.ready(); err != nil {
		return err
	}

	if err := loginPasswordShape(e.config.Password, pw); err != nil {
		e.emitFailure(ctx, AuditEnrollment, accountID, reasonInvalidInput)
		return err
	}
	account, err := e.authenticatedAccount(ctx, AuditEnrollment, accountID)
	if err != nil {
		return err
	}

	subject := limiters.Subject{IP: clientIPFromContext(ctx), Email: account.Email}
	if err := e.checkRate(ctx, limiters.ActionCredential, subject); err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonOf(err))
		return err
	}

	if _, err := e.enrollment(ctx, account.ID); err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonOf(err))
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	digest, err := e.store.PasswordHash(sctx, account.ID)
	cancel()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return internalError(err)
	}
	if errors.Is(err, store.ErrNotFound) {
		digest = e.dummyHash
	}

	ok, err := e.verifyPassword(ctx, pw, digest)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return internalError(err)
	}
	if !ok || digest == e.dummyHash {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonWrongPassword)
		return ErrAuthenticationFailed
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.store.DeleteEnrollment(sctx, account.ID)
	cancel()
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return internalError(err)
	}

	e.revokeLoginTokens(ctx, account.ID, account.Email)
	e.rateSucceeded(ctx, limiters.ActionCredential, subject)
	e.metricInc(MetricEnrollmentDisabled)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditEnrollment,
		state:     stateEnrollmentGone,
		success:   true,
		accountID: account.ID,
	})
	return nil
}

// SecondFactorStatus reports enrollment state. It has no failure mode for a
// missing enrollment; Enrolled is simply false.
func (e *Engine) SecondFactorStatus(ctx context.Context, accountID string) (*SecondFactorStatus, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if accountID == "" {
		return nil, ErrMissingField
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	enrollment, err := e.store.Enrollment(sctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return &SecondFactorStatus{}, nil
	}
	if err != nil {
		return nil, internalError(err)
	}
	if !enrollment.Verified {
		return &SecondFactorStatus{PendingVerification: true}, nil
	}

	remaining, err := e.store.UnusedBackupCodes(sctx, accountID)
	if err != nil {
		return nil, internalError(err)
	}
	return &SecondFactorStatus{Enrolled: true, BackupCodesRemaining: remaining}, nil
}

// RegenerateBackupCodes replaces every backup code with a new batch. A
// current TOTP code is required and is consumed like a login code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}

	code, err := normalizeTOTPCode(code, e.config.TOTP.Digits)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, accountID, reasonInvalidInput)
		return nil, err
	}
	account, err := e.authenticatedAccount(ctx, AuditEnrollment, accountID)
	if err != nil {
		return nil, err
	}

	subject := limiters.Subject{IP: clientIPFromContext(ctx), AccountID: account.ID}
	if err := e.checkRate(ctx, limiters.ActionSecondFactor, subject); err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonOf(err))
		return nil, err
	}

	enrollment, err := e.enrollment(ctx, account.ID)
	if err == nil && !enrollment.Verified {
		err = ErrNotEnrolled
	}
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonOf(err))
		return nil, err
	}

	now := e.now()
	step, ok, err := e.totp.Verify(enrollment.Secret, code, now)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}
	if !ok {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInvalidCode)
		return nil, ErrInvalidCode
	}

	sctx, cancel := e.storeCtx(ctx)
	recorded, err := e.store.RecordStep(sctx, account.ID, step, now, e.config.TOTP.EnforceReplayProtection)
	cancel()
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}
	if !recorded {
		e.metricInc(MetricTOTPReplayRejected)
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonCodeReplay)
		return nil, ErrInvalidCode
	}

	batch, err := newBackupBatch(account.ID, e.config.BackupCodes)
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}

	sctx, cancel = e.storeCtx(ctx)
	err = e.store.ReplaceBackupCodes(sctx, account.ID, batch.Digests)
	cancel()
	if err != nil {
		e.emitFailure(ctx, AuditEnrollment, account.ID, reasonInternal)
		return nil, internalError(err)
	}

	e.rateSucceeded(ctx, limiters.ActionSecondFactor, subject)
	e.metricInc(MetricBackupCodeRegenerated)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditEnrollment,
		state:     stateCodesRegenerated,
		success:   true,
		accountID: account.ID,
		metadata:  backupCountMetadata(len(batch.Plain)),
	})
	return batch.Plain, nil
}

// authenticatedAccount loads the caller's account. A missing account means
// the session outlived it and is reported as an authentication failure.
func (e *Engine) authenticatedAccount(ctx context.Context, kind, accountID string) (*Account, error) {
	if accountID == "" {
		e.emitFailure(ctx, kind, "", reasonInvalidInput)
		return nil, ErrMissingField
	}
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	account, err := e.store.AccountByID(sctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		e.emitFailure(ctx, kind, accountID, reasonUnknownAccount)
		return nil, ErrAuthenticationFailed
	}
	if err != nil {
		e.emitFailure(ctx, kind, accountID, reasonInternal)
		return nil, internalError(err)
	}
	return account, nil
}

// enrollment returns ErrNotEnrolled when no enrollment exists.
func (e *Engine) enrollment(ctx context.Context, accountID string) (*store.TOTPEnrollment, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	enrollment, err := e.store.Enrollment(sctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, internalError(err)
	}
	return enrollment, nil
}

func backupCountMetadata(n int) func() map[string]string {
	return func() map[string]string {
		return map[string]string{"backup_codes": strconv.Itoa(n)}
	}
}
