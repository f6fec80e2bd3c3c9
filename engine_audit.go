package authflow

import (
	"context"

	"github.com/MrEthical07/authflow/internal/flows"
)

// Audit reasons. These are the precise causes that callers never see.
const (
	reasonInvalidInput    = "invalid_input"
	reasonRateLimited     = string(flows.ReasonRateLimited)
	reasonUnknownAccount  = string(flows.ReasonUnknownAccount)
	reasonWrongPassword   = string(flows.ReasonWrongPassword)
	reasonNotEnrolled     = string(flows.ReasonNotEnrolled)
	reasonInvalidCode     = string(flows.ReasonInvalidCode)
	reasonCodeReplay      = string(flows.ReasonCodeReplay)
	reasonInvalidToken    = string(flows.ReasonInvalidToken)
	reasonInternal        = string(flows.ReasonInternal)
	reasonAlreadyEnrolled = "already_enrolled"
	reasonDuplicate       = "duplicate"
	reasonAlreadyVerified = "already_verified"
)

// Audit states for operations outside the login state machine.
const (
	stateAccountCreated   = "account_created"
	stateEmailVerified    = "email_verified"
	stateResetIssued      = "reset_issued"
	statePasswordReset    = "password_reset"
	stateEnrollmentIssued = "enrollment_pending"
	stateEnrollmentActive = "enrollment_verified"
	stateEnrollmentGone   = "enrollment_disabled"
	stateCodesRegenerated = "backup_codes_regenerated"
	stateSessionRevoked   = "session_revoked"
	stateFailed           = string(flows.StateFailed)
)

type auditRecord struct {
	kind      string
	state     string
	success   bool
	accountID string
	sessionID string
	reason    string
	metadata  func() map[string]string
}

func (e *Engine) emitAudit(ctx context.Context, r auditRecord) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if r.metadata != nil {
		metadata = r.metadata()
	}

	e.audit.Emit(ctx, AuditEvent{
		Timestamp: e.now().UTC(),
		Kind:      r.kind,
		State:     r.state,
		Success:   r.success,
		AccountID: r.accountID,
		SessionID: r.sessionID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Reason:    r.reason,
		Metadata:  metadata,
	})
}

// emitFailure records a failed transition. kind is the audit kind of the
// operation; login steps always report login_failure.
func (e *Engine) emitFailure(ctx context.Context, kind, accountID, reason string) {
	if reason == reasonRateLimited {
		e.metricInc(MetricRateLimitHit)
	}
	e.emitAudit(ctx, auditRecord{
		kind:      kind,
		state:     stateFailed,
		accountID: accountID,
		reason:    reason,
	})
}

// emitOutcome records one login state machine step.
func (e *Engine) emitOutcome(ctx context.Context, out flows.Outcome) {
	if out.Failed() {
		e.emitAudit(ctx, auditRecord{
			kind:      AuditLoginFailure,
			state:     string(out.State),
			accountID: out.AccountID(),
			reason:    string(out.Reason),
			metadata:  methodMetadata(out.Method),
		})
		if out.Reason == flows.ReasonRateLimited {
			e.metricInc(MetricRateLimitHit)
		}
		return
	}

	var sessionID string
	if out.Session != nil {
		sessionID = out.Session.ID
	}
	e.emitAudit(ctx, auditRecord{
		kind:      AuditLoginSuccess,
		state:     string(out.State),
		success:   true,
		accountID: out.AccountID(),
		sessionID: sessionID,
		metadata:  methodMetadata(out.Method),
	})
}

func methodMetadata(m flows.Method) func() map[string]string {
	if m == "" {
		return nil
	}
	return func() map[string]string {
		return map[string]string{"method": string(m)}
	}
}
