package authflow

import (
	"context"
	"errors"

	"github.com/MrEthical07/authflow/store"
)

// ValidateSession verifies an access token and checks that its session is
// still live in the store. Every rejection is ErrSessionInvalid.
func (e *Engine) ValidateSession(ctx context.Context, accessToken string) (*Principal, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if accessToken == "" {
		return nil, ErrSessionInvalid
	}

	claims, err := e.jwt.ParseAccess(accessToken, e.now())
	if err != nil {
		e.metricInc(MetricSessionRejected)
		return nil, ErrSessionInvalid
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	sess, err := e.store.Session(sctx, claims.SessionID())
	if errors.Is(err, store.ErrNotFound) {
		e.metricInc(MetricSessionRejected)
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, internalError(err)
	}
	if sess.AccountID != claims.AccountID() || !sess.Live(e.now()) {
		e.metricInc(MetricSessionRejected)
		return nil, ErrSessionInvalid
	}

	return &Principal{
		AccountID: sess.AccountID,
		SessionID: sess.ID,
		Role:      Role(claims.Role),
	}, nil
}

// Logout revokes the session behind accessToken. Logging out an already
// revoked session fails with ErrSessionInvalid.
func (e *Engine) Logout(ctx context.Context, accessToken string) error {
	principal, err := e.ValidateSession(ctx, accessToken)
	if err != nil {
		return err
	}

	sctx, cancel := e.storeCtx(ctx)
	revoked, err := e.store.RevokeSession(sctx, principal.SessionID, e.now())
	cancel()
	if err != nil {
		e.emitFailure(ctx, AuditLogout, principal.AccountID, reasonInternal)
		return internalError(err)
	}
	if !revoked {
		return ErrSessionInvalid
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditRecord{
		kind:      AuditLogout,
		state:     stateSessionRevoked,
		success:   true,
		accountID: principal.AccountID,
		sessionID: principal.SessionID,
	})
	return nil
}
