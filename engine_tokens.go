package authflow

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/internal/stores"
)

// issueToken stores a fresh one-time token under namespace, superseding any
// live one, and returns the plaintext for delivery.
func (e *Engine) issueToken(ctx context.Context, namespace string, ttl time.Duration) (string, time.Time, error) {
	token, digest, err := internal.NewTokenSecret()
	if err != nil {
		return "", time.Time{}, err
	}
	now := e.now()
	expires := now.Add(ttl)

	tctx, cancel := e.tokenCtx(ctx)
	defer cancel()
	if err := e.tokens.Save(tctx, namespace, stores.TokenRecord{
		Hash:      digest,
		CreatedAt: now,
		ExpiresAt: expires,
	}); err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// consumeToken returns ErrInvalidToken for any token that is not live in
// namespace, and an internal error when the token store fails.
func (e *Engine) consumeToken(ctx context.Context, namespace, token string) error {
	tctx, cancel := e.tokenCtx(ctx)
	defer cancel()

	_, err := e.tokens.Consume(tctx, namespace, internal.HashToken(token), e.now())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrTokenNotFound):
		return ErrInvalidToken
	default:
		return internalError(err)
	}
}

// revokeLoginTokens drops any half-finished second-factor login for email.
// Failures are logged; the change that triggered the revocation has already
// committed.
func (e *Engine) revokeLoginTokens(ctx context.Context, accountID, email string) {
	for _, namespace := range []string{challengeNamespace(email), bridgeNamespace(email)} {
		tctx, cancel := e.tokenCtx(ctx)
		err := e.tokens.Revoke(tctx, namespace)
		cancel()
		if err != nil {
			e.log.Error(ctx, "login token revocation failed", "account_id", accountID, "error", err)
		}
	}
}

// sendMail delivers msg under the mail timeout. Failures are logged and
// counted but never change the caller-visible result, which is neutral for
// every operation that mails.
func (e *Engine) sendMail(ctx context.Context, msg MailMessage) {
	mctx, cancel := e.mailCtx(ctx)
	defer cancel()

	if err := e.mailer.Send(mctx, msg); err != nil {
		e.metricInc(MetricMailFailure)
		e.log.Error(ctx, "mail delivery failed", "kind", string(msg.Kind), "error", err)
	}
}
