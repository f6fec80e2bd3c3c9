package authflow

import (
	"context"
	"errors"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/internal/rate"
)

// checkRate counts one attempt. A counter store failure fails closed.
func (e *Engine) checkRate(ctx context.Context, action limiters.Action, s limiters.Subject) error {
	err := e.guard.Check(ctx, action, s)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		e.log.Error(ctx, "rate limit check failed", "action", string(action), "error", err)
		return internalError(err)
	}
}

// rateSucceeded clears the identity windows of action. Failures only cost
// the user a stricter budget, so they are logged and ignored.
func (e *Engine) rateSucceeded(ctx context.Context, action limiters.Action, s limiters.Subject) {
	if err := e.guard.Succeeded(ctx, action, s); err != nil {
		e.log.Warn(ctx, "rate limit reset failed", "action", string(action), "error", err)
	}
}

// reasonOf maps a boundary error to its audit reason.
func reasonOf(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return reasonRateLimited
	case errors.Is(err, ErrInvalidToken):
		return reasonInvalidToken
	case errors.Is(err, ErrInvalidCode):
		return reasonInvalidCode
	case errors.Is(err, ErrInvalidInput):
		return reasonInvalidInput
	case errors.Is(err, ErrNotEnrolled):
		return reasonNotEnrolled
	default:
		return reasonInternal
	}
}
