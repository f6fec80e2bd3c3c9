package authflow

import (
	"errors"
	"fmt"
)

// Taxonomy. Every error returned across the boundary matches exactly one of
// these with errors.Is.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrRateLimited          = errors.New("too many attempts")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnverifiedEmail      = errors.New("email address not verified")
	ErrNotEnrolled          = errors.New("second factor not set up")
	ErrInternalFailure      = errors.New("internal failure")
)

var (
	ErrInvalidEmail       = fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	ErrInvalidDisplayName = fmt.Errorf("%w: invalid display name", ErrInvalidInput)
	ErrPasswordPolicy     = fmt.Errorf("%w: password does not meet policy", ErrInvalidInput)
	ErrCodeFormat         = fmt.Errorf("%w: code must be numeric", ErrInvalidInput)
	ErrMissingField       = fmt.Errorf("%w: required field missing", ErrInvalidInput)
	ErrUnknownRequest     = fmt.Errorf("%w: unknown request type", ErrInvalidInput)

	// ErrInvalidToken covers expired, consumed, superseded and unknown tokens.
	ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", ErrAuthenticationFailed)
	ErrInvalidCode  = fmt.Errorf("%w: invalid code", ErrAuthenticationFailed)
	// ErrSessionInvalid is returned for unknown, revoked and expired sessions.
	ErrSessionInvalid = fmt.Errorf("%w: session invalid", ErrAuthenticationFailed)

	ErrSecondFactorAlreadyEnabled = fmt.Errorf("%w: second factor already enabled", ErrInvalidInput)

	ErrEngineNotReady = fmt.Errorf("%w: engine not initialized", ErrInternalFailure)
)

// ErrorKind classifies an error for transport adapters.
type ErrorKind string

const (
	KindNone                 ErrorKind = ""
	KindInvalidInput         ErrorKind = "invalid_input"
	KindRateLimited          ErrorKind = "rate_limited"
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindUnverifiedEmail      ErrorKind = "unverified_email"
	KindNotEnrolled          ErrorKind = "not_enrolled"
	KindInternalFailure      ErrorKind = "internal_failure"
)

// KindOf returns the taxonomy member err belongs to. Errors from outside the
// taxonomy are KindInternalFailure.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrAuthenticationFailed):
		return KindAuthenticationFailed
	case errors.Is(err, ErrUnverifiedEmail):
		return KindUnverifiedEmail
	case errors.Is(err, ErrNotEnrolled):
		return KindNotEnrolled
	default:
		return KindInternalFailure
	}
}

// PublicMessage is the text safe to show a caller for err.
func PublicMessage(err error) string {
	switch KindOf(err) {
	case KindNone:
		return ""
	case KindInvalidInput:
		return err.Error()
	case KindRateLimited:
		return ErrRateLimited.Error()
	case KindAuthenticationFailed:
		return ErrAuthenticationFailed.Error()
	case KindUnverifiedEmail:
		return ErrUnverifiedEmail.Error()
	case KindNotEnrolled:
		return ErrNotEnrolled.Error()
	default:
		return ErrInternalFailure.Error()
	}
}

func internalError(err error) error {
	return fmt.Errorf("%w: %v", ErrInternalFailure, err)
}
