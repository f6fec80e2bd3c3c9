// Package authflow verifies who a caller is, escalates trust through a TOTP
// second factor, and issues sessions while resisting credential stuffing,
// account enumeration and token replay.
//
// Engine methods are safe to call from multiple goroutines after
// [Builder.Build]. The engine keeps no per-request state: accounts, second
// factors and sessions live in a [Store], one-time tokens and rate limit
// counters live in Redis.
//
// # Login
//
//	credential_check -> second_factor_pending -> second_factor_verified -> session_issued
//
// [Engine.CredentialCheck] either issues a session directly or reports that a
// second factor is needed, handing out a short-lived challenge.
// [Engine.SecondFactorVerify] accepts that challenge with a TOTP or backup
// code and returns a single-use bridge token, which
// [Engine.CompleteLogin] exchanges for a session.
//
// # Errors
//
// Every returned error matches exactly one of ErrInvalidInput,
// ErrRateLimited, ErrAuthenticationFailed, ErrUnverifiedEmail,
// ErrNotEnrolled or ErrInternalFailure under errors.Is. [KindOf] classifies
// an error for transports and [PublicMessage] gives the text that is safe to
// show. The precise reason behind a failure is only ever written to the
// audit sink.
//
// # What this package must NOT do
//
//   - Store or log a password, token, TOTP secret or backup code in plaintext.
//   - Let a one-time token, bridge token or backup code succeed twice.
//   - Tell a caller which part of a credential check failed.
package authflow
