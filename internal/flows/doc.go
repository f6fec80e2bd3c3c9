// Package flows sequences the login state machine:
//
//	credential_check -> second_factor_pending -> second_factor_verified -> session_issued
//
// with failed reachable from every step. Each step is a plain function over
// a dependency struct of function fields. Steps keep no memory between calls;
// the gap between second_factor_verified and session_issued is bridged only
// by a one-time token.
//
// Steps return an Outcome naming the state reached and, on failure, the
// precise Reason. Collapsing reasons into caller-facing errors is left to the
// engine so that only audit records carry the detail.
package flows
