// Package limiters maps authflow entry points to rate-limit policies built on
// the internal/rate primitives.
//
// # Keys
//
// Every attempt is counted against two or three independent keys: the network
// origin, the normalized email, and (for second-factor checks) the account id.
// [Guard.Check] denies if any of them is exhausted and always increments all of
// them.
//
// # Reset on success
//
// [Guard.Succeeded] clears the identity keys of an action once a transition
// completes. The origin key is never cleared, so one address cannot launder its
// budget through a single valid account.
//
// # What this package must NOT do
//
//   - Import authflow or any sibling internal package except internal/rate.
//   - Decide the consequence of a denial; flows map it to an error and audit reason.
package limiters
