// Package rate provides the sliding-window counter primitives behind authflow's
// rate limiting.
//
// # Window semantics
//
// Sliding windows: each hit is recorded with its timestamp and the count is the
// number of hits inside (now-window, now]. The Redis store keeps one sorted set
// per key and does trim+add+count in a single Lua script, so concurrent hits are
// never lost. Denied attempts are recorded too.
//
// # What this package must NOT do
//
//   - Decide which keys an operation is limited by (that lives in internal/limiters).
//   - Be imported outside the authflow module.
package rate
