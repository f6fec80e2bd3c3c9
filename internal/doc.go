// Package internal holds the random and token helpers shared by authflow's
// internal packages: token secrets, their SHA-256 digests, bridge token
// encoding and backup code generation.
//
// # Sub-packages
//
//   - audit: event dispatch and sinks
//   - flows: the login state machine
//   - limiters: action policies over rate windows
//   - logging: context-aware slog wrapper
//   - rate: sliding-window counters in Redis or memory
//   - stores: Redis one-time token store
package internal
