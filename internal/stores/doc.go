// Package stores persists short-lived, single-use tokens in Redis.
//
// A token is addressed by a purpose namespace such as "reset:<email>". Only
// the SHA-256 of the token is written, inside a small versioned binary
// record. Saving into a namespace replaces whatever token lived there, and
// Consume is a single Lua script that checks expiry and digest and deletes
// the key, so two concurrent redemptions cannot both succeed.
//
// This package does not generate tokens or decide who may redeem them.
package stores
