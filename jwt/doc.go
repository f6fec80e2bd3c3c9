// Package jwt signs and verifies the short access tokens handed out with a
// session. A token names its session; revocation is checked against the
// session store, not encoded in the token.
package jwt
