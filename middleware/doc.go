// Package middleware adapts authflow to net/http.
//
//   - [RequireSession] rejects requests without a live session and puts the
//     [authflow.Principal] in the request context.
//   - [ClientInfo] records the caller's network origin and user agent in the
//     request context for rate limiting and audit.
//
// Session decisions are delegated to Engine.ValidateSession; this package
// never parses tokens itself.
package middleware
