// Package logging defines the context-aware structured logger used by the
// engine, the stores and the daemon.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are key–value pairs:
//
//	log.Warn(ctx, "credential check failed", "reason", reason, "ip", ip)
//
// Callers never pass plaintext passwords, tokens or codes.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}
