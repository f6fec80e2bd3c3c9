// Package notify provides authflow.Mailer implementations.
//
// LogMailer writes one structured log line per message and is meant for
// development. HTTPMailer posts messages to a Resend-compatible JSON API and
// throttles itself to the provider's send rate.
//
// Neither implementation logs the token a message carries.
package notify
