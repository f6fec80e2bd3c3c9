package authflow

import (
	"io"

	"github.com/MrEthical07/authflow/internal/audit"
	"github.com/MrEthical07/authflow/internal/logging"
)

type (
	// AuditEvent is one append-only security fact. Secrets, tokens and codes
	// never appear in it.
	AuditEvent = audit.Event
	// AuditSink receives audit events. Implementations must be safe for
	// concurrent use.
	AuditSink = audit.Sink

	NoOpSink        = audit.NoOpSink
	ChannelSink     = audit.ChannelSink
	JSONWriterSink  = audit.JSONWriterSink
	LoggerAuditSink = audit.LoggerSink
	MultiSink       = audit.MultiSink
)

// Audit kinds.
const (
	AuditRegister      = "register"
	AuditEmailVerify   = "email_verify"
	AuditLoginSuccess  = "login_success"
	AuditLoginFailure  = "login_failure"
	AuditEnrollment    = "enrollment"
	AuditResetRequest  = "reset_request"
	AuditResetComplete = "reset_complete"
	AuditLogout        = "logout"
)

func NewChannelSink(buffer int) *ChannelSink {
	return audit.NewChannelSink(buffer)
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewLoggerAuditSink records events through log at info (success) or warn
// (failure).
func NewLoggerAuditSink(log logging.Logger) *LoggerAuditSink {
	return audit.NewLoggerSink(log)
}
