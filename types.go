package authflow

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/store"
)

type (
	Account = store.Account
	Role    = store.Role
	Store   = store.Store
)

const (
	RoleUser  = store.RoleUser
	RoleAdmin = store.RoleAdmin
)

// Session is an issued login session. AccessToken is a signed JWT naming the
// session; it is only returned at issuance.
type Session struct {
	ID          string    `json:"session_id"`
	AccountID   string    `json:"account_id"`
	Role        Role      `json:"role"`
	AccessToken string    `json:"access_token"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginResult is the outcome of a successful CredentialCheck. Either
// NeedsSecondFactor is set and the caller continues with SecondFactorVerify
// presenting Challenge, or Session holds the issued session.
type LoginResult struct {
	NeedsSecondFactor bool     `json:"needs_second_factor"`
	AccountID         string   `json:"account_id"`
	Challenge         string   `json:"challenge,omitempty"`
	Session           *Session `json:"session,omitempty"`
}

// TOTPSetup is returned once by EnrollSecondFactor.
type TOTPSetup struct {
	Secret string `json:"secret"`
	URI    string `json:"uri"`
}

type SecondFactorStatus struct {
	Enrolled             bool `json:"enrolled"`
	PendingVerification  bool `json:"pending_verification"`
	BackupCodesRemaining int  `json:"backup_codes_remaining"`
}

// Principal is the verified identity behind an access token.
type Principal struct {
	AccountID string
	SessionID string
	Role      Role
}

type MailKind string

const (
	MailVerifyEmail   MailKind = "verify_email"
	MailPasswordReset MailKind = "password_reset"
)

// MailMessage carries a one-time token to its recipient. The transport decides
// how to render it.
type MailMessage struct {
	Kind        MailKind
	To          string
	DisplayName string
	Token       string
	ExpiresAt   time.Time
}

// Mailer delivers outbound mail. Implementations must honour ctx.
type Mailer interface {
	Send(ctx context.Context, msg MailMessage) error
}
