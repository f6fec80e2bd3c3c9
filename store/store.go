// Package store defines the persistence contract for accounts, credentials,
// second factors and sessions.
//
// The engine depends only on [Store]. Reference implementations live in
// store/memory (single process) and store/postgres.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write would violate a uniqueness or
	// state precondition, such as a duplicate email or overwriting a verified
	// enrollment.
	ErrConflict = errors.New("conflict")
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

type Account struct {
	ID              string
	Email           string
	DisplayName     string
	Role            Role
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
}

func (a *Account) EmailVerified() bool {
	return a != nil && a.EmailVerifiedAt != nil
}

// NewAccount is the registration payload. PasswordHash is already a PHC digest.
type NewAccount struct {
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string
}

type TOTPEnrollment struct {
	AccountID    string
	Secret       string
	Verified     bool
	LastUsedStep int64
	LastUsedAt   *time.Time
	CreatedAt    time.Time
}

type Session struct {
	ID        string
	AccountID string
	CreatedAt time.Time
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// Live reports whether the session is neither revoked nor expired at now.
func (s *Session) Live(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type Accounts interface {
	// CreateAccount inserts the account and its credential as one unit.
	CreateAccount(ctx context.Context, in NewAccount, now time.Time) (*Account, error)
	AccountByEmail(ctx context.Context, email string) (*Account, error)
	AccountByID(ctx context.Context, id string) (*Account, error)
	// MarkEmailVerified stamps email_verified_at if it is still null and
	// reports whether this call did so.
	MarkEmailVerified(ctx context.Context, accountID string, at time.Time) (bool, error)
}

type Credentials interface {
	PasswordHash(ctx context.Context, accountID string) (string, error)
	UpdatePasswordHash(ctx context.Context, accountID, hash string, at time.Time) error
	// ResetPassword overwrites the credential and revokes every live session
	// of the account in one transaction. It returns the number of sessions
	// revoked.
	ResetPassword(ctx context.Context, accountID, hash string, at time.Time) (int64, error)
}

type SecondFactors interface {
	// SaveEnrollment creates or replaces an unverified enrollment. It returns
	// ErrConflict if a verified enrollment exists.
	SaveEnrollment(ctx context.Context, accountID, secret string, at time.Time) error
	Enrollment(ctx context.Context, accountID string) (*TOTPEnrollment, error)
	// ActivateEnrollment marks an unverified enrollment verified, records
	// step as last used and replaces the backup code batch, all at once. It
	// returns ErrConflict if the enrollment is already verified.
	ActivateEnrollment(ctx context.Context, accountID string, step int64, at time.Time, codes [][32]byte) error
	// RecordStep stores step as last used. With strict set the write only
	// happens when step is newer than the stored one; the result reports
	// whether it happened.
	RecordStep(ctx context.Context, accountID string, step int64, at time.Time, strict bool) (bool, error)
	// DeleteEnrollment removes the enrollment and every backup code together.
	DeleteEnrollment(ctx context.Context, accountID string) error

	ReplaceBackupCodes(ctx context.Context, accountID string, codes [][32]byte) error
	// RedeemBackupCode marks the unused code with digest hash as used and
	// reports whether one was found.
	RedeemBackupCode(ctx context.Context, accountID string, hash [32]byte, at time.Time) (bool, error)
	UnusedBackupCodes(ctx context.Context, accountID string) (int, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s Session) error
	Session(ctx context.Context, id string) (*Session, error)
	// RevokeSession stamps revoked_at if unset and reports whether it did.
	RevokeSession(ctx context.Context, id string, at time.Time) (bool, error)
}

// Store is everything the engine needs from durable storage.
type Store interface {
	Accounts
	Credentials
	SecondFactors
	Sessions
}
