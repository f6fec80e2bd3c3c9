package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authflow/internal/rate"
	"github.com/MrEthical07/authflow/internal/stores"
	"github.com/MrEthical07/authflow/store"
)

// LoginDeps captures everything the login steps touch.
type LoginDeps struct {
	Now func() time.Time

	CheckCredentialRate   func(ctx context.Context, ip, email string) error
	CredentialSucceeded   func(ctx context.Context, ip, email string)
	CheckSecondFactorRate func(ctx context.Context, ip, accountID string) error
	SecondFactorSucceeded func(ctx context.Context, ip, accountID string)
	CheckTokenRedeemRate  func(ctx context.Context, ip, accountID string) error
	TokenRedeemSucceeded  func(ctx context.Context, ip, accountID string)

	AccountByEmail func(ctx context.Context, email string) (*store.Account, error)
	AccountByID    func(ctx context.Context, id string) (*store.Account, error)
	PasswordHash   func(ctx context.Context, accountID string) (string, error)
	Enrollment     func(ctx context.Context, accountID string) (*store.TOTPEnrollment, error)

	VerifyPassword func(ctx context.Context, password, digest string) (bool, error)
	// BurnPasswordCheck spends one hash verification against a fixed digest
	// so that a missing account costs the same as a wrong password.
	BurnPasswordCheck func(ctx context.Context, password string)
	// UpgradePassword re-hashes under current parameters when needed. Errors
	// are the callee's to log; login proceeds regardless.
	UpgradePassword func(ctx context.Context, accountID, password, digest string)

	// VerifyTOTP returns the matching time step, or ok=false.
	VerifyTOTP       func(secret, code string, now time.Time) (step int64, ok bool, err error)
	RecordTOTPStep   func(ctx context.Context, accountID string, step int64, now time.Time) (bool, error)
	RedeemBackupCode func(ctx context.Context, accountID, code string, now time.Time) (bool, error)

	// IssueChallenge records that the password step passed for account.
	// CheckChallenge and ConsumeChallenge take the secret decoded from the
	// value it returns.
	IssueChallenge   func(ctx context.Context, account *store.Account) (string, error)
	CheckChallenge   func(ctx context.Context, account *store.Account, secret string) error
	ConsumeChallenge func(ctx context.Context, account *store.Account, secret string) error

	IssueBridge   func(ctx context.Context, account *store.Account) (string, error)
	DecodeBridge  func(bridge string) (accountID, secret string, err error)
	ConsumeBridge func(ctx context.Context, account *store.Account, secret string) error

	IssueSession func(ctx context.Context, account *store.Account) (*store.Session, string, error)
}

func rateOutcome(err error, account *store.Account, method Method) Outcome {
	if errors.Is(err, rate.ErrRateLimited) {
		return fail(ReasonRateLimited, account, method)
	}
	return internal(err, account, method)
}

func tokenOutcome(err error, account *store.Account, method Method) Outcome {
	if errors.Is(err, stores.ErrTokenNotFound) {
		return fail(ReasonInvalidToken, account, method)
	}
	return internal(err, account, method)
}

// CredentialCheck verifies email and password. It ends in
// second_factor_pending when a verified enrollment exists, otherwise in
// session_issued.
func CredentialCheck(ctx context.Context, d LoginDeps, ip, email, password string) Outcome {
	if err := d.CheckCredentialRate(ctx, ip, email); err != nil {
		return rateOutcome(err, nil, MethodPassword)
	}

	account, err := d.AccountByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		d.BurnPasswordCheck(ctx, password)
		return fail(ReasonUnknownAccount, nil, MethodPassword)
	}
	if err != nil {
		return internal(err, nil, MethodPassword)
	}

	digest, err := d.PasswordHash(ctx, account.ID)
	if errors.Is(err, store.ErrNotFound) {
		d.BurnPasswordCheck(ctx, password)
		return fail(ReasonNoCredential, account, MethodPassword)
	}
	if err != nil {
		return internal(err, account, MethodPassword)
	}

	ok, err := d.VerifyPassword(ctx, password, digest)
	if err != nil {
		return internal(err, account, MethodPassword)
	}
	if !ok {
		return fail(ReasonWrongPassword, account, MethodPassword)
	}

	if !account.EmailVerified() {
		return fail(ReasonUnverifiedEmail, account, MethodPassword)
	}

	d.CredentialSucceeded(ctx, ip, email)
	if d.UpgradePassword != nil {
		d.UpgradePassword(ctx, account.ID, password, digest)
	}

	enrollment, err := d.Enrollment(ctx, account.ID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return internal(err, account, MethodPassword)
	case enrollment.Verified:
		challenge, err := d.IssueChallenge(ctx, account)
		if err != nil {
			return internal(err, account, MethodPassword)
		}
		return Outcome{State: StateSecondFactorPending, Account: account, Method: MethodPassword, Challenge: challenge}
	}

	sess, token, err := d.IssueSession(ctx, account)
	if err != nil {
		return internal(err, account, MethodPassword)
	}
	return Outcome{
		State:       StateSessionIssued,
		Account:     account,
		Method:      MethodPassword,
		Session:     sess,
		AccessToken: token,
	}
}

// SecondFactorVerify checks a TOTP or backup code against the challenge
// issued by CredentialCheck and hands out a bridge token. The challenge
// survives a wrong code and is consumed once a code is accepted.
func SecondFactorVerify(ctx context.Context, d LoginDeps, ip, challenge, code string, isBackup bool) Outcome {
	method := MethodTOTP
	if isBackup {
		method = MethodBackupCode
	}

	accountID, secret, err := d.DecodeBridge(challenge)
	if err != nil {
		if rateErr := d.CheckSecondFactorRate(ctx, ip, ""); rateErr != nil {
			return rateOutcome(rateErr, nil, method)
		}
		return fail(ReasonInvalidToken, nil, method)
	}

	if err := d.CheckSecondFactorRate(ctx, ip, accountID); err != nil {
		return rateOutcome(err, nil, method)
	}

	account, err := d.AccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(ReasonInvalidToken, nil, method)
	}
	if err != nil {
		return internal(err, nil, method)
	}

	if err := d.CheckChallenge(ctx, account, secret); err != nil {
		return tokenOutcome(err, account, method)
	}

	enrollment, err := d.Enrollment(ctx, account.ID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(ReasonNotEnrolled, account, method)
	}
	if err != nil {
		return internal(err, account, method)
	}
	if !enrollment.Verified {
		return fail(ReasonNotEnrolled, account, method)
	}

	now := d.Now()
	if isBackup {
		redeemed, err := d.RedeemBackupCode(ctx, account.ID, code, now)
		if err != nil {
			return internal(err, account, method)
		}
		if !redeemed {
			return fail(ReasonInvalidBackupCode, account, method)
		}
	} else {
		step, ok, err := d.VerifyTOTP(enrollment.Secret, code, now)
		if err != nil {
			return internal(err, account, method)
		}
		if !ok {
			return fail(ReasonInvalidCode, account, method)
		}
		recorded, err := d.RecordTOTPStep(ctx, account.ID, step, now)
		if err != nil {
			return internal(err, account, method)
		}
		if !recorded {
			return fail(ReasonCodeReplay, account, method)
		}
	}

	if err := d.ConsumeChallenge(ctx, account, secret); err != nil {
		return tokenOutcome(err, account, method)
	}
	d.SecondFactorSucceeded(ctx, ip, account.ID)

	// A redeemed backup code stays spent even if the bridge cannot be issued.
	bridge, err := d.IssueBridge(ctx, account)
	if err != nil {
		return internal(err, account, method)
	}
	return Outcome{State: StateSecondFactorVerified, Account: account, Method: method, Bridge: bridge}
}

// CompleteLogin exchanges a bridge token for a session.
func CompleteLogin(ctx context.Context, d LoginDeps, ip, bridge string) Outcome {
	accountID, secret, err := d.DecodeBridge(bridge)
	if err != nil {
		if rateErr := d.CheckTokenRedeemRate(ctx, ip, ""); rateErr != nil {
			return rateOutcome(rateErr, nil, "")
		}
		return fail(ReasonInvalidToken, nil, "")
	}

	if err := d.CheckTokenRedeemRate(ctx, ip, accountID); err != nil {
		return rateOutcome(err, nil, "")
	}

	account, err := d.AccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return fail(ReasonInvalidToken, nil, "")
	}
	if err != nil {
		return internal(err, nil, "")
	}

	if err := d.ConsumeBridge(ctx, account, secret); err != nil {
		return tokenOutcome(err, account, "")
	}
	d.TokenRedeemSucceeded(ctx, ip, account.ID)

	sess, token, err := d.IssueSession(ctx, account)
	if err != nil {
		return internal(err, account, "")
	}
	return Outcome{State: StateSessionIssued, Account: account, Session: sess, AccessToken: token}
}
