package flows

import (
	"github.com/MrEthical07/authflow/store"
)

type State string

const (
	StateCredentialCheck      State = "credential_check"
	StateSecondFactorPending  State = "second_factor_pending"
	StateSecondFactorVerified State = "second_factor_verified"
	StateSessionIssued        State = "session_issued"
	StateFailed               State = "failed"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonRateLimited       Reason = "rate_limited"
	ReasonUnknownAccount    Reason = "unknown_account"
	ReasonNoCredential      Reason = "no_credential"
	ReasonWrongPassword     Reason = "wrong_password"
	ReasonUnverifiedEmail   Reason = "unverified_email"
	ReasonNotEnrolled       Reason = "not_enrolled"
	ReasonInvalidCode       Reason = "invalid_code"
	ReasonCodeReplay        Reason = "code_replay"
	ReasonInvalidBackupCode Reason = "invalid_backup_code"
	ReasonInvalidToken      Reason = "invalid_token"
	ReasonInternal          Reason = "internal_error"
)

// Method names the second factor that was presented.
type Method string

const (
	MethodPassword   Method = "password"
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup_code"
)

// Outcome is the result of one step.
type Outcome struct {
	State  State
	Reason Reason
	Method Method
	// Account is set once the subject is known, including on most failures.
	Account *store.Account

	// Challenge is the opaque token handed out at second_factor_pending.
	Challenge string
	// Bridge is the opaque token handed out at second_factor_verified.
	Bridge string
	// Session and AccessToken are set at session_issued.
	Session     *store.Session
	AccessToken string

	// Cause is the underlying error for ReasonInternal.
	Cause error
}

func (o Outcome) Failed() bool {
	return o.State == StateFailed
}

func (o Outcome) AccountID() string {
	if o.Account == nil {
		return ""
	}
	return o.Account.ID
}

func fail(reason Reason, account *store.Account, method Method) Outcome {
	return Outcome{State: StateFailed, Reason: reason, Account: account, Method: method}
}

func internal(cause error, account *store.Account, method Method) Outcome {
	return Outcome{State: StateFailed, Reason: ReasonInternal, Account: account, Method: method, Cause: cause}
}
