package authflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// RequestKind tags a Request variant.
type RequestKind string

const (
	RequestRegister              RequestKind = "register"
	RequestVerifyEmail           RequestKind = "verify_email"
	RequestCredentialCheck       RequestKind = "credential_check"
	RequestSecondFactor          RequestKind = "second_factor"
	RequestCompleteLogin         RequestKind = "complete_login"
	RequestPasswordReset         RequestKind = "password_reset"
	RequestCompletePasswordReset RequestKind = "complete_password_reset"
	RequestEnroll                RequestKind = "enroll"
	RequestVerifyEnrollment      RequestKind = "verify_enrollment"
	RequestDisableSecondFactor   RequestKind = "disable_second_factor"
	RequestStatus                RequestKind = "status"
	RequestRegenerateBackupCodes RequestKind = "regenerate_backup_codes"
)

// Request is the closed set of operations Handle accepts. Validate checks
// shape only; the engine re-normalizes every field.
type Request interface {
	Kind() RequestKind
	Validate() error
	isRequest()
}

// Authenticated requests carry an AccountID that transports must fill from
// a validated session, never from the request body.
type Authenticated interface {
	Request
	SetAccountID(id string)
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type VerifyEmailRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type CredentialCheckRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SecondFactorRequest struct {
	Challenge string `json:"challenge"`
	Code      string `json:"code"`
	IsBackup  bool   `json:"is_backup"`
}

type CompleteLoginRequest struct {
	Bridge string `json:"bridge"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type CompletePasswordResetRequest struct {
	Email       string `json:"email"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type EnrollRequest struct {
	AccountID string `json:"-"`
}

type VerifyEnrollmentRequest struct {
	AccountID string `json:"-"`
	Code      string `json:"code"`
}

type DisableSecondFactorRequest struct {
	AccountID string `json:"-"`
	Password  string `json:"password"`
}

type StatusRequest struct {
	AccountID string `json:"-"`
}

type RegenerateBackupCodesRequest struct {
	AccountID string `json:"-"`
	Code      string `json:"code"`
}

func (*RegisterRequest) Kind() RequestKind              { return RequestRegister }
func (*VerifyEmailRequest) Kind() RequestKind           { return RequestVerifyEmail }
func (*CredentialCheckRequest) Kind() RequestKind       { return RequestCredentialCheck }
func (*SecondFactorRequest) Kind() RequestKind          { return RequestSecondFactor }
func (*CompleteLoginRequest) Kind() RequestKind         { return RequestCompleteLogin }
func (*PasswordResetRequest) Kind() RequestKind         { return RequestPasswordReset }
func (*CompletePasswordResetRequest) Kind() RequestKind { return RequestCompletePasswordReset }
func (*EnrollRequest) Kind() RequestKind                { return RequestEnroll }
func (*VerifyEnrollmentRequest) Kind() RequestKind      { return RequestVerifyEnrollment }
func (*DisableSecondFactorRequest) Kind() RequestKind   { return RequestDisableSecondFactor }
func (*StatusRequest) Kind() RequestKind                { return RequestStatus }
func (*RegenerateBackupCodesRequest) Kind() RequestKind { return RequestRegenerateBackupCodes }

func (*RegisterRequest) isRequest()              {}
func (*VerifyEmailRequest) isRequest()           {}
func (*CredentialCheckRequest) isRequest()       {}
func (*SecondFactorRequest) isRequest()          {}
func (*CompleteLoginRequest) isRequest()         {}
func (*PasswordResetRequest) isRequest()         {}
func (*CompletePasswordResetRequest) isRequest() {}
func (*EnrollRequest) isRequest()                {}
func (*VerifyEnrollmentRequest) isRequest()      {}
func (*DisableSecondFactorRequest) isRequest()   {}
func (*StatusRequest) isRequest()                {}
func (*RegenerateBackupCodesRequest) isRequest() {}

func (r *EnrollRequest) SetAccountID(id string)                { r.AccountID = id }
func (r *VerifyEnrollmentRequest) SetAccountID(id string)      { r.AccountID = id }
func (r *DisableSecondFactorRequest) SetAccountID(id string)   { r.AccountID = id }
func (r *StatusRequest) SetAccountID(id string)                { r.AccountID = id }
func (r *RegenerateBackupCodesRequest) SetAccountID(id string) { r.AccountID = id }

func required(fields ...string) error {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return ErrMissingField
		}
	}
	return nil
}

func (r *RegisterRequest) Validate() error        { return required(r.Email, r.Password, r.DisplayName) }
func (r *VerifyEmailRequest) Validate() error     { return required(r.Email, r.Token) }
func (r *CredentialCheckRequest) Validate() error { return required(r.Email, r.Password) }
func (r *SecondFactorRequest) Validate() error    { return required(r.Challenge, r.Code) }
func (r *CompleteLoginRequest) Validate() error   { return required(r.Bridge) }
func (r *PasswordResetRequest) Validate() error   { return required(r.Email) }
func (r *CompletePasswordResetRequest) Validate() error {
	return required(r.Email, r.Token, r.NewPassword)
}
func (r *EnrollRequest) Validate() error              { return required(r.AccountID) }
func (r *VerifyEnrollmentRequest) Validate() error    { return required(r.AccountID, r.Code) }
func (r *DisableSecondFactorRequest) Validate() error { return required(r.AccountID, r.Password) }
func (r *StatusRequest) Validate() error              { return required(r.AccountID) }
func (r *RegenerateBackupCodesRequest) Validate() error {
	return required(r.AccountID, r.Code)
}

// Response carries whichever result the handled request produces. Unused
// fields stay nil.
type Response struct {
	Kind        RequestKind         `json:"kind"`
	Login       *LoginResult        `json:"login,omitempty"`
	Bridge      string              `json:"bridge,omitempty"`
	Session     *Session            `json:"session,omitempty"`
	Setup       *TOTPSetup          `json:"setup,omitempty"`
	BackupCodes []string            `json:"backup_codes,omitempty"`
	Status      *SecondFactorStatus `json:"status,omitempty"`
}

// DecodeRequest parses body as the variant named by kind. Unknown kinds and
// unknown fields are rejected.
func DecodeRequest(kind RequestKind, body []byte) (Request, error) {
	var req Request
	switch kind {
	case RequestRegister:
		req = &RegisterRequest{}
	case RequestVerifyEmail:
		req = &VerifyEmailRequest{}
	case RequestCredentialCheck:
		req = &CredentialCheckRequest{}
	case RequestSecondFactor:
		req = &SecondFactorRequest{}
	case RequestCompleteLogin:
		req = &CompleteLoginRequest{}
	case RequestPasswordReset:
		req = &PasswordResetRequest{}
	case RequestCompletePasswordReset:
		req = &CompletePasswordResetRequest{}
	case RequestEnroll:
		req = &EnrollRequest{}
	case RequestVerifyEnrollment:
		req = &VerifyEnrollmentRequest{}
	case RequestDisableSecondFactor:
		req = &DisableSecondFactorRequest{}
	case RequestStatus:
		req = &StatusRequest{}
	case RequestRegenerateBackupCodes:
		req = &RegenerateBackupCodesRequest{}
	default:
		return nil, ErrUnknownRequest
	}

	if len(bytes.TrimSpace(body)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.DisallowUnknownFields()
		if err := dec.Decode(req); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	return req, nil
}

// Handle validates req and dispatches it to the matching operation.
func (e *Engine) Handle(ctx context.Context, req Request) (*Response, error) {
	if req == nil {
		return nil, ErrUnknownRequest
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp := &Response{Kind: req.Kind()}
	var err error
	switch r := req.(type) {
	case *RegisterRequest:
		err = e.Register(ctx, r.Email, r.Password, r.DisplayName)
	case *VerifyEmailRequest:
		err = e.VerifyEmail(ctx, r.Email, r.Token)
	case *CredentialCheckRequest:
		resp.Login, err = e.CredentialCheck(ctx, r.Email, r.Password)
	case *SecondFactorRequest:
		resp.Bridge, err = e.SecondFactorVerify(ctx, r.Challenge, r.Code, r.IsBackup)
	case *CompleteLoginRequest:
		resp.Session, err = e.CompleteLogin(ctx, r.Bridge)
	case *PasswordResetRequest:
		err = e.RequestPasswordReset(ctx, r.Email)
	case *CompletePasswordResetRequest:
		err = e.CompletePasswordReset(ctx, r.Email, r.Token, r.NewPassword)
	case *EnrollRequest:
		resp.Setup, err = e.EnrollSecondFactor(ctx, r.AccountID)
	case *VerifyEnrollmentRequest:
		resp.BackupCodes, err = e.VerifyEnrollment(ctx, r.AccountID, r.Code)
	case *DisableSecondFactorRequest:
		err = e.DisableSecondFactor(ctx, r.AccountID, r.Password)
	case *StatusRequest:
		resp.Status, err = e.SecondFactorStatus(ctx, r.AccountID)
	case *RegenerateBackupCodesRequest:
		resp.BackupCodes, err = e.RegenerateBackupCodes(ctx, r.AccountID, r.Code)
	default:
		return nil, ErrUnknownRequest
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
