package internaldefs

import "github.com/MrEthical07/authflow"

type CounterDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

type HistogramDef struct {
	ID   authflow.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: authflow.MetricRegisterAccepted, Name: "authflow_register_accepted_total", Help: "Registrations that created an account."},
	{ID: authflow.MetricRegisterRejected, Name: "authflow_register_rejected_total", Help: "Registrations rejected by validation or rate limits."},
	{ID: authflow.MetricEmailVerifySuccess, Name: "authflow_email_verify_success_total", Help: "Email addresses verified."},
	{ID: authflow.MetricEmailVerifyFailure, Name: "authflow_email_verify_failure_total", Help: "Failed email verification attempts."},
	{ID: authflow.MetricCredentialSuccess, Name: "authflow_credential_success_total", Help: "Credential checks that passed."},
	{ID: authflow.MetricCredentialFailure, Name: "authflow_credential_failure_total", Help: "Credential checks that failed."},
	{ID: authflow.MetricSecondFactorRequired, Name: "authflow_second_factor_required_total", Help: "Logins that required a second factor."},
	{ID: authflow.MetricSecondFactorSuccess, Name: "authflow_second_factor_success_total", Help: "Second factor verifications that passed."},
	{ID: authflow.MetricSecondFactorFailure, Name: "authflow_second_factor_failure_total", Help: "Second factor verifications that failed."},
	{ID: authflow.MetricTOTPReplayRejected, Name: "authflow_totp_replay_rejected_total", Help: "TOTP codes rejected as replays."},
	{ID: authflow.MetricBackupCodeUsed, Name: "authflow_backup_code_used_total", Help: "Backup codes redeemed."},
	{ID: authflow.MetricBackupCodeFailed, Name: "authflow_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: authflow.MetricBackupCodeRegenerated, Name: "authflow_backup_code_regenerated_total", Help: "Backup code batches regenerated."},
	{ID: authflow.MetricLoginCompleted, Name: "authflow_login_completed_total", Help: "Bridge tokens exchanged for a session."},
	{ID: authflow.MetricLoginBridgeRejected, Name: "authflow_login_bridge_rejected_total", Help: "Rejected bridge tokens."},
	{ID: authflow.MetricResetRequested, Name: "authflow_reset_requested_total", Help: "Password reset requests."},
	{ID: authflow.MetricResetCompleted, Name: "authflow_reset_completed_total", Help: "Completed password resets."},
	{ID: authflow.MetricResetFailure, Name: "authflow_reset_failure_total", Help: "Failed password reset completions."},
	{ID: authflow.MetricEnrollmentStarted, Name: "authflow_enrollment_started_total", Help: "Second factor enrollments started."},
	{ID: authflow.MetricEnrollmentVerified, Name: "authflow_enrollment_verified_total", Help: "Second factor enrollments verified."},
	{ID: authflow.MetricEnrollmentDisabled, Name: "authflow_enrollment_disabled_total", Help: "Second factor enrollments removed."},
	{ID: authflow.MetricRateLimitHit, Name: "authflow_rate_limit_hit_total", Help: "Requests denied by a rate limit."},
	{ID: authflow.MetricSessionCreated, Name: "authflow_session_created_total", Help: "Sessions issued."},
	{ID: authflow.MetricSessionRevoked, Name: "authflow_session_revoked_total", Help: "Sessions revoked by logout or reset."},
	{ID: authflow.MetricSessionRejected, Name: "authflow_session_rejected_total", Help: "Access tokens rejected by session validation."},
	{ID: authflow.MetricMailFailure, Name: "authflow_mail_failure_total", Help: "Outbound mail deliveries that failed."},
}

var HistogramDefs = []HistogramDef{
	{ID: authflow.MetricCredentialLatency, Name: "authflow_credential_latency_seconds", Help: "Credential check latency."},
}

// HistogramBounds are the upper bounds of the engine's latency buckets, in
// seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix names each bucket in instrument names, where dots are
// not allowed.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
