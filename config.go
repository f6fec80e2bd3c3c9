package authflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/authflow/internal/limiters"
	"github.com/MrEthical07/authflow/internal/rate"
)

// Config holds every tunable of the engine. Start from DefaultConfig and
// override; Build calls Validate.
type Config struct {
	Password    PasswordConfig    `toml:"password"`
	RateLimit   RateLimitConfig   `toml:"rate_limit"`
	Tokens      TokensConfig      `toml:"tokens"`
	TOTP        TOTPConfig        `toml:"totp"`
	BackupCodes BackupCodesConfig `toml:"backup_codes"`
	Session     SessionConfig     `toml:"session"`
	Timeouts    TimeoutsConfig    `toml:"timeouts"`
	Audit       AuditConfig       `toml:"audit"`
	Metrics     MetricsConfig     `toml:"metrics"`
	Security    SecurityConfig    `toml:"security"`
}

/*
====================================
PASSWORD
====================================
*/

// PasswordConfig sets the Argon2id work factor and the password policy.
type PasswordConfig struct {
	Memory      uint32 `toml:"memory_kib"`
	Time        uint32 `toml:"time"`
	Parallelism uint8  `toml:"parallelism"`
	SaltLength  uint32 `toml:"salt_length"`
	KeyLength   uint32 `toml:"key_length"`

	MinLength int `toml:"min_length"`
	MaxBytes  int `toml:"max_bytes"`
	// MinClasses is how many of lower, upper, digit and symbol must appear.
	MinClasses     int  `toml:"min_classes"`
	UpgradeOnLogin bool `toml:"upgrade_on_login"`
}

/*
====================================
RATE LIMIT
====================================
*/

// RatePolicy allows Attempts hits per sliding Window on every key of an action.
type RatePolicy struct {
	Attempts int           `toml:"attempts"`
	Window   time.Duration `toml:"window"`
}

type RateLimitConfig struct {
	Register     RatePolicy `toml:"register"`
	ResetRequest RatePolicy `toml:"reset_request"`
	Credential   RatePolicy `toml:"credential"`
	SecondFactor RatePolicy `toml:"second_factor"`
	TokenRedeem  RatePolicy `toml:"token_redeem"`
	// ResetOnSuccess clears the identity window of an action after it
	// succeeds. Network-origin windows are never cleared.
	ResetOnSuccess bool   `toml:"reset_on_success"`
	RedisPrefix    string `toml:"redis_prefix"`
}

func (c RateLimitConfig) policies() map[limiters.Action]rate.Policy {
	return map[limiters.Action]rate.Policy{
		limiters.ActionRegister:     {Capacity: c.Register.Attempts, Window: c.Register.Window},
		limiters.ActionResetRequest: {Capacity: c.ResetRequest.Attempts, Window: c.ResetRequest.Window},
		limiters.ActionCredential:   {Capacity: c.Credential.Attempts, Window: c.Credential.Window},
		limiters.ActionSecondFactor: {Capacity: c.SecondFactor.Attempts, Window: c.SecondFactor.Window},
		limiters.ActionTokenRedeem:  {Capacity: c.TokenRedeem.Attempts, Window: c.TokenRedeem.Window},
	}
}

/*
====================================
TOKENS
====================================
*/

type TokensConfig struct {
	EmailVerificationTTL time.Duration `toml:"email_verification_ttl"`
	PasswordResetTTL     time.Duration `toml:"password_reset_ttl"`
	LoginBridgeTTL       time.Duration `toml:"login_bridge_ttl"`
	// ChallengeTTL bounds the gap between a passed password check and the
	// second factor.
	ChallengeTTL time.Duration `toml:"challenge_ttl"`
	RedisPrefix  string        `toml:"redis_prefix"`
}

/*
====================================
TOTP
====================================
*/

type TOTPConfig struct {
	Issuer     string `toml:"issuer"`
	Digits     int    `toml:"digits"`
	Period     int    `toml:"period"`
	Algorithm  string `toml:"algorithm"`
	Skew       int    `toml:"skew"`
	SecretSize int    `toml:"secret_size"`
	// EnforceReplayProtection rejects a code whose time step is not newer
	// than the last accepted one.
	EnforceReplayProtection bool `toml:"enforce_replay_protection"`
}

type BackupCodesConfig struct {
	Count  int `toml:"count"`
	Length int `toml:"length"`
}

/*
====================================
SESSION
====================================
*/

type SessionConfig struct {
	TTL           time.Duration `toml:"ttl"`
	SigningMethod string        `toml:"signing_method"` // "ed25519" (default) or "hs256"
	PrivateKey    []byte        `toml:"-"`
	PublicKey     []byte        `toml:"-"`
	// PrivateKeyFile and PublicKeyFile are read by LoadConfig into the key
	// fields above.
	PrivateKeyFile string        `toml:"private_key_file"`
	PublicKeyFile  string        `toml:"public_key_file"`
	Issuer         string        `toml:"issuer"`
	Audience       string        `toml:"audience"`
	KeyID          string        `toml:"key_id"`
	Leeway         time.Duration `toml:"leeway"`
}

/*
====================================
TIMEOUTS
====================================
*/

// TimeoutsConfig bounds every call to an external collaborator. An expired
// deadline fails that step with ErrInternalFailure.
type TimeoutsConfig struct {
	Store      time.Duration `toml:"store"`
	TokenStore time.Duration `toml:"token_store"`
	RateLimit  time.Duration `toml:"rate_limit"`
	Hash       time.Duration `toml:"hash"`
	Mail       time.Duration `toml:"mail"`
}

/*
====================================
AUDIT / METRICS / SECURITY
====================================
*/

type AuditConfig struct {
	Async       bool          `toml:"async"`
	BufferSize  int           `toml:"buffer_size"`
	DropIfFull  bool          `toml:"drop_if_full"`
	EmitTimeout time.Duration `toml:"emit_timeout"`
}

type MetricsConfig struct {
	Enabled                 bool `toml:"enabled"`
	EnableLatencyHistograms bool `toml:"enable_latency_histograms"`
}

type SecurityConfig struct {
	// ProductionMode tightens Validate: real work factors, signed-key
	// sessions and a non-default issuer are required.
	ProductionMode bool `toml:"production_mode"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      10,
			MaxBytes:       1024,
			MinClasses:     3,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			Register:       RatePolicy{Attempts: 3, Window: 10 * time.Minute},
			ResetRequest:   RatePolicy{Attempts: 3, Window: 10 * time.Minute},
			Credential:     RatePolicy{Attempts: 5, Window: 10 * time.Minute},
			SecondFactor:   RatePolicy{Attempts: 5, Window: 10 * time.Minute},
			TokenRedeem:    RatePolicy{Attempts: 10, Window: 10 * time.Minute},
			ResetOnSuccess: true,
			RedisPrefix:    "rl",
		},
		Tokens: TokensConfig{
			EmailVerificationTTL: 24 * time.Hour,
			PasswordResetTTL:     30 * time.Minute,
			LoginBridgeTTL:       5 * time.Minute,
			ChallengeTTL:         5 * time.Minute,
			RedisPrefix:          "ott",
		},
		TOTP: TOTPConfig{
			Issuer:                  "authflow",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			SecretSize:              20,
			EnforceReplayProtection: true,
		},
		BackupCodes: BackupCodesConfig{
			Count:  10,
			Length: 10,
		},
		Session: SessionConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "authflow",
		},
		Timeouts: TimeoutsConfig{
			Store:      2 * time.Second,
			TokenStore: 500 * time.Millisecond,
			RateLimit:  500 * time.Millisecond,
			Hash:       5 * time.Second,
			Mail:       5 * time.Second,
		},
		Audit: AuditConfig{
			Async:       false,
			BufferSize:  1024,
			DropIfFull:  true,
			EmitTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

func (c *Config) Validate() error {
	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KiB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.MinLength < 10 {
		return errors.New("Password MinLength must be >= 10")
	}
	if c.Password.MaxBytes < c.Password.MinLength || c.Password.MaxBytes > 4096 {
		return errors.New("Password MaxBytes must be between MinLength and 4096")
	}
	if c.Password.MinClasses < 0 || c.Password.MinClasses > 4 {
		return errors.New("Password MinClasses must be between 0 and 4")
	}

	// Rate limits
	for name, p := range map[string]RatePolicy{
		"Register":     c.RateLimit.Register,
		"ResetRequest": c.RateLimit.ResetRequest,
		"Credential":   c.RateLimit.Credential,
		"SecondFactor": c.RateLimit.SecondFactor,
		"TokenRedeem":  c.RateLimit.TokenRedeem,
	} {
		if p.Attempts <= 0 {
			return fmt.Errorf("RateLimit %s Attempts must be > 0", name)
		}
		if p.Window <= 0 {
			return fmt.Errorf("RateLimit %s Window must be > 0", name)
		}
	}

	// Tokens
	if c.Tokens.EmailVerificationTTL <= 0 {
		return errors.New("Tokens EmailVerificationTTL must be > 0")
	}
	if c.Tokens.PasswordResetTTL <= 0 || c.Tokens.PasswordResetTTL > 2*time.Hour {
		return errors.New("Tokens PasswordResetTTL must be > 0 and <= 2h")
	}
	if c.Tokens.LoginBridgeTTL <= 0 || c.Tokens.LoginBridgeTTL > 15*time.Minute {
		return errors.New("Tokens LoginBridgeTTL must be > 0 and <= 15m")
	}
	if c.Tokens.ChallengeTTL <= 0 || c.Tokens.ChallengeTTL > 15*time.Minute {
		return errors.New("Tokens ChallengeTTL must be > 0 and <= 15m")
	}

	// TOTP
	if strings.TrimSpace(c.TOTP.Issuer) == "" {
		return errors.New("TOTP Issuer must be set")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	if c.TOTP.SecretSize < 16 {
		return errors.New("TOTP SecretSize must be >= 16")
	}
	switch strings.ToUpper(c.TOTP.Algorithm) {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("TOTP Algorithm must be SHA1, SHA256 or SHA512")
	}

	// Backup codes
	if c.BackupCodes.Count <= 0 || c.BackupCodes.Count > 32 {
		return errors.New("BackupCodes Count must be between 1 and 32")
	}
	if c.BackupCodes.Length < 8 || c.BackupCodes.Length > 32 {
		return errors.New("BackupCodes Length must be between 8 and 32")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	switch c.Session.SigningMethod {
	case "ed25519":
		if len(c.Session.PrivateKey) == 0 {
			return errors.New("ed25519 requires PrivateKey")
		}
	case "hs256":
		if len(c.Session.PrivateKey) == 0 {
			return errors.New("hs256 requires PrivateKey")
		}
	default:
		return errors.New("unsupported Session SigningMethod")
	}

	// Timeouts
	if c.Timeouts.Store <= 0 || c.Timeouts.TokenStore <= 0 || c.Timeouts.RateLimit <= 0 ||
		c.Timeouts.Hash <= 0 || c.Timeouts.Mail <= 0 {
		return errors.New("Timeouts must all be > 0")
	}

	// Audit
	if c.Audit.Async && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when Async is true")
	}

	if c.Security.ProductionMode {
		if c.Password.Memory < 19*1024 || c.Password.Time < 2 {
			return errors.New("ProductionMode requires Password Memory >= 19456 KiB and Time >= 2")
		}
		if c.Session.SigningMethod == "hs256" && len(c.Session.PrivateKey) < 32 {
			return errors.New("ProductionMode requires an hs256 key of at least 32 bytes")
		}
		if !c.TOTP.EnforceReplayProtection {
			return errors.New("ProductionMode requires TOTP EnforceReplayProtection")
		}
		if c.Audit.Async && c.Audit.DropIfFull {
			return errors.New("ProductionMode forbids dropping audit events")
		}
	}

	return nil
}
