package authflow

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const envPrefix = "AUTHFLOW_"

// LoadConfig starts from DefaultConfig, overlays the TOML file at path (when
// path is non-empty), then AUTHFLOW_* environment variables, and finally
// reads any configured key files. It does not call Validate.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := loadKeyFiles(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type envBinding struct {
	name  string
	apply func(cfg *Config, value string) error
}

func durationVar(target func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*target(cfg) = d
		return nil
	}
}

func intVar(target func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*target(cfg) = n
		return nil
	}
}

func boolVar(target func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*target(cfg) = b
		return nil
	}
}

func stringVar(target func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*target(cfg) = v
		return nil
	}
}

func uint32Var(target func(*Config) *uint32) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		*target(cfg) = uint32(n)
		return nil
	}
}

func ratePolicyVars(name string, target func(*Config) *RatePolicy) []envBinding {
	return []envBinding{
		{"RATE_" + name + "_ATTEMPTS", intVar(func(c *Config) *int { return &target(c).Attempts })},
		{"RATE_" + name + "_WINDOW", durationVar(func(c *Config) *time.Duration { return &target(c).Window })},
	}
}

func envBindings() []envBinding {
	b := []envBinding{
		{"PRODUCTION", boolVar(func(c *Config) *bool { return &c.Security.ProductionMode })},

		{"PASSWORD_MEMORY_KIB", uint32Var(func(c *Config) *uint32 { return &c.Password.Memory })},
		{"PASSWORD_TIME", uint32Var(func(c *Config) *uint32 { return &c.Password.Time })},
		{"PASSWORD_MIN_LENGTH", intVar(func(c *Config) *int { return &c.Password.MinLength })},

		{"RATE_RESET_ON_SUCCESS", boolVar(func(c *Config) *bool { return &c.RateLimit.ResetOnSuccess })},

		{"TOKENS_EMAIL_VERIFICATION_TTL", durationVar(func(c *Config) *time.Duration { return &c.Tokens.EmailVerificationTTL })},
		{"TOKENS_PASSWORD_RESET_TTL", durationVar(func(c *Config) *time.Duration { return &c.Tokens.PasswordResetTTL })},
		{"TOKENS_LOGIN_BRIDGE_TTL", durationVar(func(c *Config) *time.Duration { return &c.Tokens.LoginBridgeTTL })},
		{"TOKENS_CHALLENGE_TTL", durationVar(func(c *Config) *time.Duration { return &c.Tokens.ChallengeTTL })},

		{"TOTP_ISSUER", stringVar(func(c *Config) *string { return &c.TOTP.Issuer })},
		{"TOTP_ENFORCE_REPLAY_PROTECTION", boolVar(func(c *Config) *bool { return &c.TOTP.EnforceReplayProtection })},

		{"SESSION_TTL", durationVar(func(c *Config) *time.Duration { return &c.Session.TTL })},
		{"SESSION_SIGNING_METHOD", stringVar(func(c *Config) *string { return &c.Session.SigningMethod })},
		{"SESSION_PRIVATE_KEY_FILE", stringVar(func(c *Config) *string { return &c.Session.PrivateKeyFile })},
		{"SESSION_PUBLIC_KEY_FILE", stringVar(func(c *Config) *string { return &c.Session.PublicKeyFile })},
		{"SESSION_SECRET", func(c *Config, v string) error {
			key, err := base64.StdEncoding.DecodeString(v)
			if err != nil {
				return err
			}
			c.Session.PrivateKey = key
			return nil
		}},

		{"AUDIT_ASYNC", boolVar(func(c *Config) *bool { return &c.Audit.Async })},
		{"METRICS_ENABLED", boolVar(func(c *Config) *bool { return &c.Metrics.Enabled })},
	}
	b = append(b, ratePolicyVars("REGISTER", func(c *Config) *RatePolicy { return &c.RateLimit.Register })...)
	b = append(b, ratePolicyVars("RESET_REQUEST", func(c *Config) *RatePolicy { return &c.RateLimit.ResetRequest })...)
	b = append(b, ratePolicyVars("CREDENTIAL", func(c *Config) *RatePolicy { return &c.RateLimit.Credential })...)
	b = append(b, ratePolicyVars("SECOND_FACTOR", func(c *Config) *RatePolicy { return &c.RateLimit.SecondFactor })...)
	b = append(b, ratePolicyVars("TOKEN_REDEEM", func(c *Config) *RatePolicy { return &c.RateLimit.TokenRedeem })...)
	return b
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, binding := range envBindings() {
		value, ok := lookup(envPrefix + binding.name)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		if err := binding.apply(cfg, value); err != nil {
			return fmt.Errorf("config: %s%s: %w", envPrefix, binding.name, err)
		}
	}
	return nil
}

func loadKeyFiles(cfg *Config) error {
	if cfg.Session.PrivateKeyFile != "" {
		key, err := os.ReadFile(cfg.Session.PrivateKeyFile)
		if err != nil {
			return fmt.Errorf("config: session private key: %w", err)
		}
		cfg.Session.PrivateKey = key
	}
	if cfg.Session.PublicKeyFile != "" {
		key, err := os.ReadFile(cfg.Session.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("config: session public key: %w", err)
		}
		cfg.Session.PublicKey = key
	}
	return nil
}
