package authflow

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

type totpEngine struct {
	config TOTPConfig
	opts   totp.ValidateOpts
}

func newTOTPEngine(cfg TOTPConfig) *totpEngine {
	if cfg.Algorithm == "" {
		cfg.Algorithm = "SHA1"
	}
	return &totpEngine{
		config: cfg,
		opts: totp.ValidateOpts{
			Period:    uint(cfg.Period),
			Skew:      uint(cfg.Skew),
			Digits:    otp.Digits(cfg.Digits),
			Algorithm: totpAlgorithm(cfg.Algorithm),
		},
	}
}

func totpAlgorithm(name string) otp.Algorithm {
	switch strings.ToUpper(name) {
	case "SHA256":
		return otp.AlgorithmSHA256
	case "SHA512":
		return otp.AlgorithmSHA512
	default:
		return otp.AlgorithmSHA1
	}
}

// Enroll creates a fresh secret for label and its provisioning URI.
func (m *totpEngine) Enroll(label string) (*TOTPSetup, error) {
	if m == nil {
		return nil, ErrEngineNotReady
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: label,
		Period:      m.opts.Period,
		SecretSize:  uint(m.config.SecretSize),
		Digits:      m.opts.Digits,
		Algorithm:   m.opts.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	return &TOTPSetup{Secret: key.Secret(), URI: key.URL()}, nil
}

// Verify checks code against every step in [-skew, +skew] around now and
// returns the matching step counter. Malformed codes simply do not match.
func (m *totpEngine) Verify(secret, code string, now time.Time) (int64, bool, error) {
	if m == nil {
		return 0, false, ErrEngineNotReady
	}
	code = strings.TrimSpace(code)
	if !m.wellFormed(code) {
		return 0, false, nil
	}
	if secret == "" {
		return 0, false, errors.New("empty totp secret")
	}

	period := int64(m.config.Period)
	base := now.Unix() / period
	skew := int64(m.config.Skew)
	for offset := -skew; offset <= skew; offset++ {
		counter := base + offset
		if counter < 0 {
			continue
		}
		generated, err := totp.GenerateCodeCustom(secret, time.Unix(counter*period, 0).UTC(), m.opts)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(code)) == 1 {
			return counter, true, nil
		}
	}
	return 0, false, nil
}

func (m *totpEngine) wellFormed(code string) bool {
	return len(code) == m.config.Digits && isNumericString(code)
}

// codeAt is the code for the step containing t. Tests use it to produce
// valid codes.
func (m *totpEngine) codeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, m.opts)
}

func isNumericString(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
