package authflow

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxEmailBytes       = 254
	maxDisplayNameRunes = 100
)

// normalizeEmail trims and lower-cases email and rejects anything that is not
// a bare address.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > maxEmailBytes {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 || n > maxDisplayNameRunes || !utf8.ValidString(name) {
		return "", ErrInvalidDisplayName
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidDisplayName
		}
	}
	return name, nil
}

// checkPasswordPolicy enforces length and character-class rules on a new
// password. Existing passwords are never re-checked at login.
func checkPasswordPolicy(cfg PasswordConfig, pw string) error {
	if len(pw) > cfg.MaxBytes || !utf8.ValidString(pw) {
		return ErrPasswordPolicy
	}
	if utf8.RuneCountInString(pw) < cfg.MinLength {
		return ErrPasswordPolicy
	}

	var lower, upper, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	classes := 0
	for _, present := range []bool{lower, upper, digit, symbol} {
		if present {
			classes++
		}
	}
	if classes < cfg.MinClasses {
		return ErrPasswordPolicy
	}
	return nil
}

// loginPasswordShape bounds a presented password before it reaches the
// hasher. Policy is not applied.
func loginPasswordShape(cfg PasswordConfig, pw string) error {
	if pw == "" {
		return ErrMissingField
	}
	if len(pw) > cfg.MaxBytes {
		return ErrInvalidInput
	}
	return nil
}

func normalizeTOTPCode(code string, digits int) (string, error) {
	code = strings.TrimSpace(code)
	if len(code) != digits || !isNumericString(code) {
		return "", ErrCodeFormat
	}
	return code, nil
}
