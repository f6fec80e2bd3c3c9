package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const (
	tokenSecretSize = 32

	// BackupCodeAlphabet omits characters that are easy to confuse when read
	// aloud or copied by hand (0/O, 1/I).
	BackupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var (
	ErrMalformedToken = errors.New("malformed token")
)

// NewTokenSecret returns a random one-time token and the SHA-256 digest that
// is stored in its place.
func NewTokenSecret() (string, [32]byte, error) {
	var raw [tokenSecretSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", [32]byte{}, err
	}
	token := base64.RawURLEncoding.EncodeToString(raw[:])
	return token, HashToken(token), nil
}

// HashToken digests a presented token. Malformed input still hashes; it just
// never matches a stored digest.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

// EncodeBridgeToken packs the account id with a token secret into one opaque
// value so the exchange step can locate the namespace without a lookup table.
func EncodeBridgeToken(accountID, secret string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(accountID)) + "." + secret
}

// DecodeBridgeToken splits a value produced by EncodeBridgeToken.
func DecodeBridgeToken(bridge string) (accountID, secret string, err error) {
	encodedID, secret, ok := strings.Cut(bridge, ".")
	if !ok || encodedID == "" || secret == "" {
		return "", "", ErrMalformedToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(encodedID)
	if err != nil || len(raw) == 0 {
		return "", "", ErrMalformedToken
	}
	return string(raw), secret, nil
}

// NewBackupCode draws length characters uniformly from BackupCodeAlphabet and
// renders them with a dash in the middle.
func NewBackupCode(length int) (string, error) {
	if length < 8 {
		return "", errors.New("backup code length must be >= 8")
	}

	max := big.NewInt(int64(len(BackupCodeAlphabet)))
	var b strings.Builder
	b.Grow(length + 1)
	for i := 0; i < length; i++ {
		if i == length/2 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(BackupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
