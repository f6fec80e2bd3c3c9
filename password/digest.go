package password

import (
	"crypto/sha256"
	"strings"
)

// DigestBackupCode returns the lookup digest for a backup code. Codes are
// high-entropy random strings, so a fast hash is enough; binding the account id
// keeps identical codes on two accounts from sharing a digest.
func DigestBackupCode(accountID, code string) [32]byte {
	canonical := CanonicalBackupCode(code)

	h := sha256.New()
	h.Write([]byte(accountID))
	h.Write([]byte{0})
	h.Write([]byte(canonical))

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// CanonicalBackupCode upper-cases a code and strips the separators users tend
// to type or paste.
func CanonicalBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	return strings.NewReplacer("-", "", " ", "").Replace(code)
}
