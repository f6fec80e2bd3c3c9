package authflow

import (
	"github.com/MrEthical07/authflow/internal"
	"github.com/MrEthical07/authflow/password"
)

// backupBatch is a freshly generated set of backup codes. Plain is shown to
// the user once; only Digests are persisted.
type backupBatch struct {
	Plain   []string
	Digests [][32]byte
}

func newBackupBatch(accountID string, cfg BackupCodesConfig) (*backupBatch, error) {
	batch := &backupBatch{
		Plain:   make([]string, 0, cfg.Count),
		Digests: make([][32]byte, 0, cfg.Count),
	}
	seen := make(map[string]struct{}, cfg.Count)
	for len(batch.Plain) < cfg.Count {
		code, err := internal.NewBackupCode(cfg.Length)
		if err != nil {
			return nil, err
		}
		canonical := password.CanonicalBackupCode(code)
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		batch.Plain = append(batch.Plain, code)
		batch.Digests = append(batch.Digests, password.DigestBackupCode(accountID, code))
	}
	return batch, nil
}

// backupCodeWellFormed reports whether code could have come from a batch of
// the configured length. Anything else is rejected without a store round trip.
func backupCodeWellFormed(code string, length int) bool {
	canonical := password.CanonicalBackupCode(code)
	if len(canonical) != length {
		return false
	}
	for i := 0; i < len(canonical); i++ {
		if !isBackupAlphabet(canonical[i]) {
			return false
		}
	}
	return true
}

func isBackupAlphabet(c byte) bool {
	for i := 0; i < len(internal.BackupCodeAlphabet); i++ {
		if internal.BackupCodeAlphabet[i] == c {
			return true
		}
	}
	return false
}
