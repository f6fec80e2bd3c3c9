package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/authflow/store"
)

func (s *Store) SaveEnrollment(ctx context.Context, accountID, secret string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO totp_enrollments (account_id, secret, verified, last_used_step, created_at)
		 VALUES ($1, $2, FALSE, 0, $3)
		 ON CONFLICT (account_id) DO UPDATE
		 SET secret = EXCLUDED.secret, last_used_step = 0, last_used_at = NULL, created_at = EXCLUDED.created_at
		 WHERE totp_enrollments.verified = FALSE`,
		accountID, secret, at.UTC())
	if err != nil {
		return mapError(err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrConflict
	}
	return nil
}

func (s *Store) Enrollment(ctx context.Context, accountID string) (*store.TOTPEnrollment, error) {
	var (
		enr      store.TOTPEnrollment
		lastUsed sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT account_id, secret, verified, last_used_step, last_used_at, created_at
		 FROM totp_enrollments WHERE account_id = $1`,
		accountID).Scan(&enr.AccountID, &enr.Secret, &enr.Verified, &enr.LastUsedStep, &lastUsed, &enr.CreatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	enr.LastUsedAt = timePtr(lastUsed)
	return &enr, nil
}

func (s *Store) ActivateEnrollment(ctx context.Context, accountID string, step int64, at time.Time, codes [][32]byte) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE totp_enrollments SET verified = TRUE, last_used_step = $2, last_used_at = $3
			 WHERE account_id = $1 AND verified = FALSE`,
			accountID, step, at.UTC())
		if err != nil {
			return mapError(err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return store.ErrConflict
		}
		return replaceBackupCodes(ctx, tx, accountID, codes)
	})
}

func (s *Store) RecordStep(ctx context.Context, accountID string, step int64, at time.Time, strict bool) (bool, error) {
	query := `UPDATE totp_enrollments SET last_used_step = GREATEST(last_used_step, $2), last_used_at = $3
		 WHERE account_id = $1`
	if strict {
		query = `UPDATE totp_enrollments SET last_used_step = $2, last_used_at = $3
		 WHERE account_id = $1 AND last_used_step < $2`
	}

	res, err := s.db.ExecContext(ctx, query, accountID, step, at.UTC())
	if err != nil {
		return false, mapError(err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func (s *Store) DeleteEnrollment(ctx context.Context, accountID string) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE account_id = $1`, accountID); err != nil {
			return mapError(err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM totp_enrollments WHERE account_id = $1`, accountID); err != nil {
			return mapError(err)
		}
		return nil
	})
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID string, codes [][32]byte) error {
	return WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return replaceBackupCodes(ctx, tx, accountID, codes)
	})
}

func (s *Store) RedeemBackupCode(ctx context.Context, accountID string, hash [32]byte, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE backup_codes SET used_at = $3
		 WHERE account_id = $1 AND code_hash = $2 AND used_at IS NULL`,
		accountID, hash[:], at.UTC())
	if err != nil {
		return false, mapError(err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *Store) UnusedBackupCodes(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM backup_codes WHERE account_id = $1 AND used_at IS NULL`,
		accountID).Scan(&n)
	if err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

func replaceBackupCodes(ctx context.Context, tx DBTX, accountID string, codes [][32]byte) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM backup_codes WHERE account_id = $1`, accountID); err != nil {
		return mapError(err)
	}
	for _, code := range codes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO backup_codes (account_id, code_hash) VALUES ($1, $2)`,
			accountID, code[:]); err != nil {
			return mapError(err)
		}
	}
	return nil
}
