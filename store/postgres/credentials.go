package postgres

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/store"
)

func (s *Store) PasswordHash(ctx context.Context, accountID string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM credentials WHERE account_id = $1`,
		accountID).Scan(&hash)
	if err != nil {
		return "", mapError(err)
	}
	return hash, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, accountID, hash string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE credentials SET password_hash = $2, updated_at = $3 WHERE account_id = $1`,
		accountID, hash, at.UTC())
	if err != nil {
		return mapError(err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ResetPassword(ctx context.Context, accountID, hash string, at time.Time) (int64, error) {
	var revoked int64
	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO credentials (account_id, password_hash, updated_at)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (account_id) DO UPDATE
			 SET password_hash = EXCLUDED.password_hash, updated_at = EXCLUDED.updated_at`,
			accountID, hash, at.UTC())
		if err != nil {
			return mapError(err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET revoked_at = $2 WHERE account_id = $1 AND revoked_at IS NULL`,
			accountID, at.UTC())
		if err != nil {
			return mapError(err)
		}
		revoked, err = rowsAffected(res)
		return err
	})
	if err != nil {
		return 0, err
	}
	return revoked, nil
}
