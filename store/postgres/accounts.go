package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/MrEthical07/authflow/store"
	"github.com/google/uuid"
)

func (s *Store) CreateAccount(ctx context.Context, in store.NewAccount, now time.Time) (*store.Account, error) {
	role := in.Role
	if role == "" {
		role = store.RoleUser
	}
	acc := &store.Account{
		ID:          uuid.NewString(),
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		DisplayName: in.DisplayName,
		Role:        role,
		CreatedAt:   now.UTC(),
	}

	err := WithTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, email, display_name, role, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			acc.ID, acc.Email, acc.DisplayName, string(acc.Role), acc.CreatedAt)
		if err != nil {
			return mapError(err)
		}
		if in.PasswordHash == "" {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO credentials (account_id, password_hash, updated_at)
			 VALUES ($1, $2, $3)`,
			acc.ID, in.PasswordHash, acc.CreatedAt)
		return mapError(err)
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

const selectAccount = `SELECT id, email, display_name, role, email_verified_at, created_at FROM accounts`

func (s *Store) AccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		selectAccount+` WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email))))
}

func (s *Store) AccountByID(ctx context.Context, id string) (*store.Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}
	return scanAccount(s.db.QueryRowContext(ctx, selectAccount+` WHERE id = $1`, id))
}

func (s *Store) MarkEmailVerified(ctx context.Context, accountID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET email_verified_at = $2
		 WHERE id = $1 AND email_verified_at IS NULL`,
		accountID, at.UTC())
	if err != nil {
		return false, mapError(err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}

func scanAccount(row *sql.Row) (*store.Account, error) {
	var (
		acc      store.Account
		role     string
		verified sql.NullTime
	)
	if err := row.Scan(&acc.ID, &acc.Email, &acc.DisplayName, &role, &verified, &acc.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	acc.Role = store.Role(role)
	acc.EmailVerifiedAt = timePtr(verified)
	return &acc, nil
}
