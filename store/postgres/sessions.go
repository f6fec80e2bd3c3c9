package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/MrEthical07/authflow/store"
	"github.com/google/uuid"
)

func (s *Store) CreateSession(ctx context.Context, sess store.Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, created_at, expires_at) VALUES ($1, $2, $3, $4)`,
		sess.ID, sess.AccountID, sess.CreatedAt.UTC(), sess.ExpiresAt.UTC())
	return mapError(err)
}

func (s *Store) Session(ctx context.Context, id string) (*store.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, store.ErrNotFound
	}

	var (
		sess    store.Session
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, created_at, expires_at, revoked_at FROM sessions WHERE id = $1`,
		id).Scan(&sess.ID, &sess.AccountID, &sess.CreatedAt, &sess.ExpiresAt, &revoked)
	if err != nil {
		return nil, mapError(err)
	}
	sess.RevokedAt = timePtr(revoked)
	return &sess, nil
}

func (s *Store) RevokeSession(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`,
		id, at.UTC())
	if err != nil {
		return false, mapError(err)
	}
	n, err := rowsAffected(res)
	return n == 1, err
}
