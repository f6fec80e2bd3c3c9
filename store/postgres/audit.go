package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/MrEthical07/authflow/internal/audit"
)

// AuditSink appends audit events to the auth_events table.
type AuditSink struct {
	db DBTX
}

func NewAuditSink(db DBTX) *AuditSink {
	return &AuditSink{db: db}
}

func (s *AuditSink) Emit(ctx context.Context, event audit.Event) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return err
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO auth_events
		 (occurred_at, kind, state, success, account_id, session_id, ip, user_agent, reason, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.Timestamp.UTC(),
		event.Kind,
		event.State,
		event.Success,
		nullString(event.AccountID),
		nullString(event.SessionID),
		nullString(event.IP),
		nullString(event.UserAgent),
		nullString(event.Reason),
		nullString(string(metadata)),
	)
	return mapError(err)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
