package notify

import (
	"context"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/internal/logging"
)

type LogMailer struct {
	log logging.Logger
}

func NewLogMailer(log logging.Logger) *LogMailer {
	if log == nil {
		log = logging.Discard()
	}
	return &LogMailer{log: log}
}

func (m *LogMailer) Send(ctx context.Context, msg authflow.MailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info(ctx, "mail queued",
		"kind", msg.Kind,
		"to", msg.To,
		"expires_at", msg.ExpiresAt,
	)
	return nil
}
