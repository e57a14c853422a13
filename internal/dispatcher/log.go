package dispatcher

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of a mail transport.
// Used in development when no transport is configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "mail").Logger()}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.Info().
		Str("message_id", msg.ID).
		Str("to", msg.Email).
		Str("name", msg.Name).
		Str("subject", msg.Subject).
		Str("template", msg.Template).
		Msg("mail")
	return nil
}
