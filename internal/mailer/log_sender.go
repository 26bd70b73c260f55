// Package mailer delivers rendered withdrawal notifications.
package mailer

import (
	"context"
	"log/slog"

	"pixwithdraw/internal/domain"
)

// LogSender writes messages to the log instead of delivering them. It is
// used in development.
type LogSender struct {
	from   string
	logger *slog.Logger
}

func NewLogSender(from string, logger *slog.Logger) *LogSender {
	return &LogSender{from: from, logger: logger}
}

func (s *LogSender) Send(_ context.Context, recipient string, msg domain.Message) error {
	s.logger.Info("notification", "from", s.from, "to", recipient, "subject", msg.Subject, "body", msg.Body)
	return nil
}
