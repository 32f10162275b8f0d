package background

import (
	"context"
	"errors"
	"log/slog"
)

// Email is an outgoing message.
type Email struct {
	To      string
	Subject string
	Body    string
}

// EmailSender delivers emails.
type EmailSender interface {
	Send(ctx context.Context, email Email) error
}

// LogEmailSender writes emails to the log instead of sending them.
type LogEmailSender struct {
	logger *slog.Logger
}

// NewLogEmailSender creates a log-backed sender.
func NewLogEmailSender(logger *slog.Logger) *LogEmailSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmailSender{logger: logger}
}

// Send logs the email.
func (s *LogEmailSender) Send(ctx context.Context, email Email) error {
	if email.To == "" {
		return errors.New("email has no recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Sent email", "to", email.To, "subject", email.Subject)
	return nil
}
