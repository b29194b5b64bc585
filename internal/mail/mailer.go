// Package mail renders member notification emails and delivers them through
// Amazon SES, SMTP, or the structured log.
package mail

import (
	"context"
	"log/slog"
)

// Message is a single outgoing email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a sender for local development.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "email not delivered (log driver)", "to", msg.To, "subject", msg.Subject)
	return nil
}
