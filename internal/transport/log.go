package transport

import (
	"context"
	"log/slog"
)

// LogSender writes envelopes to the log instead of delivering them.
// It serves every channel and is the default for local development.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendEmail(ctx context.Context, email Email) error {
	if err := email.Validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "email delivered to log",
		slog.String("from", email.From),
		slog.String("to", email.To),
		slog.String("subject", email.Subject),
		slog.String("text", email.Text))
	return nil
}

func (s *LogSender) SendMessage(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "message delivered to log",
		slog.String("from", msg.From),
		slog.String("to", msg.To),
		slog.String("body", msg.Body))
	return nil
}
