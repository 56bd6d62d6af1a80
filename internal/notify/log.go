package notify

import (
	"context"
	"log/slog"
)

// Log is a notifier that only writes messages to the logger. Used when no webhook is configured.
type Log struct {
	logger *slog.Logger
}

// NewLog constructs a logging notifier.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Send logs the message and always succeeds.
func (l *Log) Send(_ context.Context, message, channel string) error {
	l.logger.Info("notification", slog.String("channel", channel), slog.String("message", message))
	return nil
}
