package notify

import (
	"context"

	"github.com/rs/zerolog"
)

// LogNotifier writes messages to a zerolog logger instead of delivering
// them. It is meant for local development and load tests.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, email, subject, body string) error {
	n.logger.Info().
		Str("to", email).
		Str("subject", subject).
		Int("body_len", len(body)).
		Msg("notification")
	return nil
}
