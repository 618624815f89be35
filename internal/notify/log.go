package notify

import (
	"context"

	"github.com/rs/zerolog"

	"donasi/internal/domain"
)

// LogNotifier writes each transition as a structured log entry carrying a
// donor-facing message in the configured locale. It stands in for the
// email/SMS channels, which live outside this service.
type LogNotifier struct {
	logger zerolog.Logger
	format Formatter
}

func NewLogNotifier(logger zerolog.Logger, locale string) *LogNotifier {
	return &LogNotifier{
		logger: logger.With().Str("component", "notify.log").Logger(),
		format: NewFormatter(locale),
	}
}

func (n *LogNotifier) NotifyTransition(_ context.Context, t domain.Transition) error {
	n.logger.Info().
		Str("donation_id", t.DonationID).
		Str("source", string(t.Source)).
		Str("source_event_id", t.SourceEventID).
		Str("status", string(t.To)).
		Str("period", t.PeriodKey).
		Msg(n.format.Message(t.To, t.Amount))
	return nil
}
