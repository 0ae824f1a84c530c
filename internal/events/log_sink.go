package events

import (
	"context"
	"log/slog"
)

// LogSink writes every event to a logger at DEBUG level.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string {
	return "log"
}

func (s *LogSink) Deliver(ctx context.Context, event Event) error {
	s.logger.DebugContext(ctx, "domain event",
		slog.String("event_id", event.ID),
		slog.String("event_type", string(event.Type)),
		slog.String("reservation_id", event.ReservationID),
		slog.String("resource_id", event.ResourceID),
	)
	return nil
}
