package workers

import (
	"context"
	"log/slog"

	"chat-hub/domain/event"
)

// LogSink traces domain events at debug level.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Consume(_ context.Context, e event.DomainEvent) error {
	s.log.Debug("Domain event", "kind", e.Kind())
	return nil
}
