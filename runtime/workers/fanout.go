package workers

import (
	"context"
	"log/slog"

	"chat-hub/contract"
	"chat-hub/domain/event"
)

// EventFanout forwards post-relay domain events to in-process sinks
// (search index, metrics, logs). Best-effort, no delivery or ordering
// guarantees; it is not a message broker and never sits on the relay
// path.
type EventFanout struct {
	log    *slog.Logger
	events <-chan event.DomainEvent
	sinks  []contract.EventSink
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, sinks ...contract.EventSink) *EventFanout {
	return &EventFanout{log: log, events: events, sinks: sinks}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case e, ok := <-w.events:
			if !ok {
				return nil
			}
			w.fanout(ctx, e)
		}
	}
}

// fanout isolates sink failures: one failing sink never starves the
// others.
func (w *EventFanout) fanout(ctx context.Context, e event.DomainEvent) {
	for _, sink := range w.sinks {
		if err := sink.Consume(ctx, e); err != nil {
			w.log.Warn("Sink rejected event", "kind", e.Kind(), "error", err)
		}
	}
}
