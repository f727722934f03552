// Package observability holds the Prometheus metric set for the fan-out
// core. All metrics register against an injectable Registerer so tests
// can use a private registry.
package observability

import (
	"context"

	"chat-hub/domain/event"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "chathub"

type Metrics struct {
	EventsTotal       *prometheus.CounterVec
	EventErrors       *prometheus.CounterVec
	EventDuration     *prometheus.HistogramVec
	DeliveriesTotal   prometheus.Counter
	DeliveryFailures  prometheus.Counter
	DroppedEvents     prometheus.Counter
	ActiveConnections prometheus.Gauge
	SinkEvents        *prometheus.CounterVec
}

func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound frames processed, by type",
		}, []string{"type"}),

		EventErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Rejected frames, by type and error code",
		}, []string{"type", "code"}),

		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Frame processing duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),

		DeliveriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Frames written to live connections",
		}),

		DeliveryFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-connection write failures during fan-out",
		}),

		DroppedEvents: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Frames dropped: unknown type or full side-effect channel",
		}),

		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Live registered connections",
		}),

		SinkEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_events_total",
			Help:      "Post-relay domain events fanned out to sinks, by kind",
		}, []string{"kind"}),
	}
}

// Sink counts post-relay domain events; wired into the fan-out worker.
type Sink struct {
	metrics *Metrics
}

func NewSink(metrics *Metrics) *Sink {
	return &Sink{metrics: metrics}
}

func (s *Sink) Consume(_ context.Context, e event.DomainEvent) error {
	s.metrics.SinkEvents.WithLabelValues(e.Kind()).Inc()
	return nil
}
