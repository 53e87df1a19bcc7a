package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox dispatch outcomes.
const (
	OutboxPublished = "published"
	OutboxRetry     = "retry"
	OutboxParked    = "parked"
)

// OutboxMetrics tracks the publisher loop. A nil receiver is a no-op.
type OutboxMetrics struct {
	events      *prometheus.CounterVec
	drains      *prometheus.HistogramVec
	lastPublish prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	m := &OutboxMetrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lastmile_outbox_events_total",
			Help: "Outbox rows handled by the publisher, by event type and outcome.",
		}, []string{"event_type", "outcome"}),
		drains: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lastmile_outbox_drain_duration_seconds",
			Help:    "Time spent on one locked outbox batch.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 7),
		}, []string{"result"}),
		lastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lastmile_outbox_last_publish_timestamp_seconds",
			Help: "Unix time of the most recent successful publish.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.events, m.drains, m.lastPublish)
	}
	return m
}

// Dispatched records the outcome for one row.
func (m *OutboxMetrics) Dispatched(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
	if outcome == OutboxPublished {
		m.lastPublish.SetToCurrentTime()
	}
}

// Drained records one batch transaction.
func (m *OutboxMetrics) Drained(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.drains.WithLabelValues(result).Observe(elapsed.Seconds())
}
