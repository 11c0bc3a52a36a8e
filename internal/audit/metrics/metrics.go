package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for schema audit events.
type Metrics struct {
	Persisted       *prometheus.CounterVec
	PersistFailures prometheus.Counter
	Dropped         prometheus.Counter
	SinkFailures    prometheus.Counter
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Persisted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_audit_events_persisted_total",
			Help: "Total number of audit events persisted, by action",
		}, []string{"action"}),
		PersistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trialstore_audit_persist_failures_total",
			Help: "Total number of audit events the store rejected",
		}),
		Dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "trialstore_audit_events_dropped_total",
			Help: "Total number of audit events dropped because the async buffer was full",
		}),
		SinkFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trialstore_audit_sink_failures_total",
			Help: "Total number of failed deliveries to secondary audit sinks",
		}),
	}
}

func (m *Metrics) IncPersisted(action string) {
	m.Persisted.WithLabelValues(action).Inc()
}

func (m *Metrics) IncPersistFailure() {
	m.PersistFailures.Inc()
}

func (m *Metrics) IncDropped() {
	m.Dropped.Inc()
}

func (m *Metrics) IncSinkFailure() {
	m.SinkFailures.Inc()
}
