package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the schema registry.
// Tracks registrations, validation outcomes, migrations and mirror health.
type Metrics struct {
	Registrations  *prometheus.CounterVec
	Validations    *prometheus.CounterVec
	Migrations     *prometheus.CounterVec
	MirrorFailures prometheus.Counter
	MirrorSkipped  prometheus.Counter
	ContextFlips   *prometheus.CounterVec
}

// New registers the registry metrics on the default registerer.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_schema_registrations_total",
			Help: "Schema definitions registered, by schema name",
		}, []string{"schema"}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_schema_validations_total",
			Help: "Document validations, by schema name and outcome (valid, invalid, internal_error)",
		}, []string{"schema", "status"}),
		Migrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_schema_migrations_total",
			Help: "Single document migrations, by schema name and outcome",
		}, []string{"schema", "outcome"}),
		MirrorFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "trialstore_schema_mirror_failures_total",
			Help: "Failed best-effort writes of the registry version pointer",
		}),
		MirrorSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "trialstore_schema_mirror_skipped_total",
			Help: "Mirror writes skipped because the circuit was open",
		}),
		ContextFlips: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_schema_active_context_changes_total",
			Help: "Changes of the process-wide active context, by new context",
		}, []string{"context"}),
	}
}

func (m *Metrics) IncRegistration(schema string) {
	m.Registrations.WithLabelValues(schema).Inc()
}

func (m *Metrics) IncValidation(schema, status string) {
	m.Validations.WithLabelValues(schema, status).Inc()
}

func (m *Metrics) IncMigration(schema, outcome string) {
	m.Migrations.WithLabelValues(schema, outcome).Inc()
}

func (m *Metrics) IncMirrorFailure() { m.MirrorFailures.Inc() }

func (m *Metrics) IncMirrorSkipped() { m.MirrorSkipped.Inc() }

func (m *Metrics) IncContextFlip(context string) {
	m.ContextFlips.WithLabelValues(context).Inc()
}
