package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for collection-level schema operations.
type Metrics struct {
	DocumentsMigrated  *prometheus.CounterVec
	MigrationDuration  *prometheus.HistogramVec
	MigrationsInFlight prometheus.Gauge
	ContextChanges     *prometheus.CounterVec
	ConformanceRatio   *prometheus.GaugeVec
	CacheLookups       *prometheus.CounterVec
}

func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsMigrated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_collection_documents_migrated_total",
			Help: "Documents processed by bulk migration, by collection and outcome",
		}, []string{"collection", "outcome"}),
		MigrationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trialstore_collection_migration_duration_seconds",
			Help:    "Wall time of bulk collection migrations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"collection"}),
		MigrationsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Name: "trialstore_collection_migrations_in_flight",
			Help: "Bulk migrations currently running",
		}),
		ContextChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_collection_context_changes_total",
			Help: "Collection context pointer changes, by collection and new context",
		}, []string{"collection", "context"}),
		ConformanceRatio: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trialstore_collection_conformance_ratio",
			Help: "Share of the last sampled documents that conform to the collection schema",
		}, []string{"collection"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "trialstore_collection_cache_lookups_total",
			Help: "Conformance and analytics cache lookups, by kind and result",
		}, []string{"kind", "result"}),
	}
}

func (m *Metrics) IncDocument(collection, outcome string) {
	m.DocumentsMigrated.WithLabelValues(collection, outcome).Inc()
}

func (m *Metrics) ObserveMigration(collection string, seconds float64) {
	m.MigrationDuration.WithLabelValues(collection).Observe(seconds)
}

func (m *Metrics) MigrationStarted() {
	m.MigrationsInFlight.Inc()
}

func (m *Metrics) MigrationFinished() {
	m.MigrationsInFlight.Dec()
}

func (m *Metrics) IncContextChange(collection, context string) {
	m.ContextChanges.WithLabelValues(collection, context).Inc()
}

func (m *Metrics) SetConformance(collection string, ratio float64) {
	m.ConformanceRatio.WithLabelValues(collection).Set(ratio)
}

func (m *Metrics) IncCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(kind, result).Inc()
}
