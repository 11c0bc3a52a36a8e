// Package service resolves collections to schemas and contexts, and owns every
// sanctioned read, write and migration of collection documents.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"trialstore/internal/audit"
	"trialstore/internal/cache"
	"trialstore/internal/collection/metrics"
	"trialstore/internal/docstore"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
	"trialstore/pkg/platform/sentinel"
)

// Auditor records schema state changes.
type Auditor interface {
	Emit(ctx context.Context, event audit.Event) error
}

// defaultIrregularPlurals maps collection names that do not become their
// schema name by dropping a trailing "s".
var defaultIrregularPlurals = map[string]string{
	"companies": "companies",
	"trials":    "trials",
	"analyses":  "analysis",
}

const collectionPattern = "^[a-z][a-z0-9_]{0,62}$"

const (
	defaultWorkers           = 4
	defaultMigrationTimeout  = 5 * time.Minute
	defaultConformanceSample = 100
	maxReportedErrors        = 20
)

// Service is safe for concurrent use.
type Service struct {
	registry  *schema.Registry
	store     docstore.Store
	auditor   Auditor
	analytics *cache.AnalyticsCache
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time

	plurals  map[string]string
	workers  int
	timeout  time.Duration
	sample   int
	reserved map[string]bool
	inflight sync.Map
	reports  singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.auditor = a }
}

func WithAnalyticsCache(a *cache.AnalyticsCache) Option {
	return func(s *Service) { s.analytics = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIrregularPlurals overrides or extends the collection to schema name table.
func WithIrregularPlurals(plurals map[string]string) Option {
	return func(s *Service) {
		for collection, name := range plurals {
			s.plurals[collection] = name
		}
	}
}

// WithMigrationLimits bounds bulk migrations. Non-positive values keep the
// defaults.
func WithMigrationLimits(workers int, timeout time.Duration) Option {
	return func(s *Service) {
		if workers > 0 {
			s.workers = workers
		}
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithConformanceSample sets the default sample size of ConformanceReport.
func WithConformanceSample(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sample = n
		}
	}
}

// WithReservedCollections hides internal collections from the document API.
func WithReservedCollections(names ...string) Option {
	return func(s *Service) {
		for _, n := range names {
			s.reserved[n] = true
		}
	}
}

func New(registry *schema.Registry, store docstore.Store, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		store:    store,
		logger:   slog.Default(),
		tracer:   otel.Tracer("trialstore/collection"),
		now:      time.Now,
		plurals:  make(map[string]string, len(defaultIrregularPlurals)),
		workers:  defaultWorkers,
		timeout:  defaultMigrationTimeout,
		sample:   defaultConformanceSample,
		reserved: map[string]bool{},
	}
	for collection, name := range defaultIrregularPlurals {
		s.plurals[collection] = name
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SchemaName maps a collection to the schema that describes its documents.
func (s *Service) SchemaName(collection string) string {
	if name, ok := s.plurals[collection]; ok {
		return name
	}
	return strings.TrimSuffix(collection, "s")
}

// ListRegistered maps every schema name to its versions.
func (s *Service) ListRegistered() map[string][]string {
	out := make(map[string][]string)
	for name, versions := range s.registry.ListRegistered() {
		vs := make([]string, len(versions))
		for i, v := range versions {
			vs[i] = v.String()
		}
		out[name] = vs
	}
	return out
}

func (s *Service) checkCollection(collection string) error {
	if !govalidator.Matches(collection, collectionPattern) {
		return dErrors.New(dErrors.CodeBadRequest, "invalid collection name")
	}
	if s.reserved[collection] {
		return dErrors.New(dErrors.CodeForbidden, "collection is reserved")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event",
			"action", string(event.Action),
			"collection", event.Collection,
			"error", err,
		)
	}
}

// origin says who supplied the data an error is about.
type origin int

const (
	fromInput origin = iota
	fromStore
)

// translate maps schema and store errors onto domain codes. Unknown schemas
// and shape mismatches are the caller's fault only when the caller supplied
// the name or document.
func translate(err error, msg string, o origin) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, schema.ErrTimeout):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg+": timed out")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg+": canceled")
	case errors.Is(err, schema.ErrSchemaNotFound):
		if o == fromInput {
			return dErrors.Wrap(err, dErrors.CodeNotFound, "no schema registered for collection")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	case errors.Is(err, schema.ErrNoValidSchema):
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	case errors.Is(err, schema.ErrMigrationPathNotFound):
		return dErrors.Wrap(err, dErrors.CodeUnprocessable, err.Error())
	case errors.Is(err, schema.ErrRuleFailed):
		return dErrors.Wrap(err, dErrors.CodeUnprocessable, err.Error())
	case errors.Is(err, schema.ErrValidationFailed):
		if o == fromInput {
			return dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "stored document does not match its schema")
	case errors.Is(err, schema.ErrInvalidContext), errors.Is(err, schema.ErrInvalidVersion):
		return dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg+": not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg+": conflict")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
