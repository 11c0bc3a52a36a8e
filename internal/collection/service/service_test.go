package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"trialstore/internal/audit"
	auditmem "trialstore/internal/audit/store/memory"
	"trialstore/internal/cache"
	"trialstore/internal/collection/metrics"
	"trialstore/internal/collection/models"
	"trialstore/internal/docstore"
	"trialstore/internal/docstore/memory"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

type legacyWidget struct {
	ID    string `json:"_id" valid:"required"`
	Label string `json:"label" valid:"required"`
}

type enhancedWidget struct {
	ID   string `json:"id" valid:"required"`
	Name string `json:"name" valid:"required"`
}

const widgets = "widgets"

var (
	v100 = schema.NewVersion(1, 0, 0)
	v200 = schema.NewVersion(2, 0, 0)
)

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	registry   *schema.Registry
	store      *memory.Store
	auditStore *auditmem.InMemoryStore
	cache      *cache.Local
	svc        *Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return s.now }

	s.registry = schema.New(
		schema.WithClock(clock),
		schema.WithLogger(logger),
		schema.WithActiveContext(schema.ContextLegacy),
	)
	s.registerWidget()

	s.store = memory.New()
	s.auditStore = auditmem.NewInMemoryStore()
	s.cache = cache.NewLocal(time.Minute, time.Minute)
	s.svc = s.newService(s.store)
}

func (s *ServiceSuite) newService(store docstore.Store, opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	base := []Option{
		WithAuditor(audit.NewPublisher(s.auditStore, audit.WithLogger(logger))),
		WithAnalyticsCache(cache.NewAnalyticsCache(s.cache, time.Minute, logger)),
		WithMetrics(metrics.NewWithRegisterer(prometheus.NewRegistry())),
		WithLogger(logger),
		WithClock(func() time.Time { return s.now }),
	}
	return New(s.registry, store, append(base, opts...)...)
}

func (s *ServiceSuite) registerWidget() {
	_, err := s.registry.Register(s.ctx, schema.Registration{
		Name:      "widget",
		Version:   v100,
		Context:   schema.ContextLegacy,
		Type:      schema.NewStructType[legacyWidget]("widget.legacy"),
		ValidFrom: s.now.Add(-time.Hour),
		Rules: []*schema.RuleSet{{
			Name: "widget legacy to enhanced",
			From: v100,
			To:   v200,
			Fields: map[string]schema.Rule{
				"id":   schema.Func(func(d schema.Document) any { return d.ID() }),
				"name": schema.Func(func(d schema.Document) any { return d["label"] }),
			},
		}},
	})
	s.Require().NoError(err)
	_, err = s.registry.Register(s.ctx, schema.Registration{
		Name:      "widget",
		Version:   v200,
		Context:   schema.ContextEnhanced,
		Type:      schema.NewStructType[enhancedWidget]("widget.enhanced"),
		ValidFrom: s.now.Add(-time.Hour),
	})
	s.Require().NoError(err)
}

func (s *ServiceSuite) insert(docs ...docstore.Document) {
	for _, d := range docs {
		_, err := s.store.Collection(widgets).InsertOne(s.ctx, d)
		s.Require().NoError(err)
	}
}

func (s *ServiceSuite) stored(id string) docstore.Document {
	doc, err := s.store.Collection(widgets).FindOne(s.ctx, docstore.ByID(id))
	s.Require().NoError(err)
	return doc
}

func (s *ServiceSuite) events(action audit.Action) []audit.Event {
	events, err := s.auditStore.List(s.ctx, audit.Filter{Action: action})
	s.Require().NoError(err)
	return events
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Equal(code, dErrors.CodeOf(err), err.Error())
}

func (s *ServiceSuite) TestSchemaName() {
	s.Equal("widget", s.svc.SchemaName(widgets))
	s.Equal("companies", s.svc.SchemaName("companies"))
	s.Equal("trials", s.svc.SchemaName("trials"))
	s.Equal("analysis", s.svc.SchemaName("analyses"))

	svc := s.newService(s.store, WithIrregularPlurals(map[string]string{"companies": "company"}))
	s.Equal("company", svc.SchemaName("companies"))
	s.Equal("analysis", svc.SchemaName("analyses"))
}

func (s *ServiceSuite) TestListRegistered() {
	s.Equal(map[string][]string{"widget": {"1.0.0", "2.0.0"}}, s.svc.ListRegistered())
}

func (s *ServiceSuite) TestCollectionContext() {
	s.Run("falls back to the global context", func() {
		cc, err := s.svc.CollectionContext(s.ctx, widgets)
		s.Require().NoError(err)
		s.Equal(schema.ContextLegacy, cc.Context)
		s.Equal(models.SourceGlobal, cc.Source)
		s.Nil(cc.UpdatedAt)
	})

	s.Run("set persists the sentinel and switches the registry", func() {
		cc, err := s.svc.SetCollectionContext(s.ctx, widgets, schema.ContextEnhanced)
		s.Require().NoError(err)
		s.Equal(schema.ContextEnhanced, cc.Context)
		s.Equal(schema.ContextEnhanced, s.registry.ActiveContext())

		sentinel := s.stored(models.SentinelID)
		s.Equal("enhanced", sentinel[models.FieldActiveContext])

		read, err := s.svc.CollectionContext(s.ctx, widgets)
		s.Require().NoError(err)
		s.Equal(schema.ContextEnhanced, read.Context)
		s.Equal(models.SourceCollection, read.Source)
		s.Require().NotNil(read.UpdatedAt)
		s.True(read.UpdatedAt.Equal(s.now))

		events := s.events(audit.ActionContextChanged)
		s.Require().Len(events, 1)
		s.Equal(widgets, events[0].Collection)
		s.Equal("enhanced", events[0].Context)
	})

	s.Run("rejects unknown contexts", func() {
		_, err := s.svc.SetCollectionContext(s.ctx, widgets, schema.Context("beta"))
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("rejects malformed collection names", func() {
		_, err := s.svc.CollectionContext(s.ctx, "Bad Name")
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("corrupt sentinel is internal", func() {
		_, err := s.store.Collection("gadgets").UpdateOne(s.ctx, docstore.ByID(models.SentinelID),
			docstore.Update{Set: docstore.Document{models.FieldActiveContext: "nonsense"}}, true)
		s.Require().NoError(err)
		_, err = s.svc.CollectionContext(s.ctx, "gadgets")
		s.requireCode(err, dErrors.CodeInternal)
	})
}

func (s *ServiceSuite) TestReservedCollections() {
	svc := s.newService(s.store, WithReservedCollections("schema_versions"))
	_, err := svc.CollectionContext(s.ctx, "schema_versions")
	s.requireCode(err, dErrors.CodeForbidden)
}

func (s *ServiceSuite) TestValidateDocument() {
	legacy := schema.Document{"_id": "w1", "label": "one"}

	s.Run("valid in the active context", func() {
		ok, err := s.svc.ValidateDocument(s.ctx, widgets, legacy, "")
		s.Require().NoError(err)
		s.True(ok)
	})

	s.Run("invalid in an explicit context is not an error", func() {
		ok, err := s.svc.ValidateDocument(s.ctx, widgets, legacy, schema.ContextEnhanced)
		s.Require().NoError(err)
		s.False(ok)
	})

	s.Run("check carries field errors", func() {
		res, err := s.svc.CheckDocument(s.ctx, widgets, schema.Document{"_id": "w1"}, schema.ContextLegacy)
		s.Require().NoError(err)
		s.Equal(schema.StatusInvalid, res.Status)
		s.NotEmpty(res.Errors)
	})

	s.Run("unknown collection schema", func() {
		_, err := s.svc.ValidateDocument(s.ctx, "gadgets", legacy, "")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("context without a schema is internal", func() {
		_, err := s.svc.ValidateDocument(s.ctx, widgets, legacy, schema.ContextFuture)
		s.requireCode(err, dErrors.CodeInternal)
	})

	s.Run("unknown context", func() {
		_, err := s.svc.ValidateDocument(s.ctx, widgets, legacy, schema.Context("beta"))
		s.requireCode(err, dErrors.CodeBadRequest)
	})
}

func (s *ServiceSuite) TestMigrateDocument() {
	s.Run("legacy to enhanced", func() {
		in := schema.Document{"_id": "abc123", "label": "Widget"}
		out, err := s.svc.MigrateDocument(s.ctx, widgets, in, schema.ContextLegacy, schema.ContextEnhanced)
		s.Require().NoError(err)
		s.Equal("abc123", out["id"])
		s.Equal("Widget", out["name"])
		s.Equal("2.0.0", out[schema.VersionField])
		s.NotContains(in, schema.VersionField)
	})

	s.Run("a stamp at the target needs no rules", func() {
		in := schema.Document{"id": "x", "name": "y", schema.VersionField: "2.0.0"}
		out, err := s.svc.MigrateDocument(s.ctx, widgets, in, schema.ContextLegacy, schema.ContextEnhanced)
		s.Require().NoError(err)
		s.Equal(in, out)
	})

	s.Run("no path backwards", func() {
		_, err := s.svc.MigrateDocument(s.ctx, widgets, schema.Document{"id": "x"}, schema.ContextEnhanced, schema.ContextLegacy)
		s.requireCode(err, dErrors.CodeUnprocessable)
	})

	s.Run("unknown stamp", func() {
		in := schema.Document{"_id": "x", schema.VersionField: "1.5.0"}
		_, err := s.svc.MigrateDocument(s.ctx, widgets, in, schema.ContextLegacy, schema.ContextEnhanced)
		s.requireCode(err, dErrors.CodeUnprocessable)
	})
}

func (s *ServiceSuite) TestValidateOrMigrate() {
	s.Run("valid documents are stamped", func() {
		out, err := s.svc.ValidateOrMigrate(s.ctx, widgets, schema.Document{"_id": "w1", "label": "one"}, "")
		s.Require().NoError(err)
		s.Equal("1.0.0", out[schema.VersionField])
	})

	s.Run("unstamped documents migrate from legacy", func() {
		out, err := s.svc.ValidateOrMigrate(s.ctx, widgets, schema.Document{"_id": "w1", "label": "one"}, schema.ContextEnhanced)
		s.Require().NoError(err)
		s.Equal("one", out["name"])
		s.Equal("2.0.0", out[schema.VersionField])
	})

	s.Run("documents that neither fit nor migrate", func() {
		_, err := s.svc.ValidateOrMigrate(s.ctx, widgets, schema.Document{"color": "red"}, schema.ContextEnhanced)
		s.requireCode(err, dErrors.CodeValidation)
	})
}

func (s *ServiceSuite) TestPutAndGetDocument() {
	_, err := s.svc.SetCollectionContext(s.ctx, widgets, schema.ContextEnhanced)
	s.Require().NoError(err)

	s.Run("put migrates legacy input", func() {
		out, err := s.svc.PutDocument(s.ctx, widgets, "w1", schema.Document{"label": "one"})
		s.Require().NoError(err)
		s.Equal("w1", out["id"])
		s.Equal("2.0.0", out[schema.VersionField])

		stored := s.stored("w1")
		s.Equal("one", stored["name"])

		events := s.events(audit.ActionDocumentMigrated)
		s.Require().Len(events, 1)
		s.Equal("1.0.0", events[0].FromVersion)
		s.Equal("2.0.0", events[0].ToVersion)
	})

	s.Run("get returns the stored document", func() {
		out, err := s.svc.GetDocument(s.ctx, widgets, "w1")
		s.Require().NoError(err)
		s.Equal("one", out["name"])
	})

	s.Run("put rejects the sentinel id", func() {
		_, err := s.svc.PutDocument(s.ctx, widgets, models.SentinelID, schema.Document{"id": "x", "name": "y"})
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("put rejects invalid input", func() {
		_, err := s.svc.PutDocument(s.ctx, widgets, "w2", schema.Document{"color": "red"})
		s.requireCode(err, dErrors.CodeValidation)
		_, err = s.store.Collection(widgets).FindOne(s.ctx, docstore.ByID("w2"))
		s.Error(err)
	})

	s.Run("get of a missing document", func() {
		_, err := s.svc.GetDocument(s.ctx, widgets, "nope")
		s.requireCode(err, dErrors.CodeNotFound)
	})

	s.Run("stored garbage is internal", func() {
		s.insert(docstore.Document{"_id": "w3", "color": "red"})
		_, err := s.svc.GetDocument(s.ctx, widgets, "w3")
		s.requireCode(err, dErrors.CodeInternal)
	})
}

func (s *ServiceSuite) TestSchemaInfo() {
	info, err := s.svc.SchemaInfo(s.ctx, widgets)
	s.Require().NoError(err)
	s.Equal("widget", info.Schema)
	s.Equal([]string{"1.0.0", "2.0.0"}, info.Versions)
	s.Equal(map[string]string{"1.0.0": "legacy", "2.0.0": "enhanced"}, info.Contexts)
	s.Equal(schema.ContextLegacy, info.CollectionContext)
	s.Equal("1.0.0", info.CurrentVersion)
	s.False(info.HasLegacy)

	_, err = s.svc.SchemaInfo(s.ctx, "gadgets")
	s.requireCode(err, dErrors.CodeNotFound)
}
