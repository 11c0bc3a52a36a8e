package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"trialstore/internal/audit"
	"trialstore/internal/audit/kafka"
	auditmetrics "trialstore/internal/audit/metrics"
	auditdoc "trialstore/internal/audit/store/document"
	"trialstore/internal/cache"
	"trialstore/internal/collection/metrics"
	"trialstore/internal/collection/service"
	"trialstore/internal/docstore"
	"trialstore/internal/docstore/memory"
	mongostore "trialstore/internal/docstore/mongo"
	pgstore "trialstore/internal/docstore/postgres"
	"trialstore/internal/platform/config"
	"trialstore/internal/platform/mongo"
	"trialstore/internal/platform/postgres"
	"trialstore/internal/platform/redis"
	"trialstore/internal/platform/tracing"
	"trialstore/internal/schema"
	"trialstore/internal/schema/catalog"
	schemametrics "trialstore/internal/schema/metrics"
	schemastore "trialstore/internal/schema/store"
	"trialstore/pkg/platform/circuit"
)

// app holds the long-lived dependencies shared by serve and the one-shot
// commands.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     docstore.Store
	registry  *schema.Registry
	service   *service.Service
	publisher *audit.Publisher
	analytics *cache.AnalyticsCache
	tracing   *tracing.Provider

	// checks back /health, keyed by component.
	checks  map[string]func(context.Context) error
	closers []func(context.Context) error
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger, checks: map[string]func(context.Context) error{}}
	defer func() {
		if err != nil {
			a.Close(context.WithoutCancel(ctx))
		}
	}()

	if a.tracing, err = tracing.NewProvider(ctx, cfg.Tracing); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.tracing.Shutdown)

	if a.store, err = a.openStore(ctx); err != nil {
		return nil, err
	}
	a.checks["store"] = a.store.Ping

	active, err := schema.ParseContext(cfg.Schemas.ActiveContext)
	if err != nil {
		return nil, fmt.Errorf("schemas.active_context: %w", err)
	}
	a.registry = schema.New(
		schema.WithActiveContext(active),
		schema.WithMirror(schemastore.NewDocumentMirror(a.store)),
		schema.WithBreaker(circuit.New("schema-mirror", circuit.WithFailureThreshold(3), circuit.WithCooldown(time.Minute))),
		schema.WithMetrics(schemametrics.New()),
		schema.WithTracer(a.tracing.Tracer()),
		schema.WithLogger(logger),
	)

	if err := a.openAudit(ctx); err != nil {
		return nil, err
	}
	if err := a.bootstrapSchemas(ctx); err != nil {
		return nil, err
	}

	c, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	a.analytics = cache.NewAnalyticsCache(c, cfg.Cache.TTL, logger)

	a.service = service.New(a.registry, a.store,
		service.WithAuditor(a.publisher),
		service.WithAnalyticsCache(a.analytics),
		service.WithMetrics(metrics.New()),
		service.WithTracer(a.tracing.Tracer()),
		service.WithLogger(logger),
		service.WithIrregularPlurals(cfg.Schemas.IrregularPlurals),
		service.WithMigrationLimits(cfg.Migration.Workers, cfg.Migration.Timeout),
		service.WithConformanceSample(cfg.Migration.ConformanceSample),
		service.WithReservedCollections(schemastore.CollectionName, auditdoc.CollectionName),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (docstore.Store, error) {
	switch a.cfg.Store.Backend {
	case "mongo":
		client, err := mongo.New(ctx, a.cfg.Store)
		if err != nil {
			return nil, err
		}
		a.logger.InfoContext(ctx, "document store ready", "backend", "mongo", "database", a.cfg.Store.Database)
		return mongostore.New(client.Database), nil
	case "postgres":
		db, err := postgres.Open(ctx, a.cfg.Store.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.logger.InfoContext(ctx, "document store ready", "backend", "postgres")
		return pgstore.New(db), nil
	default:
		a.logger.WarnContext(ctx, "using in-memory document store; data is lost on exit")
		return memory.New(), nil
	}
}

func (a *app) openAudit(ctx context.Context) error {
	opts := []audit.Option{
		audit.WithAsyncBuffer(a.cfg.Audit.AsyncBuffer),
		audit.WithMetrics(auditmetrics.New()),
		audit.WithLogger(a.logger),
	}
	if len(a.cfg.Audit.KafkaBrokers) > 0 {
		sink, err := kafka.New(a.cfg.Audit.KafkaBrokers, a.cfg.Audit.KafkaTopic)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { sink.Close(); return nil })
		if err := sink.EnsureTopic(ctx, 3, 1); err != nil {
			a.logger.WarnContext(ctx, "audit topic not ensured", "topic", a.cfg.Audit.KafkaTopic, "error", err)
		}
		opts = append(opts, audit.WithSinks(sink))
	}
	a.publisher = audit.NewPublisher(auditdoc.New(a.store), opts...)
	// Runs before the sink closer so buffered events still reach kafka.
	a.closers = append(a.closers, func(context.Context) error { a.publisher.Close(); return nil })
	return nil
}

// bootstrapSchemas restores mirrored versions, then registers the manifest
// and records each newly added definition.
func (a *app) bootstrapSchemas(ctx context.Context) error {
	m, err := catalog.LoadManifest(a.cfg.Schemas.ManifestPath)
	if err != nil {
		return err
	}
	cat := catalog.New(m)
	if a.cfg.Schemas.Rehydrate {
		if err := a.registry.Rehydrate(ctx, cat); err != nil {
			return err
		}
	}
	added, err := cat.Bootstrap(ctx, a.registry)
	if err != nil {
		return err
	}
	for _, def := range added {
		if err := a.publisher.Emit(ctx, audit.Event{
			Action:    audit.ActionSchemaRegistered,
			Schema:    def.Name,
			ToVersion: def.Version.String(),
			Context:   string(def.Context),
		}); err != nil {
			a.logger.WarnContext(ctx, "audit emit failed", "schema", def.Name, "error", err)
		}
	}
	a.logger.InfoContext(ctx, "schemas bootstrapped",
		"added", len(added),
		"active_context", string(a.registry.ActiveContext()),
		"fingerprint", fmt.Sprintf("%x", a.registry.Fingerprint()),
	)
	return nil
}

func (a *app) openCache(ctx context.Context) (cache.Cache, error) {
	client, err := redis.New(ctx, a.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return cache.NewLocal(a.cfg.Cache.TTL, 10*time.Minute), nil
	}
	a.closers = append(a.closers, func(context.Context) error { return client.Close() })
	a.checks["cache"] = client.Health
	return cache.NewRedis(client.Client, cache.WithNamespace(a.cfg.Cache.Namespace)), nil
}

// Close releases resources in reverse order of acquisition. The store goes
// last because the audit publisher drains into it.
func (a *app) Close(ctx context.Context) {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.WarnContext(ctx, "shutdown incomplete", "error", err)
	}
}
