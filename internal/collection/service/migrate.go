package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"trialstore/internal/audit"
	"trialstore/internal/collection/models"
	"trialstore/internal/docstore"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
	"trialstore/pkg/platform/sentinel"
)

// Document outcomes of a bulk migration.
const (
	outcomeMigrated = "migrated"
	outcomeStamped  = "stamped"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
)

type plan struct {
	collection string
	name       string
	from       *schema.Definition
	to         *schema.Definition
}

// MigrateCollection migrates every document of collection from the highest
// version registered for from to the highest registered for to, writing each
// back with a point update. Documents are reconciled by their version stamp:
//
//   - stamped with the target version: skipped
//   - stamped with another version: migrated from that version
//   - unstamped, valid for the target but not for the source: stamped only
//   - otherwise: migrated from the source version
//
// Migrated documents are checked against the target schema before they are
// written. Per-document failures are collected in the report and never stop
// the run. The collection context is switched to to only when nothing failed.
// Concurrent runs on one collection are rejected with a conflict.
func (s *Service) MigrateCollection(ctx context.Context, collection string, from, to schema.Context) (*models.MigrationReport, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	if !from.IsValid() || !to.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "from and to must be schema contexts")
	}
	p, err := s.plan(collection, from, to)
	if err != nil {
		return nil, err
	}

	if _, running := s.inflight.LoadOrStore(collection, struct{}{}); running {
		return nil, dErrors.New(dErrors.CodeConflict, "a migration of this collection is already running")
	}
	defer s.inflight.Delete(collection)

	if s.metrics != nil {
		s.metrics.MigrationStarted()
		defer s.metrics.MigrationFinished()
	}

	ctx, span := s.tracer.Start(ctx, "collection.migrate",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.String("schema.name", p.name),
			attribute.String("schema.from", p.from.Version.String()),
			attribute.String("schema.to", p.to.Version.String()),
		))
	defer span.End()

	report := &models.MigrationReport{
		Collection:  collection,
		Schema:      p.name,
		FromContext: from,
		ToContext:   to,
		FromVersion: p.from.Version.String(),
		ToVersion:   p.to.Version.String(),
		StartedAt:   s.now().UTC(),
	}
	s.logger.InfoContext(ctx, "collection migration started",
		"collection", collection,
		"schema", p.name,
		"from_version", report.FromVersion,
		"to_version", report.ToVersion,
		"workers", s.workers,
	)

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	runErr := s.run(runCtx, p, report)

	report.FinishedAt = s.now().UTC()
	if s.metrics != nil {
		s.metrics.ObserveMigration(collection, report.FinishedAt.Sub(report.StartedAt).Seconds())
	}

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "collection migration aborted")
		if errors.Is(runErr, context.DeadlineExceeded) {
			report.TimedOut = true
			runErr = fmt.Errorf("%w: migrating %s after %s", schema.ErrTimeout, collection, s.timeout)
		}
		s.logger.ErrorContext(ctx, "collection migration aborted",
			"collection", collection,
			"migrated", report.Migrated,
			"failed", report.Failed,
			"error", runErr,
		)
		s.emitMigration(ctx, audit.ActionMigrationFailed, report)
		return report, translate(runErr, "collection migration aborted", fromStore)
	}

	if report.Failed == 0 {
		if _, err := s.SetCollectionContext(ctx, collection, to); err != nil {
			return report, err
		}
		report.ContextUpdated = true
		s.emitMigration(ctx, audit.ActionCollectionMigrated, report)
	} else {
		span.SetStatus(codes.Error, "documents failed to migrate")
		s.emitMigration(ctx, audit.ActionMigrationFailed, report)
	}
	s.logger.InfoContext(ctx, "collection migration finished",
		"collection", collection,
		"total", report.Total,
		"migrated", report.Migrated,
		"stamped", report.Stamped,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"context_updated", report.ContextUpdated,
	)
	return report, nil
}

func (s *Service) plan(collection string, from, to schema.Context) (plan, error) {
	name := s.SchemaName(collection)
	resolve := func(c schema.Context) (*schema.Definition, error) {
		v, err := s.registry.VersionForContext(name, c)
		if err != nil {
			return nil, translate(err, fmt.Sprintf("failed to resolve %s version", c), fromInput)
		}
		def, err := s.registry.GetSchema(name, schema.ForVersion(v))
		if err != nil {
			return nil, translate(err, "failed to resolve schema", fromInput)
		}
		return def, nil
	}
	fromDef, err := resolve(from)
	if err != nil {
		return plan{}, err
	}
	toDef, err := resolve(to)
	if err != nil {
		return plan{}, err
	}
	return plan{collection: collection, name: name, from: fromDef, to: toDef}, nil
}

// run streams the collection through a bounded worker pool. It only returns
// an error when the run itself cannot continue.
func (s *Service) run(ctx context.Context, p plan, report *models.MigrationReport) error {
	coll := s.store.Collection(p.collection)
	cur, err := coll.Find(ctx, docstore.Filter{ExcludeIDs: []string{models.SentinelID}})
	if err != nil {
		return err
	}
	defer cur.Close(ctx)

	var mu sync.Mutex
	record := func(outcome string, failure *models.DocumentFailure) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case outcomeMigrated:
			report.Migrated++
		case outcomeStamped:
			report.Stamped++
		case outcomeSkipped:
			report.Skipped++
		case outcomeFailed:
			report.Failed++
			report.Failures = append(report.Failures, *failure)
		}
		if s.metrics != nil {
			s.metrics.IncDocument(p.collection, outcome)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for cur.Next(gctx) {
		doc := schema.Document(cur.Document())
		report.Total++
		g.Go(func() error {
			outcome, failure, err := s.migrateOne(gctx, coll, p, doc)
			if err != nil {
				return err
			}
			record(outcome, failure)
			return nil
		})
	}
	waitErr := g.Wait()
	if waitErr != nil {
		return waitErr
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// migrateOne returns an error only when the context is done; every other
// problem is a per-document failure.
func (s *Service) migrateOne(ctx context.Context, coll docstore.Collection, p plan, doc schema.Document) (string, *models.DocumentFailure, error) {
	id := doc.ID()
	fail := func(stage string, err error, fields []schema.FieldError) (string, *models.DocumentFailure, error) {
		return outcomeFailed, &models.DocumentFailure{ID: id, Stage: stage, Error: err.Error(), Fields: fields}, nil
	}

	source := p.from.Version
	if stamp, ok := doc.StampedVersion(); ok {
		if stamp == p.to.Version {
			return outcomeSkipped, nil, nil
		}
		source = stamp
	} else if p.from.Version != p.to.Version &&
		!s.registry.CheckDefinition(p.from, doc).OK() &&
		s.registry.CheckDefinition(p.to, doc).OK() {
		stamp := docstore.Document{schema.VersionField: p.to.Version.String()}
		if err := writeBack(ctx, coll, id, stamp); err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			return fail(models.StageWrite, err, nil)
		}
		return outcomeStamped, nil, nil
	}

	out, err := s.registry.MigrateData(p.name, doc, source, p.to.Version)
	if err != nil {
		return fail(models.StageMigrate, err, nil)
	}
	out.Stamp(p.to.Version)
	if res := s.registry.CheckDefinition(p.to, out); !res.OK() {
		return fail(models.StageValidate, res.Err(), res.Errors)
	}
	if err := writeBack(ctx, coll, id, docstore.Document(out)); err != nil {
		if ctx.Err() != nil {
			return "", nil, ctx.Err()
		}
		return fail(models.StageWrite, err, nil)
	}
	return outcomeMigrated, nil, nil
}

// writeBack point-updates one document. An update that matches nothing is a
// failure: the document was removed or its id no longer resolves.
func writeBack(ctx context.Context, coll docstore.Collection, id string, set docstore.Document) error {
	res, err := coll.UpdateOne(ctx, docstore.ByID(id), docstore.Update{Set: set}, false)
	if err != nil {
		return err
	}
	if res.Matched == 0 {
		return fmt.Errorf("write back %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Service) emitMigration(ctx context.Context, action audit.Action, r *models.MigrationReport) {
	s.emit(ctx, audit.Event{
		Action:      action,
		Collection:  r.Collection,
		Schema:      r.Schema,
		FromVersion: r.FromVersion,
		ToVersion:   r.ToVersion,
		Context:     string(r.ToContext),
		Details: map[string]any{
			"total":       r.Total,
			"migrated":    r.Migrated,
			"stamped":     r.Stamped,
			"skipped":     r.Skipped,
			"failed":      r.Failed,
			"timed_out":   r.TimedOut,
			"duration_ms": r.FinishedAt.Sub(r.StartedAt).Milliseconds(),
		},
	})
}
