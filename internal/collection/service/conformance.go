package service

import (
	"context"
	"fmt"

	"trialstore/internal/audit"
	"trialstore/internal/collection/models"
	"trialstore/internal/docstore"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

const maxConformanceSample = 10000

// ConformanceReport checks up to sample documents (the configured default
// when sample is 0) against the schema of the collection's context before a
// schema change. Reports are always built from the live collection;
// concurrent requests for the same report share one build.
func (s *Service) ConformanceReport(ctx context.Context, collection string, sample int) (*models.ConformanceReport, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	if sample < 0 || sample > maxConformanceSample {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("sample must be between 1 and %d", maxConformanceSample))
	}
	if sample == 0 {
		sample = s.sample
	}
	cc, err := s.CollectionContext(ctx, collection)
	if err != nil {
		return nil, err
	}
	name := s.SchemaName(collection)
	def, err := s.registry.GetSchema(name, schema.ForContext(cc.Context))
	if err != nil {
		return nil, translate(err, "failed to resolve schema", fromInput)
	}

	key := fmt.Sprintf("%s:%s:%s:%d", collection, cc.Context, def.Version, sample)
	v, err, _ := s.reports.Do(key, func() (any, error) {
		return s.buildConformance(ctx, collection, cc.Context, def, sample)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.ConformanceReport), nil
}

func (s *Service) buildConformance(ctx context.Context, collection string, c schema.Context, def *schema.Definition, sample int) (*models.ConformanceReport, error) {
	coll := s.store.Collection(collection)
	filter := docstore.Filter{ExcludeIDs: []string{models.SentinelID}}
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, translate(err, "failed to count documents", fromStore)
	}
	cur, err := coll.Find(ctx, filter, docstore.WithLimit(int64(sample)))
	if err != nil {
		return nil, translate(err, "failed to sample documents", fromStore)
	}
	docs, err := docstore.All(ctx, cur)
	if err != nil {
		return nil, translate(err, "failed to sample documents", fromStore)
	}

	report := &models.ConformanceReport{
		Collection:  collection,
		Schema:      def.Name,
		Context:     c,
		Version:     def.Version.String(),
		TotalCount:  total,
		Sampled:     len(docs),
		GeneratedAt: s.now().UTC(),
	}
	for _, d := range docs {
		res := s.registry.CheckDefinition(def, schema.Document(d))
		switch res.Status {
		case schema.StatusValid:
			report.Compliant++
			continue
		case schema.StatusInvalid:
			report.NonCompliant++
		default:
			report.InternalErrors++
		}
		if len(report.Errors) < maxReportedErrors {
			report.Errors = append(report.Errors, models.DocumentFailure{
				ID:     d.ID(),
				Stage:  models.StageValidate,
				Error:  res.Err().Error(),
				Fields: res.Errors,
			})
		}
	}
	report.SafeToProceed = report.NonCompliant == 0 && report.InternalErrors == 0
	if s.metrics != nil && report.Sampled > 0 {
		s.metrics.SetConformance(collection, float64(report.Compliant)/float64(report.Sampled))
	}
	s.logger.InfoContext(ctx, "conformance report built",
		"collection", collection,
		"schema", def.Name,
		"version", report.Version,
		"sampled", report.Sampled,
		"non_compliant", report.NonCompliant,
		"safe_to_proceed", report.SafeToProceed,
	)
	s.emit(ctx, audit.Event{
		Action:     audit.ActionConformanceReported,
		Collection: collection,
		Schema:     def.Name,
		ToVersion:  report.Version,
		Context:    string(c),
		Details: map[string]any{
			"sampled":         report.Sampled,
			"non_compliant":   report.NonCompliant,
			"internal_errors": report.InternalErrors,
			"safe_to_proceed": report.SafeToProceed,
		},
	})
	return report, nil
}

// SchemaInfo describes the schema behind collection: its versions, which
// context each belongs to, and which one currently applies.
func (s *Service) SchemaInfo(ctx context.Context, collection string) (*models.SchemaInfo, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	name := s.SchemaName(collection)
	defs, err := s.registry.Definitions(name)
	if err != nil {
		return nil, translate(err, "failed to list schema versions", fromInput)
	}
	cc, err := s.CollectionContext(ctx, collection)
	if err != nil {
		return nil, err
	}
	info := &models.SchemaInfo{
		Collection:        collection,
		Schema:            name,
		Versions:          make([]string, 0, len(defs)),
		Contexts:          make(map[string]string, len(defs)),
		ActiveContext:     s.registry.ActiveContext(),
		CollectionContext: cc.Context,
	}
	for _, d := range defs {
		info.Versions = append(info.Versions, d.Version.String())
		info.Contexts[d.Version.String()] = string(d.Context)
	}
	if def, err := s.registry.GetSchema(name, schema.ForContext(cc.Context)); err == nil {
		info.CurrentVersion = def.Version.String()
	}
	_, info.HasLegacy = s.registry.LegacyType(name)
	return info, nil
}
