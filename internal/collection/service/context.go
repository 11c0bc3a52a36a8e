package service

import (
	"context"
	"errors"
	"time"

	"trialstore/internal/audit"
	"trialstore/internal/collection/models"
	"trialstore/internal/docstore"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
	"trialstore/pkg/platform/sentinel"
)

// CollectionContext reads the collection's sentinel record. Without one the
// registry's active context applies.
func (s *Service) CollectionContext(ctx context.Context, collection string) (*models.CollectionContext, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	doc, err := s.store.Collection(collection).FindOne(ctx, docstore.ByID(models.SentinelID))
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.CollectionContext{
			Collection: collection,
			Context:    s.registry.ActiveContext(),
			Source:     models.SourceGlobal,
		}, nil
	}
	if err != nil {
		return nil, translate(err, "failed to read collection context", fromStore)
	}

	raw, _ := doc[models.FieldActiveContext].(string)
	c, err := schema.ParseContext(raw)
	if err != nil {
		s.logger.ErrorContext(ctx, "collection sentinel holds an unknown context",
			"collection", collection,
			"active_context", raw,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "collection context record is corrupt")
	}
	out := &models.CollectionContext{
		Collection: collection,
		Context:    c,
		Source:     models.SourceCollection,
	}
	if t, ok := parseTime(doc[models.FieldUpdatedAt]); ok {
		out.UpdatedAt = &t
	}
	return out, nil
}

// SetCollectionContext persists c in the collection's sentinel, then makes c
// the registry's active context. The durable write happens first so a crash
// in between leaves the stored pointer ahead, and reads go to the store.
func (s *Service) SetCollectionContext(ctx context.Context, collection string, c schema.Context) (*models.CollectionContext, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	if !c.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown schema context: "+string(c))
	}
	previous := s.registry.ActiveContext()
	now := s.now().UTC()
	update := docstore.Update{Set: docstore.Document{
		models.FieldActiveContext: string(c),
		models.FieldUpdatedAt:     now.Format(time.RFC3339Nano),
	}}
	if _, err := s.store.Collection(collection).UpdateOne(ctx, docstore.ByID(models.SentinelID), update, true); err != nil {
		return nil, translate(err, "failed to persist collection context", fromStore)
	}
	if err := s.registry.SetActiveContext(c); err != nil {
		return nil, translate(err, "failed to switch active context", fromInput)
	}

	if s.metrics != nil {
		s.metrics.IncContextChange(collection, string(c))
	}
	s.logger.InfoContext(ctx, "collection context changed",
		"collection", collection,
		"context", string(c),
		"previous_global_context", string(previous),
	)
	s.emit(ctx, audit.Event{
		Action:     audit.ActionContextChanged,
		Collection: collection,
		Schema:     s.SchemaName(collection),
		Context:    string(c),
		Details:    map[string]any{"previous_global_context": string(previous)},
	})
	return &models.CollectionContext{
		Collection: collection,
		Context:    c,
		Source:     models.SourceCollection,
		UpdatedAt:  &now,
	}, nil
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}
