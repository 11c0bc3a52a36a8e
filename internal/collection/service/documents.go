package service

import (
	"context"

	"trialstore/internal/audit"
	"trialstore/internal/collection/models"
	"trialstore/internal/docstore"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

func lookupOpts(c schema.Context) []schema.LookupOption {
	if c == "" {
		return nil
	}
	return []schema.LookupOption{schema.ForContext(c)}
}

func checkContext(c schema.Context) error {
	if c != "" && !c.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown schema context: "+string(c))
	}
	return nil
}

// ValidateDocument reports whether doc fits the collection's schema in context
// c, or in the registry's active context when c is empty.
func (s *Service) ValidateDocument(ctx context.Context, collection string, doc schema.Document, c schema.Context) (bool, error) {
	if err := s.checkCollection(collection); err != nil {
		return false, err
	}
	if err := checkContext(c); err != nil {
		return false, err
	}
	ok, err := s.registry.ValidateData(s.SchemaName(collection), doc, lookupOpts(c)...)
	if err != nil {
		return false, translate(err, "failed to resolve schema", fromInput)
	}
	return ok, nil
}

// CheckDocument is ValidateDocument with the field errors or internal cause.
func (s *Service) CheckDocument(ctx context.Context, collection string, doc schema.Document, c schema.Context) (schema.Result, error) {
	if err := s.checkCollection(collection); err != nil {
		return schema.Result{}, err
	}
	if err := checkContext(c); err != nil {
		return schema.Result{}, err
	}
	res, err := s.registry.Check(s.SchemaName(collection), doc, lookupOpts(c)...)
	if err != nil {
		return schema.Result{}, translate(err, "failed to resolve schema", fromInput)
	}
	return res, nil
}

// MigrateDocument migrates doc between the highest versions registered for
// from and to. A version stamp on doc overrides the from version. The result
// is stamped with the target version; doc is not modified.
func (s *Service) MigrateDocument(ctx context.Context, collection string, doc schema.Document, from, to schema.Context) (schema.Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	if !from.IsValid() || !to.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "from and to must be schema contexts")
	}
	name := s.SchemaName(collection)
	fromV, err := s.registry.VersionForContext(name, from)
	if err != nil {
		return nil, translate(err, "failed to resolve source version", fromInput)
	}
	toV, err := s.registry.VersionForContext(name, to)
	if err != nil {
		return nil, translate(err, "failed to resolve target version", fromInput)
	}
	source := fromV
	if v, ok := doc.StampedVersion(); ok {
		source = v
	}
	out, err := s.registry.MigrateData(name, doc, source, toV)
	if err != nil {
		return nil, translate(err, "failed to migrate document", fromInput)
	}
	out.Stamp(toV)
	s.logger.DebugContext(ctx, "document migrated",
		"collection", collection,
		"schema", name,
		"from_version", source.String(),
		"to_version", toV.String(),
	)
	return out, nil
}

// ValidateOrMigrate returns doc in the shape of the schema for context c (the
// collection's context when empty). A document that does not fit is migrated
// from its stamped version, or from the legacy version when unstamped, and
// checked again.
func (s *Service) ValidateOrMigrate(ctx context.Context, collection string, doc schema.Document, c schema.Context) (schema.Document, error) {
	out, _, err := s.conform(ctx, collection, doc, c, fromInput)
	return out, err
}

// conform returns the version doc was migrated from, or nil when doc already
// fit.
func (s *Service) conform(ctx context.Context, collection string, doc schema.Document, c schema.Context, o origin) (schema.Document, *schema.Version, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, nil, err
	}
	if err := checkContext(c); err != nil {
		return nil, nil, err
	}
	if c == "" {
		cc, err := s.CollectionContext(ctx, collection)
		if err != nil {
			return nil, nil, err
		}
		c = cc.Context
	}
	name := s.SchemaName(collection)
	def, err := s.registry.GetSchema(name, schema.ForContext(c))
	if err != nil {
		return nil, nil, translate(err, "failed to resolve schema", fromInput)
	}

	res, err := s.registry.Check(name, doc, schema.ForVersion(def.Version))
	if err != nil {
		return nil, nil, translate(err, "failed to resolve schema", fromInput)
	}
	switch res.Status {
	case schema.StatusValid:
		out := doc.Clone()
		out.Stamp(def.Version)
		return out, nil, nil
	case schema.StatusInternalError:
		return nil, nil, dErrors.Wrap(res.Cause, dErrors.CodeInternal, "schema check failed")
	}

	source, stamped := doc.StampedVersion()
	if !stamped {
		legacy, err := s.registry.VersionForContext(name, schema.ContextLegacy)
		if err != nil {
			return nil, nil, translate(res.Err(), "document does not match schema", o)
		}
		source = legacy
	}
	if source == def.Version {
		return nil, nil, translate(res.Err(), "document does not match schema", o)
	}
	migrated, err := s.registry.MigrateData(name, doc, source, def.Version)
	if err != nil {
		s.logger.InfoContext(ctx, "document neither valid nor migratable",
			"collection", collection,
			"schema", name,
			"from_version", source.String(),
			"to_version", def.Version.String(),
			"error", err,
		)
		return nil, nil, translate(res.Err(), "document does not match schema", o)
	}
	migrated.Stamp(def.Version)
	again, err := s.registry.Check(name, migrated, schema.ForVersion(def.Version))
	if err != nil {
		return nil, nil, translate(err, "failed to resolve schema", fromInput)
	}
	if !again.OK() {
		return nil, nil, translate(again.Err(), "migrated document does not match schema", o)
	}
	return migrated, &source, nil
}

// PutDocument validates (or migrates) doc for the collection's context and
// writes it under id.
func (s *Service) PutDocument(ctx context.Context, collection, id string, doc schema.Document) (schema.Document, error) {
	if id == "" || id == models.SentinelID {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid document id")
	}
	in := doc.Clone()
	in[schema.IDField] = id
	out, migratedFrom, err := s.conform(ctx, collection, in, "", fromInput)
	if err != nil {
		return nil, err
	}
	update := docstore.Update{Set: docstore.Document(out)}
	if _, err := s.store.Collection(collection).UpdateOne(ctx, docstore.ByID(id), update, true); err != nil {
		return nil, translate(err, "failed to write document", fromStore)
	}
	if migratedFrom != nil {
		stamp, _ := out.StampedVersion()
		s.emit(ctx, audit.Event{
			Action:      audit.ActionDocumentMigrated,
			Collection:  collection,
			Schema:      s.SchemaName(collection),
			FromVersion: migratedFrom.String(),
			ToVersion:   stamp.String(),
			Details:     map[string]any{"document_id": id},
		})
	}
	if s.analytics != nil && s.SchemaName(collection) == s.SchemaName(TrialsCollection) {
		s.analytics.InvalidateTrial(ctx, id)
	}
	return out, nil
}

// GetDocument reads id and returns it in the shape of the collection's
// context. Stored data that cannot be brought into shape is an internal error.
func (s *Service) GetDocument(ctx context.Context, collection, id string) (schema.Document, error) {
	if err := s.checkCollection(collection); err != nil {
		return nil, err
	}
	if id == "" || id == models.SentinelID {
		return nil, dErrors.New(dErrors.CodeNotFound, "document not found")
	}
	doc, err := s.store.Collection(collection).FindOne(ctx, docstore.ByID(id))
	if err != nil {
		return nil, translate(err, "document", fromStore)
	}
	out, _, err := s.conform(ctx, collection, schema.Document(doc), "", fromStore)
	if err != nil {
		s.logger.ErrorContext(ctx, "stored document does not match its schema",
			"collection", collection,
			"document_id", id,
			"error", err,
		)
		return nil, err
	}
	return out, nil
}
