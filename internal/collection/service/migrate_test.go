package service

import (
	"context"
	"time"

	"go.uber.org/mock/gomock"

	"trialstore/internal/audit"
	"trialstore/internal/collection/models"
	"trialstore/internal/docstore"
	"trialstore/internal/docstore/mocks"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

func (s *ServiceSuite) TestMigrateCollection_PartialFailure() {
	s.insert(
		docstore.Document{"_id": "w1", "label": "one"},
		docstore.Document{"_id": "w2", "label": "two", schema.VersionField: "1.5.0"},
		docstore.Document{"_id": "w3", "label": "three"},
	)

	report, err := s.svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextEnhanced)
	s.Require().NoError(err)

	s.Equal(3, report.Total)
	s.Equal(2, report.Migrated)
	s.Equal(1, report.Failed)
	s.False(report.ContextUpdated)
	s.Require().Len(report.Failures, 1)
	s.Equal("w2", report.Failures[0].ID)
	s.Equal(models.StageMigrate, report.Failures[0].Stage)

	for _, id := range []string{"w1", "w3"} {
		doc := s.stored(id)
		s.Equal(id, doc["id"])
		s.Equal("2.0.0", doc[schema.VersionField])
	}
	s.Equal("1.5.0", s.stored("w2")[schema.VersionField])
	s.NotContains(s.stored("w2"), "name")

	cc, err := s.svc.CollectionContext(s.ctx, widgets)
	s.Require().NoError(err)
	s.Equal(models.SourceGlobal, cc.Source)
	s.Equal(schema.ContextLegacy, s.registry.ActiveContext())

	events := s.events(audit.ActionMigrationFailed)
	s.Require().Len(events, 1)
	s.Equal(1, events[0].Details["failed"])
}

func (s *ServiceSuite) TestMigrateCollection_Success() {
	s.insert(
		docstore.Document{"_id": "w1", "label": "one"},
		docstore.Document{"_id": "w2", "label": "two"},
	)
	_, err := s.svc.SetCollectionContext(s.ctx, widgets, schema.ContextLegacy)
	s.Require().NoError(err)

	report, err := s.svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextEnhanced)
	s.Require().NoError(err)
	s.Equal(2, report.Total, "the sentinel is not a document")
	s.Equal(2, report.Migrated)
	s.True(report.ContextUpdated)
	s.Equal("1.0.0", report.FromVersion)
	s.Equal("2.0.0", report.ToVersion)

	cc, err := s.svc.CollectionContext(s.ctx, widgets)
	s.Require().NoError(err)
	s.Equal(schema.ContextEnhanced, cc.Context)
	s.Equal(schema.ContextEnhanced, s.registry.ActiveContext())
	s.Len(s.events(audit.ActionCollectionMigrated), 1)

	s.Run("rerun skips stamped documents", func() {
		again, err := s.svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextEnhanced)
		s.Require().NoError(err)
		s.Equal(2, again.Skipped)
		s.Zero(again.Migrated)
		s.Zero(again.Failed)
	})
}

func (s *ServiceSuite) TestMigrateCollection_Reconciliation() {
	s.insert(
		docstore.Document{"_id": "w1", "id": "w1", "name": "already there"},
		docstore.Document{"_id": "w2"},
	)

	report, err := s.svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextEnhanced)
	s.Require().NoError(err)

	s.Equal(1, report.Stamped)
	s.Equal(1, report.Failed)
	s.Equal("2.0.0", s.stored("w1")[schema.VersionField])
	s.Equal("already there", s.stored("w1")["name"])

	s.Require().Len(report.Failures, 1)
	s.Equal("w2", report.Failures[0].ID)
	s.Equal(models.StageValidate, report.Failures[0].Stage)
	s.NotEmpty(report.Failures[0].Fields)
	s.NotContains(s.stored("w2"), schema.VersionField)
}

func (s *ServiceSuite) TestMigrateCollection_Rejections() {
	s.Run("concurrent runs conflict", func() {
		s.svc.inflight.Store(widgets, struct{}{})
		defer s.svc.inflight.Delete(widgets)
		_, err := s.svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextEnhanced)
		s.requireCode(err, dErrors.CodeConflict)
	})

	s.Run("unknown contexts", func() {
		_, err := s.svc.MigrateCollection(s.ctx, widgets, schema.Context("beta"), schema.ContextEnhanced)
		s.requireCode(err, dErrors.CodeBadRequest)
	})

	s.Run("context without a version", func() {
		_, err := s.svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextFuture)
		s.requireCode(err, dErrors.CodeInternal)
	})

	s.Run("unknown schema", func() {
		_, err := s.svc.MigrateCollection(s.ctx, "gadgets", schema.ContextLegacy, schema.ContextEnhanced)
		s.requireCode(err, dErrors.CodeNotFound)
	})
}

func (s *ServiceSuite) TestMigrateCollection_Timeout() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockStore(ctrl)
	coll := mocks.NewMockCollection(ctrl)
	cur := mocks.NewMockCursor(ctrl)

	store.EXPECT().Collection(widgets).Return(coll).AnyTimes()
	coll.EXPECT().Find(gomock.Any(), gomock.Any()).Return(cur, nil)
	cur.EXPECT().Next(gomock.Any()).Return(true)
	cur.EXPECT().Next(gomock.Any()).Return(false).AnyTimes()
	cur.EXPECT().Document().Return(docstore.Document{"_id": "w1", "label": "one"})
	cur.EXPECT().Err().Return(nil).AnyTimes()
	cur.EXPECT().Close(gomock.Any()).Return(nil)
	coll.EXPECT().UpdateOne(gomock.Any(), docstore.ByID("w1"), gomock.Any(), false).
		DoAndReturn(func(ctx context.Context, _ docstore.Filter, _ docstore.Update, _ bool) (docstore.UpdateResult, error) {
			<-ctx.Done()
			return docstore.UpdateResult{}, ctx.Err()
		})

	svc := s.newService(store, WithMigrationLimits(1, 50*time.Millisecond))
	report, err := svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextEnhanced)

	s.requireCode(err, dErrors.CodeTimeout)
	s.ErrorIs(err, schema.ErrTimeout)
	s.Require().NotNil(report)
	s.True(report.TimedOut)
	s.False(report.ContextUpdated)
	s.Zero(report.Migrated)
	s.Len(s.events(audit.ActionMigrationFailed), 1)
}

func (s *ServiceSuite) TestMigrateCollection_UnmatchedWritesFail() {
	ctrl := gomock.NewController(s.T())
	store := mocks.NewMockStore(ctrl)
	coll := mocks.NewMockCollection(ctrl)
	cur := mocks.NewMockCursor(ctrl)

	store.EXPECT().Collection(widgets).Return(coll).AnyTimes()
	coll.EXPECT().Find(gomock.Any(), gomock.Any()).Return(cur, nil)
	gomock.InOrder(
		cur.EXPECT().Next(gomock.Any()).Return(true),
		cur.EXPECT().Next(gomock.Any()).Return(true),
		cur.EXPECT().Next(gomock.Any()).Return(false).AnyTimes(),
	)
	gomock.InOrder(
		cur.EXPECT().Document().Return(docstore.Document{"_id": "w1", "label": "one"}),
		cur.EXPECT().Document().Return(docstore.Document{"_id": "w2", "id": "w2", "name": "two"}),
	)
	cur.EXPECT().Err().Return(nil).AnyTimes()
	cur.EXPECT().Close(gomock.Any()).Return(nil)
	coll.EXPECT().UpdateOne(gomock.Any(), gomock.Any(), gomock.Any(), false).
		Return(docstore.UpdateResult{Matched: 0}, nil).Times(2)

	svc := s.newService(store, WithMigrationLimits(1, time.Minute))
	report, err := svc.MigrateCollection(s.ctx, widgets, schema.ContextLegacy, schema.ContextEnhanced)
	s.Require().NoError(err)

	s.Equal(2, report.Total)
	s.Zero(report.Migrated)
	s.Zero(report.Stamped)
	s.Equal(2, report.Failed)
	s.False(report.ContextUpdated)
	for _, f := range report.Failures {
		s.Equal(models.StageWrite, f.Stage)
		s.Contains(f.Error, "not found")
	}
	s.Equal(schema.ContextLegacy, s.registry.ActiveContext())
	s.Len(s.events(audit.ActionMigrationFailed), 1)
}
