package service

import (
	"time"

	"trialstore/internal/audit"
	"trialstore/internal/docstore"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

type futureWidget struct {
	ID string `json:"id" valid:"required"`
}

func (s *ServiceSuite) TestConformanceReport() {
	_, err := s.svc.SetCollectionContext(s.ctx, widgets, schema.ContextEnhanced)
	s.Require().NoError(err)
	s.insert(
		docstore.Document{"_id": "w1", "id": "w1", "name": "one"},
		docstore.Document{"_id": "w2", "id": "w2", "name": "two"},
		docstore.Document{"_id": "w3", "label": "legacy"},
	)

	report, err := s.svc.ConformanceReport(s.ctx, widgets, 0)
	s.Require().NoError(err)
	s.Equal("2.0.0", report.Version)
	s.Equal(schema.ContextEnhanced, report.Context)
	s.EqualValues(3, report.TotalCount)
	s.Equal(3, report.Sampled)
	s.Equal(2, report.Compliant)
	s.Equal(1, report.NonCompliant)
	s.False(report.SafeToProceed)
	s.Require().Len(report.Errors, 1)
	s.Equal("w3", report.Errors[0].ID)
	s.Len(s.events(audit.ActionConformanceReported), 1)

	s.Run("reflects writes made since the last report", func() {
		s.insert(docstore.Document{"_id": "w4", "label": "also legacy"})
		fresh, err := s.svc.ConformanceReport(s.ctx, widgets, 0)
		s.Require().NoError(err)
		s.EqualValues(4, fresh.TotalCount)
		s.Equal(2, fresh.NonCompliant)
		s.False(fresh.SafeToProceed)
		s.Len(s.events(audit.ActionConformanceReported), 2)
	})

	s.Run("turns safe once offending documents are fixed", func() {
		coll := s.store.Collection(widgets)
		for _, id := range []string{"w3", "w4"} {
			_, err := coll.UpdateOne(s.ctx, docstore.ByID(id), docstore.Update{
				Set: docstore.Document{"id": id, "name": id},
			}, false)
			s.Require().NoError(err)
		}
		fresh, err := s.svc.ConformanceReport(s.ctx, widgets, 0)
		s.Require().NoError(err)
		s.Zero(fresh.NonCompliant)
		s.True(fresh.SafeToProceed)
	})

	s.Run("follows newly registered versions", func() {
		_, err := s.registry.Register(s.ctx, schema.Registration{
			Name:      "widget",
			Version:   schema.NewVersion(2, 1, 0),
			Context:   schema.ContextEnhanced,
			Type:      schema.NewStructType[futureWidget]("widget.enhanced.next"),
			ValidFrom: s.now.Add(-time.Hour),
		})
		s.Require().NoError(err)
		fresh, err := s.svc.ConformanceReport(s.ctx, widgets, 0)
		s.Require().NoError(err)
		s.Equal("2.1.0", fresh.Version)
	})

	s.Run("sample bounds the check", func() {
		small, err := s.svc.ConformanceReport(s.ctx, widgets, 2)
		s.Require().NoError(err)
		s.Equal(2, small.Sampled)
		s.True(small.SafeToProceed)
	})

	s.Run("rejects out of range samples", func() {
		_, err := s.svc.ConformanceReport(s.ctx, widgets, -1)
		s.requireCode(err, dErrors.CodeBadRequest)
		_, err = s.svc.ConformanceReport(s.ctx, widgets, maxConformanceSample+1)
		s.requireCode(err, dErrors.CodeBadRequest)
	})
}

func (s *ServiceSuite) TestConformanceReport_EmptyCollection() {
	report, err := s.svc.ConformanceReport(s.ctx, widgets, 10)
	s.Require().NoError(err)
	s.Zero(report.Sampled)
	s.True(report.SafeToProceed)
}
