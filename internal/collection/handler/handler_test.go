package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"trialstore/internal/collection/handler/mocks"
	"trialstore/internal/collection/jobs"
	"trialstore/internal/collection/models"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	queue   *mocks.MockJobQueue
	guarded int
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.queue = mocks.NewMockJobQueue(s.ctrl)
	s.guarded = 0

	guard := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.guarded++
			next.ServeHTTP(w, r)
		})
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(s.service, s.queue, logger, guard).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, out any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(out))
}

func (s *HandlerSuite) requireError(rec *httptest.ResponseRecorder, status int, code dErrors.Code) {
	s.Require().Equal(status, rec.Code, rec.Body.String())
	var body struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	s.decode(rec, &body)
	s.Equal(string(code), body.Error)
}

func (s *HandlerSuite) TestSchemaInfo() {
	s.service.EXPECT().SchemaInfo(gomock.Any(), "trials").Return(&models.SchemaInfo{
		Collection:    "trials",
		Schema:        "trial",
		Versions:      []string{"1.0.0", "2.0.0"},
		ActiveContext: schema.ContextEnhanced,
		HasLegacy:     true,
	}, nil)

	rec := s.do(http.MethodGet, "/collections/trials/schema", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var got models.SchemaInfo
	s.decode(rec, &got)
	s.Equal("trial", got.Schema)
	s.Equal([]string{"1.0.0", "2.0.0"}, got.Versions)
	s.True(got.HasLegacy)
}

func (s *HandlerSuite) TestSchemaInfoNotFound() {
	s.service.EXPECT().SchemaInfo(gomock.Any(), "widgets").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "schema not found"))

	rec := s.do(http.MethodGet, "/collections/widgets/schema", nil)
	s.requireError(rec, http.StatusNotFound, dErrors.CodeNotFound)
}

func (s *HandlerSuite) TestContext() {
	s.Run("get is not guarded", func() {
		s.service.EXPECT().CollectionContext(gomock.Any(), "trials").Return(&models.CollectionContext{
			Collection: "trials",
			Context:    schema.ContextLegacy,
			Source:     models.SourceGlobal,
		}, nil)

		rec := s.do(http.MethodGet, "/collections/trials/context", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got models.CollectionContext
		s.decode(rec, &got)
		s.Equal(schema.ContextLegacy, got.Context)
		s.Zero(s.guarded)
	})

	s.Run("set parses and normalises the context", func() {
		s.service.EXPECT().SetCollectionContext(gomock.Any(), "trials", schema.ContextEnhanced).
			Return(&models.CollectionContext{Collection: "trials", Context: schema.ContextEnhanced}, nil)

		rec := s.do(http.MethodPut, "/collections/trials/context", map[string]string{"context": " Enhanced "})
		s.Require().Equal(http.StatusOK, rec.Code)
		s.Equal(1, s.guarded)
	})

	s.Run("set rejects unknown contexts before the service", func() {
		rec := s.do(http.MethodPut, "/collections/trials/context", map[string]string{"context": "nightly"})
		s.requireError(rec, http.StatusBadRequest, dErrors.CodeValidation)
	})

	s.Run("set rejects unknown body fields", func() {
		rec := s.do(http.MethodPut, "/collections/trials/context", `{"context":"legacy","force":true}`)
		s.requireError(rec, http.StatusBadRequest, dErrors.CodeBadRequest)
	})
}

func (s *HandlerSuite) TestValidate() {
	s.Run("valid document", func() {
		s.service.EXPECT().CheckDocument(gomock.Any(), "trials", gomock.Any(), schema.Context("")).
			Return(schema.Result{Status: schema.StatusValid, Schema: "trial", Version: schema.MustParseVersion("2.0.0")}, nil)

		rec := s.do(http.MethodPost, "/collections/trials/validate", map[string]any{
			"document": map[string]any{"id": "t1"},
		})
		s.Require().Equal(http.StatusOK, rec.Code)
		var got ValidateResponse
		s.decode(rec, &got)
		s.True(got.Valid)
		s.Equal("2.0.0", got.Version)
	})

	s.Run("field errors are a 200 with valid false", func() {
		s.service.EXPECT().CheckDocument(gomock.Any(), "trials", gomock.Any(), schema.ContextLegacy).
			Return(schema.Result{
				Status:  schema.StatusInvalid,
				Schema:  "trial",
				Version: schema.MustParseVersion("1.0.0"),
				Errors:  []schema.FieldError{{Field: "nct_id", Message: "is required"}},
			}, nil)

		rec := s.do(http.MethodPost, "/collections/trials/validate", map[string]any{
			"document": map[string]any{"_id": "t1"},
			"context":  "legacy",
		})
		s.Require().Equal(http.StatusOK, rec.Code)
		var got ValidateResponse
		s.decode(rec, &got)
		s.False(got.Valid)
		s.Require().Len(got.Errors, 1)
		s.Equal("nct_id", got.Errors[0].Field)
	})

	s.Run("an internal schema failure is a 500", func() {
		s.service.EXPECT().CheckDocument(gomock.Any(), "trials", gomock.Any(), gomock.Any()).
			Return(schema.Result{Status: schema.StatusInternalError, Schema: "trial", Cause: io.ErrUnexpectedEOF}, nil)

		rec := s.do(http.MethodPost, "/collections/trials/validate", map[string]any{
			"document": map[string]any{"id": "t1"},
		})
		s.requireError(rec, http.StatusInternalServerError, dErrors.CodeInternal)
	})
}

func (s *HandlerSuite) TestMigrateDocument() {
	s.Run("success", func() {
		out := schema.Document{"id": "c1", "name": "Acme", "schema_version": "2.0.0"}
		s.service.EXPECT().
			MigrateDocument(gomock.Any(), "companies", gomock.Any(), schema.ContextLegacy, schema.ContextEnhanced).
			Return(out, nil)

		rec := s.do(http.MethodPost, "/collections/companies/migrate-document", map[string]any{
			"document":     map[string]any{"_id": "c1", "company_name": "Acme"},
			"from_context": "legacy",
			"to_context":   "enhanced",
		})
		s.Require().Equal(http.StatusOK, rec.Code)
		var got MigrateDocumentResponse
		s.decode(rec, &got)
		s.Equal("Acme", got.Document["name"])
		s.Equal(schema.ContextEnhanced, got.ToContext)
	})

	s.Run("missing path", func() {
		s.service.EXPECT().MigrateDocument(gomock.Any(), "companies", gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeUnprocessable, "no migration path"))

		rec := s.do(http.MethodPost, "/collections/companies/migrate-document", map[string]any{
			"document":     map[string]any{"_id": "c1"},
			"from_context": "legacy",
			"to_context":   "future",
		})
		s.requireError(rec, http.StatusUnprocessableEntity, dErrors.CodeUnprocessable)
	})

	s.Run("to_context is required", func() {
		rec := s.do(http.MethodPost, "/collections/companies/migrate-document", map[string]any{
			"document":     map[string]any{"_id": "c1"},
			"from_context": "legacy",
		})
		s.requireError(rec, http.StatusBadRequest, dErrors.CodeValidation)
	})
}

func (s *HandlerSuite) TestMigrateCollection() {
	s.Run("synchronous run returns the report", func() {
		s.service.EXPECT().
			MigrateCollection(gomock.Any(), "trials", schema.ContextLegacy, schema.ContextEnhanced).
			Return(&models.MigrationReport{Collection: "trials", Total: 3, Migrated: 2, Failed: 1}, nil)

		rec := s.do(http.MethodPost, "/collections/trials/migrations", map[string]any{
			"from_context": "legacy",
			"to_context":   "enhanced",
		})
		s.Require().Equal(http.StatusOK, rec.Code)
		var got models.MigrationReport
		s.decode(rec, &got)
		s.Equal(2, got.Migrated)
		s.Equal(1, got.Failed)
		s.Equal(1, s.guarded)
	})

	s.Run("async run queues a job", func() {
		s.guarded = 0
		s.queue.EXPECT().Submit(gomock.Any(), "trials", schema.ContextLegacy, schema.ContextEnhanced).
			Return(&jobs.Job{ID: "job-1", Collection: "trials", Status: jobs.StatusQueued, CreatedAt: time.Now()}, nil)

		rec := s.do(http.MethodPost, "/collections/trials/migrations", map[string]any{
			"from_context": "legacy",
			"to_context":   "enhanced",
			"async":        true,
		})
		s.Require().Equal(http.StatusAccepted, rec.Code)
		s.Equal("/migrations/job-1", rec.Header().Get("Location"))
		var got jobs.Job
		s.decode(rec, &got)
		s.Equal(jobs.StatusQueued, got.Status)
		s.Equal(1, s.guarded)
	})

	s.Run("conflicting run", func() {
		s.service.EXPECT().MigrateCollection(gomock.Any(), "trials", gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, "migration already running"))

		rec := s.do(http.MethodPost, "/collections/trials/migrations", map[string]any{
			"from_context": "legacy",
			"to_context":   "enhanced",
		})
		s.requireError(rec, http.StatusConflict, dErrors.CodeConflict)
	})

	s.Run("timeout", func() {
		s.service.EXPECT().MigrateCollection(gomock.Any(), "trials", gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeTimeout, "migration timed out"))

		rec := s.do(http.MethodPost, "/collections/trials/migrations", map[string]any{
			"from_context": "legacy",
			"to_context":   "enhanced",
		})
		s.requireError(rec, http.StatusGatewayTimeout, dErrors.CodeTimeout)
	})
}

func (s *HandlerSuite) TestGetMigration() {
	s.queue.EXPECT().Get(gomock.Any(), "job-1").
		Return(&jobs.Job{ID: "job-1", Status: jobs.StatusSucceeded, Report: &models.MigrationReport{Migrated: 4}}, nil)
	s.queue.EXPECT().Get(gomock.Any(), "job-2").
		Return(nil, dErrors.New(dErrors.CodeNotFound, "migration job not found"))

	rec := s.do(http.MethodGet, "/migrations/job-1", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got jobs.Job
	s.decode(rec, &got)
	s.Require().NotNil(got.Report)
	s.Equal(4, got.Report.Migrated)

	rec = s.do(http.MethodGet, "/migrations/job-2", nil)
	s.requireError(rec, http.StatusNotFound, dErrors.CodeNotFound)
}

func (s *HandlerSuite) TestConformance() {
	s.Run("sample is passed through", func() {
		s.service.EXPECT().ConformanceReport(gomock.Any(), "trials", 25).
			Return(&models.ConformanceReport{Collection: "trials", Sampled: 25, Compliant: 25, SafeToProceed: true}, nil)

		rec := s.do(http.MethodGet, "/collections/trials/conformance?sample=25", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got models.ConformanceReport
		s.decode(rec, &got)
		s.True(got.SafeToProceed)
	})

	s.Run("missing sample uses the default", func() {
		s.service.EXPECT().ConformanceReport(gomock.Any(), "trials", 0).
			Return(&models.ConformanceReport{Collection: "trials"}, nil)

		rec := s.do(http.MethodGet, "/collections/trials/conformance", nil)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("non-numeric sample", func() {
		rec := s.do(http.MethodGet, "/collections/trials/conformance?sample=all", nil)
		s.requireError(rec, http.StatusBadRequest, dErrors.CodeBadRequest)
	})
}

func (s *HandlerSuite) TestDocuments() {
	s.Run("put returns the stored document", func() {
		s.service.EXPECT().PutDocument(gomock.Any(), "trials", "t1", schema.Document{"id": "t1", "title": "A"}).
			Return(schema.Document{"id": "t1", "title": "A", "schema_version": "2.0.0"}, nil)

		rec := s.do(http.MethodPut, "/collections/trials/documents/t1", map[string]any{"id": "t1", "title": "A"})
		s.Require().Equal(http.StatusOK, rec.Code)
		var got DocumentResponse
		s.decode(rec, &got)
		s.Equal("t1", got.ID)
		s.Equal("2.0.0", got.Document["schema_version"])
	})

	s.Run("put with an invalid document", func() {
		s.service.EXPECT().PutDocument(gomock.Any(), "trials", "t2", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "document does not match trial 2.0.0"))

		rec := s.do(http.MethodPut, "/collections/trials/documents/t2", map[string]any{"id": "t2"})
		s.requireError(rec, http.StatusBadRequest, dErrors.CodeValidation)
	})

	s.Run("get", func() {
		s.service.EXPECT().GetDocument(gomock.Any(), "trials", "t1").
			Return(schema.Document{"id": "t1"}, nil)

		rec := s.do(http.MethodGet, "/collections/trials/documents/t1", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var got DocumentResponse
		s.decode(rec, &got)
		s.Equal("trials", got.Collection)
	})

	s.Run("get missing", func() {
		s.service.EXPECT().GetDocument(gomock.Any(), "trials", "nope").
			Return(nil, dErrors.New(dErrors.CodeNotFound, "document not found"))

		rec := s.do(http.MethodGet, "/collections/trials/documents/nope", nil)
		s.requireError(rec, http.StatusNotFound, dErrors.CodeNotFound)
	})

	s.Run("internal errors hide the description", func() {
		s.service.EXPECT().GetDocument(gomock.Any(), "trials", "t3").
			Return(nil, dErrors.Wrap(io.ErrClosedPipe, dErrors.CodeInternal, "failed to read document"))

		rec := s.do(http.MethodGet, "/collections/trials/documents/t3", nil)
		s.Require().Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "failed to read document")
	})
}

func (s *HandlerSuite) TestTrialAnalytics() {
	s.service.EXPECT().TrialAnalytics(gomock.Any(), "t1").
		Return(&models.TrialAnalytics{TrialID: "t1", Conditions: 2, Context: schema.ContextEnhanced}, nil)

	rec := s.do(http.MethodGet, "/trials/t1/analytics", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var got models.TrialAnalytics
	s.decode(rec, &got)
	s.Equal(2, got.Conditions)
}

func TestNilQueue(t *testing.T) {
	ctrl := gomock.NewController(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	New(mocks.NewMockService(ctrl), nil, logger, nil).Register(r)

	body := bytes.NewBufferString(`{"from_context":"legacy","to_context":"enhanced","async":true}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/collections/trials/migrations", body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without a job queue, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/migrations/job-1", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without a job queue, got %d", rec.Code)
	}
}
