package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"trialstore/internal/collection/jobs"
	"trialstore/internal/collection/models"
	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
	"trialstore/pkg/platform/httputil"
	"trialstore/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks

// Service defines the collection operations exposed over HTTP.
type Service interface {
	SchemaInfo(ctx context.Context, collection string) (*models.SchemaInfo, error)
	CollectionContext(ctx context.Context, collection string) (*models.CollectionContext, error)
	SetCollectionContext(ctx context.Context, collection string, c schema.Context) (*models.CollectionContext, error)
	CheckDocument(ctx context.Context, collection string, doc schema.Document, c schema.Context) (schema.Result, error)
	MigrateDocument(ctx context.Context, collection string, doc schema.Document, from, to schema.Context) (schema.Document, error)
	MigrateCollection(ctx context.Context, collection string, from, to schema.Context) (*models.MigrationReport, error)
	ConformanceReport(ctx context.Context, collection string, sample int) (*models.ConformanceReport, error)
	PutDocument(ctx context.Context, collection, id string, doc schema.Document) (schema.Document, error)
	GetDocument(ctx context.Context, collection, id string) (schema.Document, error)
	TrialAnalytics(ctx context.Context, trialID string) (*models.TrialAnalytics, error)
}

// JobQueue runs bulk migrations in the background.
type JobQueue interface {
	Submit(ctx context.Context, collection string, from, to schema.Context) (*jobs.Job, error)
	Get(ctx context.Context, id string) (*jobs.Job, error)
}

// Handler wires collection endpoints to the collection service.
type Handler struct {
	service Service
	jobs    JobQueue
	logger  *slog.Logger
	guard   func(http.Handler) http.Handler
}

// New constructs a collection handler. guard wraps the routes that change
// collection state; nil leaves them open.
func New(service Service, jobs JobQueue, logger *slog.Logger, guard func(http.Handler) http.Handler) *Handler {
	if guard == nil {
		guard = func(next http.Handler) http.Handler { return next }
	}
	return &Handler{
		service: service,
		jobs:    jobs,
		logger:  logger,
		guard:   guard,
	}
}

// Register mounts collection endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/collections/{collection}", func(r chi.Router) {
		r.Get("/schema", h.HandleSchemaInfo)
		r.Get("/context", h.HandleGetContext)
		r.Post("/validate", h.HandleValidate)
		r.Post("/migrate-document", h.HandleMigrateDocument)
		r.Get("/conformance", h.HandleConformance)
		r.Get("/documents/{id}", h.HandleGetDocument)
		r.Put("/documents/{id}", h.HandlePutDocument)

		r.Group(func(r chi.Router) {
			r.Use(h.guard)
			r.Put("/context", h.HandleSetContext)
			r.Post("/migrations", h.HandleMigrateCollection)
		})
	})
	r.Get("/migrations/{id}", h.HandleGetMigration)
	r.Get("/trials/{id}/analytics", h.HandleTrialAnalytics)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "request_id", requestcontext.RequestID(ctx), "error", err)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

// HandleSchemaInfo handles GET /collections/{collection}/schema.
func (h *Handler) HandleSchemaInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := chi.URLParam(r, "collection")
	info, err := h.service.SchemaInfo(ctx, collection)
	if err != nil {
		h.fail(ctx, w, "schema info failed", err, "collection", collection)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// HandleGetContext handles GET /collections/{collection}/context.
func (h *Handler) HandleGetContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := chi.URLParam(r, "collection")
	cc, err := h.service.CollectionContext(ctx, collection)
	if err != nil {
		h.fail(ctx, w, "reading collection context failed", err, "collection", collection)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, cc)
}

// HandleSetContext handles PUT /collections/{collection}/context.
func (h *Handler) HandleSetContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	collection := chi.URLParam(r, "collection")

	req, ok := httputil.DecodeAndPrepare[SetContextRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	cc, err := h.service.SetCollectionContext(ctx, collection, req.parsed)
	if err != nil {
		h.fail(ctx, w, "setting collection context failed", err, "collection", collection)
		return
	}
	h.logger.InfoContext(ctx, "collection context set",
		"request_id", requestID,
		"collection", collection,
		"context", string(cc.Context),
		"operator", requestcontext.Operator(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, cc)
}

// HandleValidate handles POST /collections/{collection}/validate.
func (h *Handler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	collection := chi.URLParam(r, "collection")

	req, ok := httputil.DecodeAndPrepare[ValidateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	res, err := h.service.CheckDocument(ctx, collection, req.Document, req.parsed)
	if err != nil {
		h.fail(ctx, w, "document validation failed", err, "collection", collection)
		return
	}
	if res.Status == schema.StatusInternalError {
		h.logger.ErrorContext(ctx, "schema check failed",
			"request_id", requestcontext.RequestID(ctx),
			"collection", collection,
			"version", res.Version.String(),
			"error", res.Cause,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "schema check failed"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromResult(res))
}

// HandleMigrateDocument handles POST /collections/{collection}/migrate-document.
func (h *Handler) HandleMigrateDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	collection := chi.URLParam(r, "collection")

	req, ok := httputil.DecodeAndPrepare[MigrateDocumentRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	out, err := h.service.MigrateDocument(ctx, collection, req.Document, req.from, req.to)
	if err != nil {
		h.fail(ctx, w, "document migration failed", err,
			"collection", collection,
			"from_context", string(req.from),
			"to_context", string(req.to),
		)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &MigrateDocumentResponse{
		Document:    out,
		FromContext: req.from,
		ToContext:   req.to,
	})
}

// HandleMigrateCollection handles POST /collections/{collection}/migrations.
// Synchronous runs answer with the report; async runs answer 202 with the job.
func (h *Handler) HandleMigrateCollection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	collection := chi.URLParam(r, "collection")
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[MigrateCollectionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if req.Async {
		if h.jobs == nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "async migrations are not enabled"))
			return
		}
		job, err := h.jobs.Submit(ctx, collection, req.from, req.to)
		if err != nil {
			h.fail(ctx, w, "queueing migration failed", err, "collection", collection)
			return
		}
		h.logger.InfoContext(ctx, "collection migration queued",
			"request_id", requestID,
			"collection", collection,
			"job_id", job.ID,
			"operator", requestcontext.Operator(ctx),
		)
		w.Header().Set("Location", "/migrations/"+job.ID)
		httputil.WriteJSON(w, http.StatusAccepted, job)
		return
	}

	report, err := h.service.MigrateCollection(ctx, collection, req.from, req.to)
	if err != nil {
		h.fail(ctx, w, "collection migration failed", err, "collection", collection)
		return
	}
	h.logger.InfoContext(ctx, "collection migrated",
		"request_id", requestID,
		"collection", collection,
		"migrated", report.Migrated,
		"failed", report.Failed,
		"operator", requestcontext.Operator(ctx),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleGetMigration handles GET /migrations/{id}.
func (h *Handler) HandleGetMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.jobs == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "migration job not found"))
		return
	}
	job, err := h.jobs.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(ctx, w, "reading migration job failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

// HandleConformance handles GET /collections/{collection}/conformance.
func (h *Handler) HandleConformance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := chi.URLParam(r, "collection")

	sample := 0
	if raw := r.URL.Query().Get("sample"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "sample must be an integer"))
			return
		}
		sample = n
	}
	report, err := h.service.ConformanceReport(ctx, collection, sample)
	if err != nil {
		h.fail(ctx, w, "conformance report failed", err, "collection", collection)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandleGetDocument handles GET /collections/{collection}/documents/{id}.
func (h *Handler) HandleGetDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	doc, err := h.service.GetDocument(ctx, collection, id)
	if err != nil {
		h.fail(ctx, w, "reading document failed", err, "collection", collection, "document_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &DocumentResponse{
		Collection: collection,
		ID:         id,
		Document:   doc,
		ReadAt:     requestcontext.Now(ctx),
	})
}

// HandlePutDocument handles PUT /collections/{collection}/documents/{id}. The
// body is the document itself.
func (h *Handler) HandlePutDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	collection := chi.URLParam(r, "collection")
	id := chi.URLParam(r, "id")

	body, ok := httputil.DecodeAndPrepare[schema.Document](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	doc, err := h.service.PutDocument(ctx, collection, id, *body)
	if err != nil {
		h.fail(ctx, w, "writing document failed", err, "collection", collection, "document_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &DocumentResponse{
		Collection: collection,
		ID:         id,
		Document:   doc,
		ReadAt:     requestcontext.Now(ctx),
	})
}

// HandleTrialAnalytics handles GET /trials/{id}/analytics.
func (h *Handler) HandleTrialAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	out, err := h.service.TrialAnalytics(ctx, id)
	if err != nil {
		h.fail(ctx, w, "trial analytics failed", err, "trial_id", id)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
