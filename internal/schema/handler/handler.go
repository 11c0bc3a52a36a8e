package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
	"trialstore/pkg/platform/httputil"
	"trialstore/pkg/requestcontext"
)

// Registry is the read side of the schema registry.
type Registry interface {
	ListRegistered() map[string][]schema.Version
	Definitions(name string) ([]*schema.Definition, error)
	ActiveContext() schema.Context
	Fingerprint() uint64
}

// Handler exposes the registered schemas read-only.
type Handler struct {
	registry Registry
	logger   *slog.Logger
}

func New(registry Registry, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/schemas", h.HandleList)
	r.Get("/schemas/{name}", h.HandleGet)
}

// HandleList handles GET /schemas.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	registered := h.registry.ListRegistered()
	resp := &ListResponse{
		ActiveContext: h.registry.ActiveContext(),
		Fingerprint:   strconv.FormatUint(h.registry.Fingerprint(), 16),
		Schemas:       make([]SchemaSummary, 0, len(registered)),
	}
	for name, versions := range registered {
		summary := SchemaSummary{Name: name, Versions: make([]string, len(versions))}
		for i, v := range versions {
			summary.Versions[i] = v.String()
		}
		resp.Schemas = append(resp.Schemas, summary)
	}
	sort.Slice(resp.Schemas, func(i, j int) bool { return resp.Schemas[i].Name < resp.Schemas[j].Name })
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleGet handles GET /schemas/{name}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	defs, err := h.registry.Definitions(name)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaNotFound) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "schema not found"))
			return
		}
		h.logger.ErrorContext(ctx, "listing schema definitions failed",
			"request_id", requestcontext.RequestID(ctx),
			"schema", name,
			"error", err,
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list schema definitions"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromDefinitions(name, defs))
}
