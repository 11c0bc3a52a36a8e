package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialstore/internal/schema"
	"trialstore/internal/schema/catalog"
	dErrors "trialstore/pkg/domain-errors"
	"trialstore/pkg/testutil"
)

func newSchemaRouter(t *testing.T) (http.Handler, *schema.Registry) {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := schema.New(schema.WithClock(now), schema.WithLogger(logger), schema.WithActiveContext(schema.ContextLegacy))
	m, err := catalog.DefaultManifest()
	require.NoError(t, err)
	_, err = catalog.New(m, catalog.WithClock(now)).Bootstrap(context.Background(), reg)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(reg, logger).Register(r)
	return r, reg
}

func TestList(t *testing.T) {
	router, reg := newSchemaRouter(t)

	rec := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/schemas", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	got := testutil.UnmarshalResponse[ListResponse](t, rec)
	assert.Equal(t, schema.ContextLegacy, got.ActiveContext)
	assert.Equal(t, strconv.FormatUint(reg.Fingerprint(), 16), got.Fingerprint)
	require.Len(t, got.Schemas, 2)
	assert.Equal(t, "company", got.Schemas[0].Name)
	assert.Equal(t, "trial", got.Schemas[1].Name)
	assert.Equal(t, []string{"0.9.0", "2.0.0"}, got.Schemas[1].Versions)
}

func TestGet(t *testing.T) {
	router, _ := newSchemaRouter(t)

	t.Run("definitions in version order", func(t *testing.T) {
		rec := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/schemas/company", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		got := testutil.UnmarshalResponse[SchemaResponse](t, rec)
		require.Len(t, got.Definitions, 2)
		assert.Equal(t, "0.9.0", got.Definitions[0].Version)
		assert.Equal(t, schema.ContextLegacy, got.Definitions[0].Context)
		assert.Equal(t, schema.ContextEnhanced, got.Definitions[1].Context)

		var rules []RuleSetResponse
		for _, d := range got.Definitions {
			rules = append(rules, d.Rules...)
		}
		require.NotEmpty(t, rules)
		assert.NotEmpty(t, rules[0].Fields)
	})

	t.Run("unknown schema", func(t *testing.T) {
		rec := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/schemas/widget", nil))
		testutil.AssertStatusAndError(t, rec, http.StatusNotFound, string(dErrors.CodeNotFound))
	})
}
