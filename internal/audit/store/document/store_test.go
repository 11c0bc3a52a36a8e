package document

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trialstore/internal/audit"
	"trialstore/internal/docstore/memory"
)

func TestStore_AppendAndList(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	require.NoError(t, s.EnsureIndexes(ctx))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	second := audit.Event{
		ID:          "b",
		Timestamp:   base.Add(time.Minute),
		Action:      audit.ActionCollectionMigrated,
		Collection:  "trials",
		Schema:      "trial",
		FromVersion: "0.9.0",
		ToVersion:   "2.0.0",
		Details:     map[string]any{"migrated": 3},
	}
	first := audit.Event{ID: "a", Timestamp: base, Action: audit.ActionContextChanged, Collection: "trials", Context: "enhanced"}
	require.NoError(t, s.Append(ctx, second))
	require.NoError(t, s.Append(ctx, first))
	require.NoError(t, s.Append(ctx, audit.Event{ID: "c", Timestamp: base, Action: audit.ActionContextChanged, Collection: "companies"}))

	events, err := s.List(ctx, audit.Filter{Collection: "trials"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first, events[0], "ordered by timestamp")
	assert.Equal(t, second, events[1])

	events, err = s.List(ctx, audit.Filter{Action: audit.ActionContextChanged, Limit: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)

	err = s.Append(ctx, first)
	assert.Error(t, err, "event ids are unique")
}
