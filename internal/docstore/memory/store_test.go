package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"trialstore/internal/docstore"
	"trialstore/internal/docstore/docstoretest"
)

func TestMemoryCollectionSuite(t *testing.T) {
	suite.Run(t, &docstoretest.CollectionSuite{
		NewStore: func() docstore.Store { return New() },
	})
}

func TestStoredDocumentsAreIsolated(t *testing.T) {
	ctx := context.Background()
	coll := New().Collection("trials")

	profile := map[string]any{"phase": "II"}
	_, err := coll.InsertOne(ctx, docstore.Document{"_id": "t1", "profile": profile})
	require.NoError(t, err)
	profile["phase"] = "III"

	doc, err := coll.FindOne(ctx, docstore.ByID("t1"))
	require.NoError(t, err)
	assert.Equal(t, "II", doc["profile"].(map[string]any)["phase"])
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Collection("trials").FindOne(ctx, docstore.ByID("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
