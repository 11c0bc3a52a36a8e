package mongo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"trialstore/internal/docstore"
)

func TestToBSONMatchesObjectIDs(t *testing.T) {
	oid := primitive.NewObjectID()
	doc := normalizeDoc(bson.M{"_id": oid, "companyName": "Acme"})
	require.Equal(t, oid.Hex(), doc.ID())

	t.Run("point filter accepts both forms", func(t *testing.T) {
		q := toBSON(docstore.ByID(doc.ID()))
		assert.Equal(t, bson.M{"_id": bson.M{"$in": bson.A{oid.Hex(), oid}}}, q)
	})

	t.Run("exclusions cover both forms", func(t *testing.T) {
		q := toBSON(docstore.Filter{ExcludeIDs: []string{oid.Hex(), "plain"}})
		assert.Equal(t, bson.M{"_id": bson.M{"$nin": bson.A{oid.Hex(), oid, "plain"}}}, q)
	})

	t.Run("plain ids stay strings", func(t *testing.T) {
		q := toBSON(docstore.Filter{ID: "doc-1", Equals: map[string]any{"status": "active"}})
		assert.Equal(t, bson.M{"_id": "doc-1", "status": "active"}, q)
	})

	t.Run("zero filter matches everything", func(t *testing.T) {
		assert.Empty(t, toBSON(docstore.Filter{}))
	})
}
