// Package docstoretest holds the behaviour every docstore.Store
// implementation must share, as a reusable testify suite.
package docstoretest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"trialstore/internal/docstore"
	"trialstore/pkg/platform/sentinel"
)

// CollectionSuite exercises one collection of the store returned by NewStore.
type CollectionSuite struct {
	suite.Suite
	NewStore func() docstore.Store
	// InsertNative, when set, writes doc through the backend driver so it
	// carries the driver's own generated key.
	InsertNative func(ctx context.Context, collection string, doc docstore.Document)

	ctx   context.Context
	store docstore.Store
	coll  docstore.Collection
}

func (s *CollectionSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = s.NewStore()
	s.coll = s.store.Collection("companies_" + uuid.NewString()[:8])
}

func (s *CollectionSuite) TearDownTest() {
	_, _ = s.coll.DeleteMany(s.ctx, docstore.Filter{})
}

func (s *CollectionSuite) seed(n int) []string {
	ids := make([]string, n)
	for i := range n {
		id, err := s.coll.InsertOne(s.ctx, docstore.Document{
			"_id":         fmt.Sprintf("doc-%d", i),
			"companyName": fmt.Sprintf("Company %d", i),
			"status":      "active",
		})
		s.Require().NoError(err)
		ids[i] = id
	}
	return ids
}

func (s *CollectionSuite) TestInsertAndFindOne() {
	s.seed(2)

	s.Run("finds by id", func() {
		doc, err := s.coll.FindOne(s.ctx, docstore.ByID("doc-1"))
		s.Require().NoError(err)
		s.Equal("Company 1", doc["companyName"])
	})

	s.Run("missing id", func() {
		_, err := s.coll.FindOne(s.ctx, docstore.ByID("nope"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate id", func() {
		_, err := s.coll.InsertOne(s.ctx, docstore.Document{"_id": "doc-0"})
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("generates an id when absent", func() {
		id, err := s.coll.InsertOne(s.ctx, docstore.Document{"companyName": "Anon"})
		s.Require().NoError(err)
		s.NotEmpty(id)
		doc, err := s.coll.FindOne(s.ctx, docstore.ByID(id))
		s.Require().NoError(err)
		s.Equal("Anon", doc["companyName"])
	})
}

func (s *CollectionSuite) TestFindWithFilters() {
	s.seed(4)

	s.Run("exclusions", func() {
		cur, err := s.coll.Find(s.ctx, docstore.Filter{ExcludeIDs: []string{"doc-0", "doc-2"}})
		s.Require().NoError(err)
		docs, err := docstore.All(s.ctx, cur)
		s.Require().NoError(err)
		s.Len(docs, 2)
		for _, d := range docs {
			s.NotContains([]string{"doc-0", "doc-2"}, d.ID())
		}
	})

	s.Run("equality", func() {
		n, err := s.coll.CountDocuments(s.ctx, docstore.Filter{Equals: map[string]any{"companyName": "Company 3"}})
		s.Require().NoError(err)
		s.EqualValues(1, n)
	})

	s.Run("limit", func() {
		cur, err := s.coll.Find(s.ctx, docstore.Filter{}, docstore.WithLimit(3))
		s.Require().NoError(err)
		docs, err := docstore.All(s.ctx, cur)
		s.Require().NoError(err)
		s.Len(docs, 3)
	})
}

func (s *CollectionSuite) TestUpdateOne() {
	s.seed(1)

	s.Run("merges fields and keeps the rest", func() {
		res, err := s.coll.UpdateOne(s.ctx, docstore.ByID("doc-0"), docstore.Update{
			Set: docstore.Document{"name": "Company 0", "_id": "ignored"},
		}, false)
		s.Require().NoError(err)
		s.EqualValues(1, res.Matched)

		doc, err := s.coll.FindOne(s.ctx, docstore.ByID("doc-0"))
		s.Require().NoError(err)
		s.Equal("Company 0", doc["name"])
		s.Equal("Company 0", doc["companyName"])
		s.Equal("doc-0", doc.ID())
	})

	s.Run("no match without upsert", func() {
		res, err := s.coll.UpdateOne(s.ctx, docstore.ByID("missing"), docstore.Update{Set: docstore.Document{"x": "y"}}, false)
		s.Require().NoError(err)
		s.Zero(res.Matched)
		_, err = s.coll.FindOne(s.ctx, docstore.ByID("missing"))
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("upsert creates the document", func() {
		res, err := s.coll.UpdateOne(s.ctx, docstore.ByID("schema_metadata"), docstore.Update{
			Set: docstore.Document{"active_context": "enhanced", "updated_at": time.Now().UTC().Format(time.RFC3339)},
		}, true)
		s.Require().NoError(err)
		s.Equal("schema_metadata", res.UpsertedID)

		doc, err := s.coll.FindOne(s.ctx, docstore.ByID("schema_metadata"))
		s.Require().NoError(err)
		s.Equal("enhanced", doc["active_context"])
	})
}

func (s *CollectionSuite) TestDeleteAndIndex() {
	s.seed(3)
	s.Require().NoError(s.coll.CreateIndex(s.ctx, "companyName", false))

	n, err := s.coll.DeleteMany(s.ctx, docstore.Filter{ExcludeIDs: []string{"doc-1"}})
	s.Require().NoError(err)
	s.EqualValues(2, n)

	count, err := s.coll.CountDocuments(s.ctx, docstore.Filter{})
	s.Require().NoError(err)
	s.EqualValues(1, count)
}

func (s *CollectionSuite) TestNestedValuesRoundTrip() {
	_, err := s.coll.InsertOne(s.ctx, docstore.Document{
		"_id":     "nested",
		"profile": map[string]any{"website": "https://example.com", "therapeutic_areas": []any{"oncology"}},
	})
	s.Require().NoError(err)

	doc, err := s.coll.FindOne(s.ctx, docstore.ByID("nested"))
	s.Require().NoError(err)
	profile, ok := doc["profile"].(map[string]any)
	s.Require().True(ok, "nested documents decode as map[string]any, got %T", doc["profile"])
	s.Equal("https://example.com", profile["website"])
}

func (s *CollectionSuite) TestNativeKeyedDocuments() {
	if s.InsertNative == nil {
		s.T().Skip("backend has no native key type")
	}
	s.InsertNative(s.ctx, s.coll.Name(), docstore.Document{"companyName": "Legacy Co"})

	docs, err := docstore.All(s.ctx, mustFind(s, docstore.Filter{}))
	s.Require().NoError(err)
	s.Require().Len(docs, 1)
	id := docs[0].ID()
	s.Require().NotEmpty(id)

	s.Run("finds by rendered id", func() {
		doc, err := s.coll.FindOne(s.ctx, docstore.ByID(id))
		s.Require().NoError(err)
		s.Equal("Legacy Co", doc["companyName"])
	})

	s.Run("updates in place", func() {
		res, err := s.coll.UpdateOne(s.ctx, docstore.ByID(id), docstore.Update{
			Set: docstore.Document{"name": "Legacy Co", "_schema_version": "2.0.0"},
		}, false)
		s.Require().NoError(err)
		s.EqualValues(1, res.Matched)

		doc, err := s.coll.FindOne(s.ctx, docstore.ByID(id))
		s.Require().NoError(err)
		s.Equal("2.0.0", doc["_schema_version"])
	})

	s.Run("upsert does not duplicate", func() {
		res, err := s.coll.UpdateOne(s.ctx, docstore.ByID(id), docstore.Update{
			Set: docstore.Document{"status": "active"},
		}, true)
		s.Require().NoError(err)
		s.EqualValues(1, res.Matched)
		s.Empty(res.UpsertedID)

		n, err := s.coll.CountDocuments(s.ctx, docstore.Filter{})
		s.Require().NoError(err)
		s.EqualValues(1, n)
	})

	s.Run("excluded by rendered id", func() {
		n, err := s.coll.CountDocuments(s.ctx, docstore.Filter{ExcludeIDs: []string{id}})
		s.Require().NoError(err)
		s.Zero(n)
	})
}

func mustFind(s *CollectionSuite, f docstore.Filter) docstore.Cursor {
	cur, err := s.coll.Find(s.ctx, f)
	s.Require().NoError(err)
	return cur
}
