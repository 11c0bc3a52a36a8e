// Package mongo implements the document store on MongoDB collections.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"trialstore/internal/docstore"
	"trialstore/pkg/platform/sentinel"
)

// Store is a docstore.Store over one Mongo database.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Collection(name string) docstore.Collection {
	return &Collection{coll: s.db.Collection(name)}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// Collection adapts *mongo.Collection to docstore.Collection.
type Collection struct {
	coll *mongo.Collection
}

func (c *Collection) Name() string { return c.coll.Name() }

// idValues lists the stored forms an id may take. Documents inserted by other
// clients carry ObjectIDs, which surface as their hex string.
func idValues(id string) bson.A {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.A{id, oid}
	}
	return bson.A{id}
}

func toBSON(f docstore.Filter) bson.M {
	m := bson.M{}
	for k, v := range f.Equals {
		m[k] = v
	}
	cond := bson.M{}
	if f.ID != "" {
		ids := idValues(f.ID)
		if len(ids) == 1 && len(f.ExcludeIDs) == 0 {
			m[docstore.IDField] = f.ID
			return m
		}
		cond["$in"] = ids
	}
	if len(f.ExcludeIDs) > 0 {
		var nin bson.A
		for _, id := range f.ExcludeIDs {
			nin = append(nin, idValues(id)...)
		}
		cond["$nin"] = nin
	}
	if len(cond) > 0 {
		m[docstore.IDField] = cond
	}
	return m
}

func (c *Collection) FindOne(ctx context.Context, filter docstore.Filter) (docstore.Document, error) {
	var raw bson.M
	err := c.coll.FindOne(ctx, toBSON(filter)).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find one in %s: %w", c.Name(), err)
	}
	return normalizeDoc(raw), nil
}

func (c *Collection) Find(ctx context.Context, filter docstore.Filter, opts ...docstore.FindOption) (docstore.Cursor, error) {
	o := docstore.ApplyFindOptions(opts...)
	findOpts := options.Find()
	if o.Limit > 0 {
		findOpts.SetLimit(o.Limit)
	}
	cur, err := c.coll.Find(ctx, toBSON(filter), findOpts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", c.Name(), err)
	}
	return &cursor{cur: cur}, nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter docstore.Filter, update docstore.Update, upsert bool) (docstore.UpdateResult, error) {
	set := bson.M{}
	for k, v := range update.Set {
		if k != docstore.IDField {
			set[k] = v
		}
	}
	q := toBSON(filter)
	doc := bson.M{"$set": set}
	switch {
	case !upsert:
	case filter.ID == "":
		doc["$setOnInsert"] = bson.M{docstore.IDField: uuid.NewString()}
	case len(idValues(filter.ID)) > 1:
		// $in does not seed the inserted document's _id.
		doc["$setOnInsert"] = bson.M{docstore.IDField: filter.ID}
	}
	res, err := c.coll.UpdateOne(ctx, q, doc, options.Update().SetUpsert(upsert))
	if err != nil {
		return docstore.UpdateResult{}, fmt.Errorf("update in %s: %w", c.Name(), err)
	}
	out := docstore.UpdateResult{Matched: res.MatchedCount, Modified: res.ModifiedCount}
	switch id := res.UpsertedID.(type) {
	case nil:
	case primitive.ObjectID:
		out.UpsertedID = id.Hex()
	default:
		out.UpsertedID = fmt.Sprint(id)
	}
	return out, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc docstore.Document) (string, error) {
	stored := bson.M{}
	for k, v := range doc {
		stored[k] = v
	}
	id := doc.ID()
	if id == "" {
		id = uuid.NewString()
	}
	stored[docstore.IDField] = id
	if _, err := c.coll.InsertOne(ctx, stored); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("insert %s into %s: %w", id, c.Name(), sentinel.ErrConflict)
		}
		return "", fmt.Errorf("insert into %s: %w", c.Name(), err)
	}
	return id, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter docstore.Filter) (int64, error) {
	res, err := c.coll.DeleteMany(ctx, toBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", c.Name(), err)
	}
	return res.DeletedCount, nil
}

func (c *Collection) CountDocuments(ctx context.Context, filter docstore.Filter) (int64, error) {
	n, err := c.coll.CountDocuments(ctx, toBSON(filter))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.Name(), err)
	}
	return n, nil
}

func (c *Collection) CreateIndex(ctx context.Context, field string, unique bool) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: field, Value: 1}},
		Options: options.Index().SetUnique(unique),
	})
	if err != nil {
		return fmt.Errorf("create index on %s.%s: %w", c.Name(), field, err)
	}
	return nil
}

type cursor struct {
	cur *mongo.Cursor
	doc docstore.Document
	err error
}

func (c *cursor) Next(ctx context.Context) bool {
	if c.err != nil || !c.cur.Next(ctx) {
		return false
	}
	var raw bson.M
	if err := c.cur.Decode(&raw); err != nil {
		c.err = err
		return false
	}
	c.doc = normalizeDoc(raw)
	return true
}

func (c *cursor) Document() docstore.Document { return c.doc }

func (c *cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.cur.Err()
}

func (c *cursor) Close(ctx context.Context) error { return c.cur.Close(ctx) }

// normalizeDoc converts driver container types into plain maps and slices so
// documents look the same regardless of backend.
func normalizeDoc(m bson.M) docstore.Document {
	out := make(docstore.Document, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	if id, ok := m[docstore.IDField].(primitive.ObjectID); ok {
		out[docstore.IDField] = id.Hex()
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(normalizeDoc(t))
	case bson.D:
		return map[string]any(normalizeDoc(t.Map()))
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = normalize(item)
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}
