// Package docstore is the document store the schema engine reads and writes
// through: named collections of schemaless documents keyed by "_id", with
// equality-only filters.
package docstore

import (
	"context"
	"fmt"
	"reflect"
)

// IDField is the primary key of every document.
const IDField = "_id"

// Document is a stored record.
type Document map[string]any

// ID renders the primary key as a string, or "" when absent.
func (d Document) ID() string {
	v, ok := d[IDField]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Filter selects documents by primary key and top-level field equality.
// The zero Filter matches everything.
type Filter struct {
	ID         string
	Equals     map[string]any
	ExcludeIDs []string
}

// ByID is shorthand for a primary key filter.
func ByID(id string) Filter {
	return Filter{ID: id}
}

// Matches reports whether d satisfies f.
func (f Filter) Matches(d Document) bool {
	id := d.ID()
	if f.ID != "" && id != f.ID {
		return false
	}
	for _, ex := range f.ExcludeIDs {
		if id == ex {
			return false
		}
	}
	for k, want := range f.Equals {
		got, ok := d[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

// Update describes a partial write. Set merges top-level fields; "_id" in Set
// is ignored.
type Update struct {
	Set Document
}

// UpdateResult mirrors the driver result of a single-document update.
type UpdateResult struct {
	Matched    int64
	Modified   int64
	UpsertedID string
}

// FindOptions bounds a Find call.
type FindOptions struct {
	Limit int64
}

// FindOption configures FindOptions.
type FindOption func(*FindOptions)

// WithLimit caps the number of documents returned; 0 means no limit.
func WithLimit(n int64) FindOption {
	return func(o *FindOptions) { o.Limit = n }
}

// ApplyFindOptions folds opts into a FindOptions value.
func ApplyFindOptions(opts ...FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Cursor iterates over a Find result. Callers must Close it.
type Cursor interface {
	Next(ctx context.Context) bool
	Document() Document
	Err() error
	Close(ctx context.Context) error
}

//go:generate mockgen -source=docstore.go -destination=mocks/mocks.go -package=mocks

// Collection is one named set of documents. Lookups that find nothing return
// sentinel.ErrNotFound; inserts that clash on "_id" return sentinel.ErrConflict.
type Collection interface {
	Name() string
	FindOne(ctx context.Context, filter Filter) (Document, error)
	Find(ctx context.Context, filter Filter, opts ...FindOption) (Cursor, error)
	UpdateOne(ctx context.Context, filter Filter, update Update, upsert bool) (UpdateResult, error)
	InsertOne(ctx context.Context, doc Document) (string, error)
	DeleteMany(ctx context.Context, filter Filter) (int64, error)
	CountDocuments(ctx context.Context, filter Filter) (int64, error)
	CreateIndex(ctx context.Context, field string, unique bool) error
}

// Store hands out collections of one database.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// All drains a cursor into a slice and closes it.
func All(ctx context.Context, cur Cursor) ([]Document, error) {
	defer cur.Close(ctx)
	var out []Document
	for cur.Next(ctx) {
		out = append(out, cur.Document())
	}
	return out, cur.Err()
}
