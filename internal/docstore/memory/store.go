package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"trialstore/internal/docstore"
	"trialstore/pkg/platform/sentinel"
)

// Store keeps collections in process memory. Documents are deep-copied on the
// way in and out so callers never share nested state with the store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

func New() *Store {
	return &Store{collections: make(map[string]*Collection)}
}

func (s *Store) Collection(name string) docstore.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &Collection{name: name, docs: make(map[string]*entry)}
		s.collections[name] = c
	}
	return c
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close(context.Context) error { return nil }

type entry struct {
	seq int64
	doc docstore.Document
}

// Collection is an in-memory docstore.Collection. Find returns documents in
// insertion order.
type Collection struct {
	name    string
	mu      sync.RWMutex
	docs    map[string]*entry
	seq     int64
	indexes map[string]bool
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) FindOne(ctx context.Context, filter docstore.Filter) (docstore.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.ordered() {
		if filter.Matches(e.doc) {
			return deepCopy(e.doc), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (c *Collection) Find(ctx context.Context, filter docstore.Filter, opts ...docstore.FindOption) (docstore.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := docstore.ApplyFindOptions(opts...)
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []docstore.Document
	for _, e := range c.ordered() {
		if o.Limit > 0 && int64(len(out)) >= o.Limit {
			break
		}
		if filter.Matches(e.doc) {
			out = append(out, deepCopy(e.doc))
		}
	}
	return &cursor{docs: out, pos: -1}, nil
}

func (c *Collection) UpdateOne(ctx context.Context, filter docstore.Filter, update docstore.Update, upsert bool) (docstore.UpdateResult, error) {
	if err := ctx.Err(); err != nil {
		return docstore.UpdateResult{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.ordered() {
		if !filter.Matches(e.doc) {
			continue
		}
		for k, v := range update.Set {
			if k == docstore.IDField {
				continue
			}
			e.doc[k] = deepCopyValue(v)
		}
		return docstore.UpdateResult{Matched: 1, Modified: 1}, nil
	}
	if !upsert {
		return docstore.UpdateResult{}, nil
	}

	doc := docstore.Document{}
	for k, v := range filter.Equals {
		doc[k] = deepCopyValue(v)
	}
	for k, v := range update.Set {
		if k != docstore.IDField {
			doc[k] = deepCopyValue(v)
		}
	}
	id := filter.ID
	if id == "" {
		id = uuid.NewString()
	}
	doc[docstore.IDField] = id
	c.put(id, doc)
	return docstore.UpdateResult{UpsertedID: id}, nil
}

func (c *Collection) InsertOne(ctx context.Context, doc docstore.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := deepCopy(doc)
	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored[docstore.IDField] = id
	}
	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("insert %s into %s: %w", id, c.name, sentinel.ErrConflict)
	}
	c.put(id, stored)
	return id, nil
}

func (c *Collection) DeleteMany(ctx context.Context, filter docstore.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for id, e := range c.docs {
		if filter.Matches(e.doc) {
			delete(c.docs, id)
			n++
		}
	}
	return n, nil
}

func (c *Collection) CountDocuments(ctx context.Context, filter docstore.Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, e := range c.docs {
		if filter.Matches(e.doc) {
			n++
		}
	}
	return n, nil
}

// CreateIndex only records the request; lookups are linear scans.
func (c *Collection) CreateIndex(ctx context.Context, field string, unique bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexes == nil {
		c.indexes = make(map[string]bool)
	}
	c.indexes[field] = unique
	return nil
}

func (c *Collection) put(id string, doc docstore.Document) {
	c.seq++
	c.docs[id] = &entry{seq: c.seq, doc: doc}
}

func (c *Collection) ordered() []*entry {
	out := make([]*entry, 0, len(c.docs))
	for _, e := range c.docs {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

type cursor struct {
	docs []docstore.Document
	pos  int
	err  error
}

func (c *cursor) Next(ctx context.Context) bool {
	if err := ctx.Err(); err != nil {
		c.err = err
		return false
	}
	c.pos++
	return c.pos < len(c.docs)
}

func (c *cursor) Document() docstore.Document { return c.docs[c.pos] }

func (c *cursor) Err() error { return c.err }

func (c *cursor) Close(context.Context) error { return nil }

func deepCopy(d docstore.Document) docstore.Document {
	out := make(docstore.Document, len(d))
	for k, v := range d {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case docstore.Document:
		return deepCopy(t)
	case map[string]any:
		return map[string]any(deepCopy(t))
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
