// Package store persists the registry's (name, version) pointers.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trialstore/internal/docstore"
	"trialstore/internal/schema"
	"trialstore/pkg/platform/sentinel"
)

// CollectionName holds one record per schema name.
const CollectionName = "schemas"

// DocumentMirror writes {_id: name, name, version} records into a docstore
// collection.
type DocumentMirror struct {
	coll docstore.Collection
}

func NewDocumentMirror(store docstore.Store) *DocumentMirror {
	return &DocumentMirror{coll: store.Collection(CollectionName)}
}

func (m *DocumentMirror) SaveVersion(ctx context.Context, name string, v schema.Version) error {
	_, err := m.coll.UpdateOne(ctx,
		docstore.ByID(name),
		docstore.Update{Set: docstore.Document{"name": name, "version": v.String()}},
		true,
	)
	if err != nil {
		return fmt.Errorf("save schema pointer %s: %w", name, err)
	}
	return nil
}

func (m *DocumentMirror) LoadVersions(ctx context.Context) ([]schema.VersionPointer, error) {
	cur, err := m.coll.Find(ctx, docstore.Filter{})
	if err != nil {
		return nil, fmt.Errorf("load schema pointers: %w", err)
	}
	docs, err := docstore.All(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("load schema pointers: %w", err)
	}
	out := make([]schema.VersionPointer, 0, len(docs))
	for _, d := range docs {
		name, _ := d["name"].(string)
		if name == "" {
			name = d.ID()
		}
		raw, _ := d["version"].(string)
		v, err := schema.ParseVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("schema pointer %s: %w: %v", name, sentinel.ErrInvalidState, err)
		}
		out = append(out, schema.VersionPointer{Name: name, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// InMemory is a Mirror for tests and single-process runs.
type InMemory struct {
	mu       sync.RWMutex
	versions map[string]schema.Version
}

func NewInMemory() *InMemory {
	return &InMemory{versions: make(map[string]schema.Version)}
}

func (m *InMemory) SaveVersion(_ context.Context, name string, v schema.Version) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.versions[name] = v
	return nil
}

func (m *InMemory) LoadVersions(context.Context) ([]schema.VersionPointer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]schema.VersionPointer, 0, len(m.versions))
	for name, v := range m.versions {
		out = append(out, schema.VersionPointer{Name: name, Version: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
