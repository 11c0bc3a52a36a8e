// Package document persists audit events in a docstore collection.
package document

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trialstore/internal/audit"
	"trialstore/internal/docstore"
)

// CollectionName holds the audit trail next to the data it describes.
const CollectionName = "schema_audit"

type Store struct {
	coll docstore.Collection
}

func New(store docstore.Store) *Store {
	return &Store{coll: store.Collection(CollectionName)}
}

// EnsureIndexes creates the lookup indexes List relies on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, field := range []string{"collection", "action"} {
		if err := s.coll.CreateIndex(ctx, field, false); err != nil {
			return fmt.Errorf("index %s.%s: %w", CollectionName, field, err)
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, event audit.Event) error {
	if _, err := s.coll.InsertOne(ctx, toDocument(event)); err != nil {
		return fmt.Errorf("append audit event %s: %w", event.ID, err)
	}
	return nil
}

// List returns matching events ordered by timestamp. A limit keeps the most
// recent.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Event, error) {
	f := docstore.Filter{Equals: map[string]any{}}
	if filter.Collection != "" {
		f.Equals["collection"] = filter.Collection
	}
	if filter.Action != "" {
		f.Equals["action"] = string(filter.Action)
	}
	cur, err := s.coll.Find(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	docs, err := docstore.All(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	out := make([]audit.Event, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromDocument(d))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func toDocument(e audit.Event) docstore.Document {
	d := docstore.Document{
		docstore.IDField: e.ID,
		"timestamp":      e.Timestamp.UTC().Format(time.RFC3339Nano),
		"action":         string(e.Action),
	}
	optional := map[string]string{
		"collection":   e.Collection,
		"schema":       e.Schema,
		"from_version": e.FromVersion,
		"to_version":   e.ToVersion,
		"context":      e.Context,
		"operator":     e.Operator,
		"request_id":   e.RequestID,
	}
	for k, v := range optional {
		if v != "" {
			d[k] = v
		}
	}
	if len(e.Details) > 0 {
		d["details"] = map[string]any(e.Details)
	}
	return d
}

func fromDocument(d docstore.Document) audit.Event {
	get := func(k string) string {
		s, _ := d[k].(string)
		return s
	}
	e := audit.Event{
		ID:          d.ID(),
		Action:      audit.Action(get("action")),
		Collection:  get("collection"),
		Schema:      get("schema"),
		FromVersion: get("from_version"),
		ToVersion:   get("to_version"),
		Context:     get("context"),
		Operator:    get("operator"),
		RequestID:   get("request_id"),
	}
	if ts, err := time.Parse(time.RFC3339Nano, get("timestamp")); err == nil {
		e.Timestamp = ts
	}
	if details, ok := d["details"].(map[string]any); ok {
		e.Details = details
	}
	return e
}
