// Package audit records who changed which schema state and when. Events are
// append-only.
package audit

import "time"

// Action names what happened.
type Action string

const (
	ActionSchemaRegistered    Action = "schema_registered"
	ActionContextChanged      Action = "context_changed"
	ActionCollectionMigrated  Action = "collection_migrated"
	ActionMigrationFailed     Action = "collection_migration_failed"
	ActionDocumentMigrated    Action = "document_migrated"
	ActionConformanceReported Action = "conformance_reported"
)

// Event is transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          string         `json:"id"`
	Timestamp   time.Time      `json:"timestamp"`
	Action      Action         `json:"action"`
	Collection  string         `json:"collection,omitempty"`
	Schema      string         `json:"schema,omitempty"`
	FromVersion string         `json:"from_version,omitempty"`
	ToVersion   string         `json:"to_version,omitempty"`
	Context     string         `json:"context,omitempty"`
	Operator    string         `json:"operator,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Filter narrows List. Zero values match everything; Limit 0 means no limit.
type Filter struct {
	Collection string
	Action     Action
	Limit      int
}

// Matches reports whether e passes f, ignoring Limit.
func (f Filter) Matches(e Event) bool {
	if f.Collection != "" && e.Collection != f.Collection {
		return false
	}
	return f.Action == "" || e.Action == f.Action
}
