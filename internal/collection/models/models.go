package models

import (
	"time"

	"trialstore/internal/schema"
)

// SentinelID is the reserved document that stores a collection's context.
const SentinelID = "schema_metadata"

// Sentinel fields.
const (
	FieldActiveContext = "active_context"
	FieldUpdatedAt     = "updated_at"
)

// ContextSource says where a collection context was read from.
type ContextSource string

const (
	SourceCollection ContextSource = "collection"
	SourceGlobal     ContextSource = "global"
)

// CollectionContext is the resolved context of one collection.
type CollectionContext struct {
	Collection string         `json:"collection"`
	Context    schema.Context `json:"context"`
	Source     ContextSource  `json:"source"`
	UpdatedAt  *time.Time     `json:"updated_at,omitempty"`
}

// Failure stages of a bulk migration.
const (
	StageMigrate  = "migrate"
	StageValidate = "validate"
	StageWrite    = "write"
)

// DocumentFailure explains why one document was not migrated or does not
// conform.
type DocumentFailure struct {
	ID     string              `json:"id"`
	Stage  string              `json:"stage,omitempty"`
	Error  string              `json:"error"`
	Fields []schema.FieldError `json:"fields,omitempty"`
}

// MigrationReport summarises one MigrateCollection run. Every document is
// counted exactly once in Migrated, Stamped, Skipped or Failed.
type MigrationReport struct {
	Collection     string            `json:"collection"`
	Schema         string            `json:"schema"`
	FromContext    schema.Context    `json:"from_context"`
	ToContext      schema.Context    `json:"to_context"`
	FromVersion    string            `json:"from_version"`
	ToVersion      string            `json:"to_version"`
	Total          int               `json:"total"`
	Migrated       int               `json:"migrated"`
	Stamped        int               `json:"stamped"`
	Skipped        int               `json:"skipped"`
	Failed         int               `json:"failed"`
	Failures       []DocumentFailure `json:"failures,omitempty"`
	ContextUpdated bool              `json:"context_updated"`
	TimedOut       bool              `json:"timed_out,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at"`
}

// ConformanceReport is the pre-update check of a collection sample against
// the schema of the collection's context.
type ConformanceReport struct {
	Collection     string            `json:"collection"`
	Schema         string            `json:"schema"`
	Context        schema.Context    `json:"context"`
	Version        string            `json:"version"`
	TotalCount     int64             `json:"total_count"`
	Sampled        int               `json:"sampled"`
	Compliant      int               `json:"compliant"`
	NonCompliant   int               `json:"non_compliant"`
	InternalErrors int               `json:"internal_errors"`
	Errors         []DocumentFailure `json:"errors,omitempty"`
	SafeToProceed  bool              `json:"safe_to_proceed"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// SchemaInfo describes the schema behind a collection.
type SchemaInfo struct {
	Collection        string            `json:"collection"`
	Schema            string            `json:"schema"`
	Versions          []string          `json:"versions"`
	Contexts          map[string]string `json:"contexts"`
	ActiveContext     schema.Context    `json:"active_context"`
	CollectionContext schema.Context    `json:"collection_context"`
	CurrentVersion    string            `json:"current_version,omitempty"`
	HasLegacy         bool              `json:"has_legacy"`
}

// TrialAnalytics is the cached summary of one trial document.
type TrialAnalytics struct {
	TrialID       string         `json:"trial_id"`
	Status        string         `json:"status,omitempty"`
	Phase         string         `json:"phase,omitempty"`
	Conditions    int            `json:"conditions"`
	Interventions int            `json:"interventions"`
	Relationships int            `json:"relationships"`
	SchemaVersion string         `json:"schema_version,omitempty"`
	Context       schema.Context `json:"context"`
	ComputedAt    time.Time      `json:"computed_at"`
}
