package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/asaskevich/govalidator"
)

var companyStatuses = map[string]bool{"active": true, "inactive": true, "archived": true}

// LegacyCompany is the pre-versioning company record (0.9.0).
type LegacyCompany struct {
	ID               string         `json:"_id" valid:"required"`
	CompanyName      string         `json:"companyName" valid:"required"`
	CompanyWebsite   string         `json:"companyWebsite"`
	ContactEmail     string         `json:"contactEmail"`
	CompanySize      any            `json:"companySize"`
	Headquarters     string         `json:"headquarters"`
	TherapeuticAreas []string       `json:"therapeutic_areas"`
	TrialAnalytics   map[string]any `json:"trial_analytics"`
	ContextualData   map[string]any `json:"contextual_data"`
}

// Identifier is one external or internal id of an entity.
type Identifier struct {
	ID     string `json:"id" valid:"required"`
	Type   string `json:"type"`
	Source string `json:"source"`
}

// Relationship links two entities.
type Relationship struct {
	SourceID         string         `json:"source_id" valid:"required"`
	TargetID         string         `json:"target_id" valid:"required"`
	RelationshipType string         `json:"relationship_type" valid:"required"`
	Properties       map[string]any `json:"properties"`
	ValidFrom        *time.Time     `json:"valid_from"`
	ValidTo          *time.Time     `json:"valid_to"`
	Source           string         `json:"source"`
}

// CompanyProfile is the structured part of an enhanced company.
type CompanyProfile struct {
	Website          *string        `json:"website"`
	ContactEmail     *string        `json:"contact_email"`
	CompanySize      any            `json:"company_size"`
	Headquarters     *string        `json:"headquarters"`
	TherapeuticAreas []string       `json:"therapeutic_areas"`
	TrialAnalytics   map[string]any `json:"trial_analytics"`
}

// AuditEntry records one change to an entity.
type AuditEntry struct {
	Action    string    `json:"action" valid:"required"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// EnhancedCompany is the knowledge-graph aware company record (2.0.0).
type EnhancedCompany struct {
	ID                 string           `json:"id" valid:"required"`
	Name               string           `json:"name" valid:"required"`
	CompanyIdentifiers []Identifier     `json:"company_identifiers"`
	Relationships      []Relationship   `json:"relationships"`
	KGReferences       []map[string]any `json:"kg_references"`
	ContextCache       map[string]any   `json:"context_cache"`
	Profile            CompanyProfile   `json:"profile"`
	Status             string           `json:"status"`
	Metadata           map[string]any   `json:"metadata"`
	AuditTrail         []AuditEntry     `json:"audit_trail"`
}

func (c *EnhancedCompany) Check() error {
	var errs []error
	if c.Status != "" && !companyStatuses[c.Status] {
		errs = append(errs, fmt.Errorf("status %q is not one of active, inactive, archived", c.Status))
	}
	if e := c.Profile.ContactEmail; e != nil && *e != "" && !govalidator.IsEmail(*e) {
		errs = append(errs, fmt.Errorf("profile.contact_email %q is not an email address", *e))
	}
	if w := c.Profile.Website; w != nil && *w != "" && !govalidator.IsURL(*w) {
		errs = append(errs, fmt.Errorf("profile.website %q is not a URL", *w))
	}
	return errors.Join(errs...)
}

// LegacyTrial is the pre-versioning trial record (0.9.0).
type LegacyTrial struct {
	ID            string `json:"_id" valid:"required"`
	NCTID         string `json:"nct_id"`
	Title         string `json:"title"`
	BriefTitle    string `json:"brief_title"`
	Phase         string `json:"phase"`
	Status        string `json:"status"`
	OverallStatus string `json:"overall_status"`
	Conditions    []any  `json:"conditions"`
	Interventions []any  `json:"interventions"`
}

// TrialIdentification groups the ids of an enhanced trial.
type TrialIdentification struct {
	TrialID     string `json:"trial_id" valid:"required"`
	NCTID       string `json:"nct_id"`
	ExternalIDs []any  `json:"external_ids"`
}

// EnhancedTrial is the knowledge-graph aware trial record (2.0.0).
type EnhancedTrial struct {
	TrialIdentification TrialIdentification `json:"trial_identification"`
	Title               string              `json:"title" valid:"required"`
	Phase               *string             `json:"phase"`
	Status              string              `json:"status" valid:"required"`
	Relationships       []Relationship      `json:"relationships"`
	KGReferences        []map[string]any    `json:"kg_references"`
	Conditions          []any               `json:"conditions"`
	Interventions       []any               `json:"interventions"`
	DataSources         map[string]any      `json:"data_sources"`
	ContextCache        map[string]any      `json:"context_cache"`
	Metadata            map[string]any      `json:"metadata"`
}
