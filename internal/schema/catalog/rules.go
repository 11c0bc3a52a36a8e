package catalog

import (
	"time"

	"trialstore/internal/schema"
)

func firstString(d schema.Document, keys ...string) string {
	for _, k := range keys {
		if s, ok := d[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func orEmptyList(v any) any {
	if v == nil {
		return []any{}
	}
	return v
}

func orEmptyMap(v any) any {
	if v == nil {
		return map[string]any{}
	}
	return v
}

func migrationMetadata(now func() time.Time) schema.Rule {
	return schema.Func(func(d schema.Document) any {
		ts := now().UTC()
		created := any(ts)
		if v, ok := d["created_at"]; ok && v != nil {
			created = v
		}
		return map[string]any{
			"created_at": created,
			"updated_at": ts,
			"source":     "migration",
		}
	})
}

// CompanyLegacyToEnhanced maps 0.9.0 companies onto 2.0.0.
func CompanyLegacyToEnhanced(now func() time.Time) *schema.RuleSet {
	return &schema.RuleSet{
		Name:   "company-0.9.0-to-2.0.0",
		Schema: "company",
		From:   schema.NewVersion(0, 9, 0),
		To:     schema.NewVersion(2, 0, 0),
		Fields: map[string]schema.Rule{
			"id": schema.Func(func(d schema.Document) any { return d.ID() }),
			"company_identifiers": schema.Func(func(d schema.Document) any {
				return []any{map[string]any{"id": d.ID(), "type": "internal", "source": "legacy"}}
			}),
			"name":          schema.Func(func(d schema.Document) any { return d["companyName"] }),
			"relationships": schema.Const([]any{}),
			"kg_references": schema.Const([]any{}),
			"context_cache": schema.Func(func(d schema.Document) any { return orEmptyMap(d["contextual_data"]) }),
			"profile": schema.Func(func(d schema.Document) any {
				return map[string]any{
					"website":           d["companyWebsite"],
					"contact_email":     d["contactEmail"],
					"company_size":      d["companySize"],
					"headquarters":      d["headquarters"],
					"therapeutic_areas": orEmptyList(d["therapeutic_areas"]),
					"trial_analytics":   orEmptyMap(d["trial_analytics"]),
				}
			}),
			"status":   schema.Const("active"),
			"metadata": migrationMetadata(now),
			"audit_trail": schema.Func(func(schema.Document) any {
				return []any{map[string]any{
					"action":    "migrated",
					"timestamp": now().UTC(),
					"details":   "Migrated from legacy schema",
				}}
			}),
		},
	}
}

// TrialLegacyToEnhanced maps 0.9.0 trials onto 2.0.0.
func TrialLegacyToEnhanced(now func() time.Time) *schema.RuleSet {
	return &schema.RuleSet{
		Name:   "trial-0.9.0-to-2.0.0",
		Schema: "trial",
		From:   schema.NewVersion(0, 9, 0),
		To:     schema.NewVersion(2, 0, 0),
		Fields: map[string]schema.Rule{
			"trial_identification": schema.Func(func(d schema.Document) any {
				return map[string]any{
					"trial_id":     d.ID(),
					"nct_id":       d["nct_id"],
					"external_ids": []any{},
				}
			}),
			"relationships": schema.Const([]any{}),
			"kg_references": schema.Const([]any{}),
			"conditions":    schema.Func(func(d schema.Document) any { return orEmptyList(d["conditions"]) }),
			"interventions": schema.Func(func(d schema.Document) any { return orEmptyList(d["interventions"]) }),
			"metadata":      migrationMetadata(now),
		},
		Multi: []schema.MultiRule{
			func(d schema.Document) (schema.Document, error) {
				status := firstString(d, "status", "overall_status")
				if status == "" {
					status = "unknown"
				}
				return schema.Document{
					"title":  firstString(d, "title", "brief_title", "briefTitle"),
					"status": status,
				}, nil
			},
		},
	}
}
