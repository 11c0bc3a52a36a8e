package service

import (
	"context"

	"trialstore/internal/collection/models"
)

// TrialsCollection holds clinical trial documents.
const TrialsCollection = "trials"

// TrialAnalytics summarises one trial. Summaries are cached until the trial
// is written again through PutDocument.
func (s *Service) TrialAnalytics(ctx context.Context, trialID string) (*models.TrialAnalytics, error) {
	if s.analytics != nil {
		var cached models.TrialAnalytics
		hit := s.analytics.TrialAnalytics(ctx, trialID, &cached)
		if s.metrics != nil {
			s.metrics.IncCacheLookup("trial_analytics", hit)
		}
		if hit {
			return &cached, nil
		}
	}

	doc, err := s.GetDocument(ctx, TrialsCollection, trialID)
	if err != nil {
		return nil, err
	}
	cc, err := s.CollectionContext(ctx, TrialsCollection)
	if err != nil {
		return nil, err
	}
	out := &models.TrialAnalytics{
		TrialID:       trialID,
		Status:        stringField(doc, "status", "overall_status"),
		Phase:         stringField(doc, "phase"),
		Conditions:    listLen(doc["conditions"]),
		Interventions: listLen(doc["interventions"]),
		Relationships: listLen(doc["relationships"]),
		Context:       cc.Context,
		ComputedAt:    s.now().UTC(),
	}
	if v, ok := doc.StampedVersion(); ok {
		out.SchemaVersion = v.String()
	}
	if s.analytics != nil {
		s.analytics.SetTrialAnalytics(ctx, trialID, out)
	}
	return out, nil
}

func stringField(doc map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := doc[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func listLen(v any) int {
	switch t := v.(type) {
	case []any:
		return len(t)
	case []string:
		return len(t)
	case []map[string]any:
		return len(t)
	default:
		return 0
	}
}
