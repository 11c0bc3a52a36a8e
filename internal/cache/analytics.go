package cache

import (
	"context"
	"log/slog"
	"time"
)

// AnalyticsTTL is how long analytics stay cached unless configured otherwise.
const AnalyticsTTL = time.Hour

// AnalyticsCache stores per-trial analytics and per-id analysis results as
// JSON. Cache failures are logged and reported as misses so callers fall back
// to recomputing.
type AnalyticsCache struct {
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

func NewAnalyticsCache(c Cache, ttl time.Duration, logger *slog.Logger) *AnalyticsCache {
	if ttl <= 0 {
		ttl = AnalyticsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AnalyticsCache{cache: c, ttl: ttl, logger: logger}
}

func trialAnalyticsKey(trialID string) string { return "trial_analytics:" + trialID }

func analysisKey(analysisID string) string { return "analysis:" + analysisID }

// TrialAnalytics loads the cached analytics of one trial into dst.
func (a *AnalyticsCache) TrialAnalytics(ctx context.Context, trialID string, dst any) bool {
	return a.get(ctx, trialAnalyticsKey(trialID), dst)
}

func (a *AnalyticsCache) SetTrialAnalytics(ctx context.Context, trialID string, analytics any) {
	a.set(ctx, trialAnalyticsKey(trialID), analytics)
}

// Analysis loads a cached analysis result into dst.
func (a *AnalyticsCache) Analysis(ctx context.Context, analysisID string, dst any) bool {
	return a.get(ctx, analysisKey(analysisID), dst)
}

// SetAnalysis stores result and reports whether the write succeeded.
func (a *AnalyticsCache) SetAnalysis(ctx context.Context, analysisID string, result any) bool {
	return a.set(ctx, analysisKey(analysisID), result)
}

// InvalidateTrial drops the cached analytics of trialID.
func (a *AnalyticsCache) InvalidateTrial(ctx context.Context, trialID string) {
	if err := a.cache.Delete(ctx, trialAnalyticsKey(trialID)); err != nil {
		a.logger.WarnContext(ctx, "analytics cache delete failed", "trial_id", trialID, "error", err)
	}
}

func (a *AnalyticsCache) get(ctx context.Context, key string, dst any) bool {
	ok, err := GetJSON(ctx, a.cache, key, dst)
	if err != nil {
		a.logger.WarnContext(ctx, "analytics cache read failed", "key", key, "error", err)
		return false
	}
	return ok
}

func (a *AnalyticsCache) set(ctx context.Context, key string, value any) bool {
	if err := SetJSON(ctx, a.cache, key, value, a.ttl); err != nil {
		a.logger.WarnContext(ctx, "analytics cache write failed", "key", key, "error", err)
		return false
	}
	return true
}
