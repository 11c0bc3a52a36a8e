package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	Conditions int    `json:"conditions"`
	Phase      string `json:"phase"`
}

type brokenCache struct{}

func (brokenCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (brokenCache) Delete(context.Context, ...string) error { return nil }

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return []byte("{not json"), true, nil
}

func TestLocal_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(DefaultExpiration, DefaultCleanupInterval)

	_, ok, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	value := []byte("v1")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", string(got), "stored value is a copy")

	require.NoError(t, c.Delete(ctx, "k"))
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestLocal_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewLocal(DefaultExpiration, DefaultCleanupInterval)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), 20*time.Millisecond))

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestLocal_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewLocal(DefaultExpiration, DefaultCleanupInterval)
	assert.ErrorIs(t, c.Set(ctx, "k", []byte("v"), 0), context.Canceled)
}

func TestAnalyticsCache(t *testing.T) {
	ctx := context.Background()
	local := NewLocal(DefaultExpiration, DefaultCleanupInterval)
	a := NewAnalyticsCache(local, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	t.Run("trial analytics round trip under the trial key", func(t *testing.T) {
		var got summary
		assert.False(t, a.TrialAnalytics(ctx, "t-1", &got))

		a.SetTrialAnalytics(ctx, "t-1", summary{Conditions: 2, Phase: "II"})
		require.True(t, a.TrialAnalytics(ctx, "t-1", &got))
		assert.Equal(t, summary{Conditions: 2, Phase: "II"}, got)

		_, ok, _ := local.Get(ctx, "trial_analytics:t-1")
		assert.True(t, ok)
	})

	t.Run("analysis results use their own key space", func(t *testing.T) {
		a.SetAnalysis(ctx, "t-1", map[string]int{"n": 1})
		_, ok, _ := local.Get(ctx, "analysis:t-1")
		assert.True(t, ok)

		var got map[string]int
		require.True(t, a.Analysis(ctx, "t-1", &got))
		assert.Equal(t, 1, got["n"])
	})

	t.Run("invalidate drops trial analytics", func(t *testing.T) {
		a.InvalidateTrial(ctx, "t-1")
		var got summary
		assert.False(t, a.TrialAnalytics(ctx, "t-1", &got))
	})

	t.Run("undecodable entries are misses", func(t *testing.T) {
		broken := NewAnalyticsCache(brokenCache{}, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
		var got summary
		assert.False(t, broken.TrialAnalytics(ctx, "t-1", &got))
	})
}
