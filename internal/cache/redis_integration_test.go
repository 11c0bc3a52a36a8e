//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"trialstore/internal/cache"
	"trialstore/pkg/testutil/containers"
)

type RedisCacheSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	cache *cache.Redis
}

func TestRedisCacheSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisCacheSuite))
}

func (s *RedisCacheSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.cache = cache.NewRedis(s.redis.Client.Client, cache.WithNamespace("test"))
}

func (s *RedisCacheSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisCacheSuite) TestGetSetDelete() {
	ctx := context.Background()

	_, ok, err := s.cache.Get(ctx, "k")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.cache.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := s.cache.Get(ctx, "k")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal("v", string(got))

	raw, err := s.redis.Client.Get(ctx, "test:k").Result()
	s.Require().NoError(err)
	s.Equal("v", raw, "keys are namespaced")

	s.Require().NoError(s.cache.Delete(ctx, "k"))
	_, ok, err = s.cache.Get(ctx, "k")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisCacheSuite) TestTTL() {
	ctx := context.Background()
	s.Require().NoError(s.cache.Set(ctx, "short", []byte("v"), time.Second))
	ttl, err := s.redis.Client.TTL(ctx, "test:short").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, time.Second)
}

func (s *RedisCacheSuite) TestAnalyticsCache() {
	ctx := context.Background()
	a := cache.NewAnalyticsCache(s.cache, time.Hour, nil)
	a.SetTrialAnalytics(ctx, "t-9", map[string]any{"conditions": 3})

	var got map[string]any
	s.True(a.TrialAnalytics(ctx, "t-9", &got))
	s.EqualValues(3, got["conditions"])

	ttl, err := s.redis.Client.TTL(ctx, "test:trial_analytics:t-9").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 59*time.Minute)
}

func (s *RedisCacheSuite) TestClientHealth() {
	s.NoError(s.redis.Client.Health(context.Background()))
}
