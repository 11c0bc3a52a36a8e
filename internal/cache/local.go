package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration      = time.Hour
	DefaultCleanupInterval = 10 * time.Minute
)

// Local is an in-process cache for single-instance deployments and tests.
type Local struct {
	cache *gocache.Cache
}

func NewLocal(defaultExpiration, cleanupInterval time.Duration) *Local {
	return &Local{cache: gocache.New(defaultExpiration, cleanupInterval)}
}

func (l *Local) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	v, ok := l.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	raw, ok := v.([]byte)
	if !ok {
		l.cache.Delete(key)
		return nil, false, nil
	}
	return append([]byte(nil), raw...), true, nil
}

// Set stores a copy of value. A zero ttl uses the default expiration.
func (l *Local) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ttl == 0 {
		ttl = gocache.DefaultExpiration
	}
	l.cache.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (l *Local) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		l.cache.Delete(k)
	}
	return nil
}

func (l *Local) Flush() {
	l.cache.Flush()
}
