package cache

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCacheMiss = errors.New("cache: key not found")
)

// Service defines cache operations. Values are stored as JSON, so Get decodes
// into any pointer that Set's value marshals from.
type Service interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
	Delete(ctx context.Context, keys ...string) error
	DeleteByPattern(ctx context.Context, pattern string) error
	Close() error
}

// Remember returns the cached value for key, or calls load and caches its result.
// Cache failures fall through to load.
func Remember[T any](ctx context.Context, c Service, key string, ttl time.Duration, load func() (T, error)) (T, bool, error) {
	var v T
	if c == nil {
		v, err := load()
		return v, false, err
	}
	if err := c.Get(ctx, key, &v); err == nil {
		return v, true, nil
	}

	v, err := load()
	if err != nil {
		return v, false, err
	}
	_ = c.Set(ctx, key, v, ttl)
	return v, false, nil
}
