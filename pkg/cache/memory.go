package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"
)

// defaultExpiration applies when Set is called without one.
const defaultExpiration = 24 * time.Hour

type memoryItem struct {
	data     []byte
	expireAt time.Time
	access   time.Time
}

// MemoryCache implements Service in process with LRU eviction.
type MemoryCache struct {
	mu      sync.Mutex
	data    map[string]*memoryItem
	maxSize int
	now     func() time.Time
	ticker  *time.Ticker
	done    chan struct{}
	once    sync.Once
}

// NewMemoryCache creates an in-memory cache.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
		Now:             time.Now,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		maxSize: cfg.MaxSize,
		now:     cfg.Now,
		ticker:  time.NewTicker(cfg.CleanupInterval),
		done:    make(chan struct{}),
	}

	go mc.cleanupLoop()
	return mc
}

func (mc *MemoryCache) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if expiration <= 0 {
		expiration = defaultExpiration
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	if _, exists := mc.data[key]; !exists && len(mc.data) >= mc.maxSize {
		mc.evictLRU()
	}
	mc.data[key] = &memoryItem{data: data, expireAt: now.Add(expiration), access: now}
	return nil
}

func (mc *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	mc.mu.Lock()
	item, ok := mc.data[key]
	now := mc.now()
	if ok && now.After(item.expireAt) {
		delete(mc.data, key)
		ok = false
	}
	if ok {
		item.access = now
	}
	mc.mu.Unlock()

	if !ok {
		return ErrCacheMiss
	}
	if err := json.Unmarshal(item.data, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (mc *MemoryCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for _, key := range keys {
		delete(mc.data, key)
	}
	return nil
}

// DeleteByPattern removes keys matching a glob pattern ("trends:*").
func (mc *MemoryCache) DeleteByPattern(_ context.Context, pattern string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	for key := range mc.data {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if matched {
			delete(mc.data, key)
		}
	}
	return nil
}

// Len returns the number of stored keys, expired ones included.
func (mc *MemoryCache) Len() int {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	return len(mc.data)
}

func (mc *MemoryCache) evictLRU() {
	var (
		oldestKey  string
		oldestTime time.Time
	)
	for key, item := range mc.data {
		if oldestKey == "" || item.access.Before(oldestTime) {
			oldestKey, oldestTime = key, item.access
		}
	}
	if oldestKey != "" {
		delete(mc.data, oldestKey)
	}
}

func (mc *MemoryCache) cleanupLoop() {
	for {
		select {
		case <-mc.done:
			return
		case <-mc.ticker.C:
			mc.mu.Lock()
			now := mc.now()
			for key, item := range mc.data {
				if now.After(item.expireAt) {
					delete(mc.data, key)
				}
			}
			mc.mu.Unlock()
		}
	}
}

// Close stops the cleanup loop.
func (mc *MemoryCache) Close() error {
	mc.once.Do(func() {
		mc.ticker.Stop()
		close(mc.done)
	})
	return nil
}
