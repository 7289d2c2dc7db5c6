package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryProvider is an in-process Provider used when no Valkey address is
// configured.
type MemoryProvider struct {
	items *gocache.Cache
}

// NewMemoryProvider creates an in-memory cache; defaultTTL applies when Set is
// called with a zero TTL.
func NewMemoryProvider(defaultTTL, cleanupInterval time.Duration) *MemoryProvider {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &MemoryProvider{items: gocache.New(defaultTTL, cleanupInterval)}
}

// Get returns a copy of the cached bytes or ErrCacheMiss.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	value, ok := p.items.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	data, ok := value.([]byte)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), data...), nil
}

// Set stores a copy of value.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	p.items.Set(key, append([]byte(nil), value...), expiry(ttl))
	return nil
}

// SetNX stores value only when key is absent.
func (p *MemoryProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := p.items.Add(key, append([]byte(nil), value...), expiry(ttl)); err != nil {
		return false, nil
	}
	return true, nil
}

// Del removes key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.items.Delete(key)
	return nil
}

// Close flushes all entries.
func (p *MemoryProvider) Close() error {
	p.items.Flush()
	return nil
}

func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.DefaultExpiration
	}
	return ttl
}
