package repo

import (
	"context"
	"sync"
	"time"

	"github.com/miradorstack/mirador-triage/internal/cache"
)

// stubCache records TTLs so tests can assert which lookups were cached.
type stubCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newStubCache() *stubCache {
	return &stubCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (s *stubCache) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return nil, cache.ErrCacheMiss
}

func (s *stubCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), value...)
	s.ttls[key] = ttl
	return nil
}

func (s *stubCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if _, err := s.Get(ctx, key); err == nil {
		return false, nil
	}
	return true, s.Set(ctx, key, value, ttl)
}

func (s *stubCache) Del(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

func (s *stubCache) Close() error { return nil }

func (s *stubCache) ttl(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}
