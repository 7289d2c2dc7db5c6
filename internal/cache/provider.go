package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Provider is the byte-level cache used for history and aggregation lookups.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// GetJSON decodes the value at key into out. Misses, backend errors and
// undecodable values all report false.
func GetJSON(ctx context.Context, p Provider, key string, out any) bool {
	if p == nil || key == "" {
		return false
	}
	data, err := p.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal(data, out) == nil
}

// SetJSON stores v at key for ttl. Lookups are best-effort, so encode and
// backend failures are dropped.
func SetJSON(ctx context.Context, p Provider, key string, v any, ttl time.Duration) {
	if p == nil || key == "" || ttl <= 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = p.Set(ctx, key, data, ttl)
}

// NoopProvider stores nothing; every lookup misses.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

func (NoopProvider) Del(context.Context, string) error { return nil }

func (NoopProvider) Close() error { return nil }
