package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	p := NewMemoryProvider(time.Minute, time.Minute)
	ctx := context.Background()

	if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected cache miss, got %v", err)
	}
	if err := p.Set(ctx, "k", []byte("v"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := p.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("unexpected get: %q %v", got, err)
	}

	ok, err := p.SetNX(ctx, "k", []byte("other"), time.Second)
	if err != nil || ok {
		t.Fatalf("expected SetNX to refuse existing key, ok=%v err=%v", ok, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	ok, _ = p.SetNX(ctx, "k", []byte("other"), time.Second)
	if !ok {
		t.Fatalf("expected SetNX to store after delete")
	}
}

func TestMemoryProviderExpires(t *testing.T) {
	p := NewMemoryProvider(0, time.Minute)
	ctx := context.Background()
	_ = p.Set(ctx, "short", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, err := p.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry to miss, got %v", err)
	}
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	var p Provider = NoopProvider{}
	_ = p.Set(context.Background(), "k", []byte("v"), time.Minute)
	if _, err := p.Get(context.Background(), "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss from noop provider")
	}
}

func TestJSONHelpers(t *testing.T) {
	p := NewMemoryProvider(time.Minute, time.Minute)
	ctx := context.Background()

	type row struct {
		Service string `json:"service"`
		Errors  int    `json:"errors"`
	}
	SetJSON(ctx, p, "rows", []row{{Service: "checkout", Errors: 4}}, time.Minute)

	var got []row
	if !GetJSON(ctx, p, "rows", &got) {
		t.Fatalf("expected cached rows")
	}
	if len(got) != 1 || got[0].Errors != 4 {
		t.Fatalf("unexpected rows: %+v", got)
	}

	SetJSON(ctx, p, "skipped", []row{{Service: "x"}}, 0)
	if GetJSON(ctx, p, "skipped", &got) {
		t.Fatalf("zero ttl should not cache")
	}
	_ = p.Set(ctx, "garbage", []byte("{"), time.Minute)
	if GetJSON(ctx, p, "garbage", &got) {
		t.Fatalf("undecodable value should report a miss")
	}
	if GetJSON(ctx, NoopProvider{}, "rows", &got) {
		t.Fatalf("noop provider should always miss")
	}
}
