package memcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samirrijal/trackzone/internal/core/ports"
)

func TestCache_SetGetDelete(t *testing.T) {
	c := New(8, time.Hour)
	ctx := context.Background()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	v := []byte("value")
	if err := c.Set(ctx, "k", v, 60); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v[0] = 'X'

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("expected stored copy, got %q", got)
	}

	_ = c.Delete(ctx, "k")
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Errorf("expected miss after delete, got %v", err)
	}
}

func TestCache_PerKeyTTL(t *testing.T) {
	c := New(8, time.Hour)
	now := time.Now()
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_ = c.Set(ctx, "short", []byte("a"), 10)
	_ = c.Set(ctx, "forever", []byte("b"), 0)

	now = now.Add(11 * time.Second)
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Errorf("expected short-lived key to expire, got %v", err)
	}
	if _, err := c.Get(ctx, "forever"); err != nil {
		t.Errorf("expected key without ttl to survive, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("expected expired key removed, len=%d", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Hour)
	ctx := context.Background()

	_ = c.Set(ctx, "a", []byte("1"), 0)
	_ = c.Set(ctx, "b", []byte("2"), 0)
	_, _ = c.Get(ctx, "a")
	_ = c.Set(ctx, "c", []byte("3"), 0)

	if _, err := c.Get(ctx, "b"); !errors.Is(err, ports.ErrCacheMiss) {
		t.Errorf("expected b evicted, got %v", err)
	}
	if _, err := c.Get(ctx, "a"); err != nil {
		t.Errorf("expected a kept, got %v", err)
	}
}
