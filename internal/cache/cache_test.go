package cache

import (
	"testing"
	"time"
)

func TestLRUCacheGetSet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	// "b" is now least recently used.
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
	if c.Size() != 2 {
		t.Fatalf("Size = %d, want 2", c.Size())
	}
}

func TestLRUCacheExpiry(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("x", "y")
	now = now.Add(30 * time.Second)
	c.Set("fresh", "z")
	if _, ok := c.Get("k"); !ok {
		t.Fatal("entry expired early")
	}

	now = now.Add(45 * time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected k to expire")
	}

	m := NewManager()
	m.Register(c)
	if n := m.CleanAll(); n != 1 {
		t.Fatalf("CleanAll removed %d, want 1", n)
	}
	if v, ok := c.Get("fresh"); !ok || v != "z" {
		t.Fatalf("fresh entry lost: %q, %v", v, ok)
	}
}

func TestLRUCacheZeroTTLStoresNothing(t *testing.T) {
	c := NewLRUCache[int](10, 0)
	c.Set("a", 1)
	if _, ok := c.Get("a"); ok || c.Size() != 0 {
		t.Fatalf("zero TTL cached a value, size=%d", c.Size())
	}
}

func TestLRUCacheClearAndDelete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should be deleted")
	}

	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("Size after Clear = %d", c.Size())
	}
	c.Set("c", 3)
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("cache unusable after Clear")
	}
}

func TestManagerStopIsIdempotent(t *testing.T) {
	m := NewManager()
	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()
}
