package cache

import (
	"fmt"
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLRUCache_SizeEviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	var evicted []string
	c.OnEvict(func(key string, _ int) { evicted = append(evicted, key) })

	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a")
	}
	c.Set("c", 3) // b is least recently used

	if _, ok := c.Get("b"); ok {
		t.Errorf("b should have been evicted")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}
	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("evicted = %v, want [b]", evicted)
	}
}

func TestLRUCache_TTL(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](10, time.Minute)
	c.now = clock.now

	c.Set("k", "v")
	clock.advance(30 * time.Second)
	if _, ok := c.Get("k"); !ok {
		t.Fatalf("entry should still be live")
	}
	// Get refreshed the TTL.
	clock.advance(45 * time.Second)
	if removed := c.CleanExpired(); removed != 0 {
		t.Fatalf("CleanExpired() = %d, want 0", removed)
	}
	clock.advance(2 * time.Minute)
	if removed := c.CleanExpired(); removed != 1 {
		t.Fatalf("CleanExpired() = %d, want 1", removed)
	}
	if _, ok := c.Get("k"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestSessionCache_NeverEvicts(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	c := NewSessionCache[int]()
	c.now = clock.now

	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("k%d", i), i)
	}
	clock.advance(365 * 24 * time.Hour)
	if removed := c.CleanExpired(); removed != 0 {
		t.Fatalf("CleanExpired() = %d, want 0", removed)
	}
	if v, ok := c.Get("k0"); !ok || v != 0 {
		t.Fatalf("Get(k0) = %d, %v", v, ok)
	}
	if c.Size() != 1000 {
		t.Fatalf("Size() = %d, want 1000", c.Size())
	}
}

func TestManager_CleanNow(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](10, time.Second)
	c.now = clock.now
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager()
	m.Register(c)
	clock.advance(2 * time.Second)
	if removed := m.CleanNow(); removed != 2 {
		t.Fatalf("CleanNow() = %d, want 2", removed)
	}
	m.Stop() // not started: must not block
}
