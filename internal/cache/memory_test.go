package cache

import (
	"context"
	"testing"
	"time"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newTestMemory(ttl time.Duration) (*Memory, *clock) {
	c := &clock{t: time.Date(2025, 11, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(ttl)
	m.now = c.now
	return m, c
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(time.Minute)
	key := Key{UserID: "u1", Resource: ResourceEvents}

	var got []string
	ok, err := m.Get(ctx, key, &got)
	if err != nil || ok {
		t.Fatalf("empty cache: ok=%v err=%v", ok, err)
	}

	if err := m.Set(ctx, key, []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	ok, err = m.Get(ctx, key, &got)
	if err != nil || !ok || len(got) != 2 || got[1] != "b" {
		t.Fatalf("Get = %v, %v, %v", got, ok, err)
	}
}

func TestMemoryKeysArePerUser(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(time.Minute)
	_ = m.Set(ctx, Key{"u1", ResourceTasks}, "one")

	var v string
	if ok, _ := m.Get(ctx, Key{"u2", ResourceTasks}, &v); ok {
		t.Error("u2 must not see u1's entry")
	}
	if ok, _ := m.Get(ctx, Key{"u1", ResourceEvents}, &v); ok {
		t.Error("resources must not share entries")
	}
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	m, c := newTestMemory(30 * time.Second)
	key := Key{"u1", ResourceSettings}
	_ = m.Set(ctx, key, 42)

	c.t = c.t.Add(29 * time.Second)
	var n int
	if ok, _ := m.Get(ctx, key, &n); !ok || n != 42 {
		t.Fatalf("entry should still be fresh: ok=%v n=%d", ok, n)
	}

	c.t = c.t.Add(time.Second)
	if ok, _ := m.Get(ctx, key, &n); ok {
		t.Error("entry should have expired")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not evicted, len=%d", m.Len())
	}
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(0)
	for _, r := range Resources {
		_ = m.Set(ctx, Key{"u1", r}, "x")
		_ = m.Set(ctx, Key{"u2", r}, "x")
	}

	_ = m.Invalidate(ctx, Key{"u1", ResourceEvents})
	if m.Len() != 2*len(Resources)-1 {
		t.Fatalf("len after Invalidate = %d", m.Len())
	}

	_ = m.InvalidateUser(ctx, "u1")
	if m.Len() != len(Resources) {
		t.Fatalf("len after InvalidateUser = %d", m.Len())
	}
	var v string
	if ok, _ := m.Get(ctx, Key{"u2", ResourceSettings}, &v); !ok {
		t.Error("u2 entries must survive u1 invalidation")
	}
}

func TestNewWithoutRedisIsMemory(t *testing.T) {
	c, err := New("", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*Memory); !ok {
		t.Errorf("New(\"\") = %T, want *Memory", c)
	}
}

func TestNewRedisRejectsBadURL(t *testing.T) {
	if _, err := NewRedis("not a url", time.Second); err == nil {
		t.Error("expected parse error")
	}
}
