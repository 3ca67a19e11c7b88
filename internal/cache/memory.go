package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	data      []byte
	updatedAt time.Time
}

// Memory is an in-process TTL cache guarded by a RWMutex.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[Key]memoryEntry
}

// NewMemory returns an empty cache. A non-positive ttl keeps entries until
// they are invalidated.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[Key]memoryEntry),
	}
}

func (m *Memory) Get(_ context.Context, key Key, dst any) (bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if m.ttl > 0 && m.now().Sub(e.updatedAt) >= m.ttl {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.updatedAt.Equal(e.updatedAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return true, nil
}

func (m *Memory) Set(_ context.Context, key Key, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	m.mu.Lock()
	m.entries[key] = memoryEntry{data: data, updatedAt: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, key Key) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) InvalidateUser(_ context.Context, userID string) error {
	m.mu.Lock()
	for k := range m.entries {
		if k.UserID == userID {
			delete(m.entries, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
